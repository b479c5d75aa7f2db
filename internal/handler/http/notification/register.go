package notification

import (
	"net/http"

	"catchup-notify/internal/usecase/notify"
)

// Register registers the producer-facing notification routes.
// They are protected by auth.Authz, which the server applies to every non-public path.
func Register(mux *http.ServeMux, svc notify.Service) {
	mux.Handle("POST /notifications", CreateHandler{svc})
	mux.Handle("POST /notifications/bulk", BulkHandler{svc})
}
