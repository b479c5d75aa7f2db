package notification

import (
	"errors"
	"fmt"
	"net/http"

	"catchup-notify/internal/handler/http/respond"
	"catchup-notify/internal/usecase/notify"
)

type BulkHandler struct{ Svc notify.Service }

// ServeHTTP 通知一括作成 (POST /notifications/bulk)
// 受信者ごとにまとめて並列配信する。1 受信者の失敗は他に影響しない。
// 202 と BulkReport を返し、全受信者が失敗した場合のみ 422。
func (h BulkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if len(req.Notifications) == 0 {
		respond.SafeError(w, http.StatusBadRequest, errors.New("notifications are required"))
		return
	}
	if len(req.Notifications) > maxBulkRequests {
		respond.SafeError(w, http.StatusBadRequest,
			fmt.Errorf("notifications must not exceed %d per request", maxBulkRequests))
		return
	}

	report, err := h.Svc.DeliverBulk(r.Context(), req.Notifications)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusAccepted, report)
	case errors.Is(err, notify.ErrBulkDeliveryFailed) && report != nil:
		respond.JSON(w, http.StatusUnprocessableEntity, report)
	default:
		respond.SafeError(w, http.StatusInternalServerError, err)
	}
}
