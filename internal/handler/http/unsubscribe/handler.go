// Package unsubscribe serves the one-click unsubscribe links embedded in emails.
package unsubscribe

import (
	"context"
	"errors"
	"net/http"

	"catchup-notify/internal/handler/http/respond"
	unsubUC "catchup-notify/internal/usecase/unsubscribe"
)

const invalidLinkMessage = "this link is invalid or expired"

// Unsubscriber is implemented by *unsubUC.Service.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, token string) (unsubUC.Claims, error)
}

type Handler struct{ Svc Unsubscriber }

// ServeHTTP 配信停止 (GET/POST /unsubscribe?token=...)
// メール内リンクのトークンを検証し、その通知タイプをミュートする。
// POST はメールクライアントのワンクリック配信停止 (RFC 8058) 用。
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		token = r.PostFormValue("token")
	}
	if token == "" {
		respond.Message(w, http.StatusBadRequest, invalidLinkMessage)
		return
	}

	claims, err := h.Svc.Unsubscribe(r.Context(), token)
	if err != nil {
		if errors.Is(err, unsubUC.ErrInvalidToken) {
			respond.Message(w, http.StatusBadRequest, invalidLinkMessage)
			return
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respond.JSON(w, http.StatusOK, map[string]string{
		"status": "unsubscribed",
		"type":   string(claims.Type),
	})
}

// Register registers GET and POST /unsubscribe. limit may be nil.
func Register(mux *http.ServeMux, svc Unsubscriber, limit func(http.Handler) http.Handler) {
	var h http.Handler = Handler{svc}
	if limit != nil {
		h = limit(h)
	}
	mux.Handle("GET /unsubscribe", h)
	mux.Handle("POST /unsubscribe", h)
}
