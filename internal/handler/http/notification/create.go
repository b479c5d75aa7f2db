package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"catchup-notify/internal/handler/http/respond"
	"catchup-notify/internal/usecase/notify"
)

type CreateHandler struct{ Svc notify.Service }

// ServeHTTP 通知作成 (POST /notifications)
// 1 ユーザーへの通知を作成し、有効なチャネルすべてに配信して 201 を返す。
func (h CreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	n, err := h.Svc.Deliver(r.Context(), req)
	if err != nil {
		writeDeliverError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, toDTO(n))
}

func writeDeliverError(w http.ResponseWriter, err error) {
	if errors.Is(err, notify.ErrInvalidRequest) {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	var de *notify.DeliveryError
	if errors.As(err, &de) && de.Kind == notify.KindRecipientNotFound {
		respond.SafeError(w, http.StatusNotFound, respond.NewAppError(http.StatusNotFound, "recipient not found", nil))
		return
	}
	respond.SafeError(w, http.StatusInternalServerError, err)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("invalid body: trailing data")
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respond.Message(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	respond.SafeError(w, http.StatusBadRequest,
		respond.NewAppError(http.StatusBadRequest, "invalid JSON body", fmt.Errorf("decode: %w", err)))
}
