// Package respond writes JSON responses and keeps internal error details out of them.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// genericMessage replaces anything that might leak internals.
const genericMessage = "internal server error"

type errorBody struct {
	Error string `json:"error"`
}

// JSON encodes v with status code. A nil v writes headers only.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// ステータスは送信済み
		slog.Error("response encoding failed",
			slog.Int("status_code", code),
			slog.Any("error", err))
	}
}

// Message writes {"error": msg}.
func Message(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, errorBody{Error: msg})
}

// Validation failures are worded with one of these; anything else is treated
// as internal.
var clientSafeMarkers = [...]string{
	"required", "invalid", "unknown", "not found",
	"must be", "must not", "too large",
}

// SafeError reports err to the client. An *AppError anywhere in the chain
// decides both status and text. Other errors are echoed only for 4xx codes
// and only when they read like validation output.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			slog.Error("request failed",
				slog.Int("code", appErr.Code),
				slog.String("user_message", appErr.UserMsg),
				slog.String("error", SanitizeError(appErr.Err)))
		}
		Message(w, appErr.Code, appErr.UserMsg)
		return
	}

	if code < http.StatusInternalServerError && clientSafe(err.Error()) {
		Message(w, code, err.Error())
		return
	}

	slog.Error("request failed",
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	Message(w, code, genericMessage)
}

func clientSafe(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range clientSafeMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// AppError pairs a status code with fixed client text. Err is only logged.
type AppError struct {
	Code    int
	UserMsg string
	Err     error
}

// NewAppError creates an AppError.
func NewAppError(code int, userMsg string, err error) *AppError {
	return &AppError{Code: code, UserMsg: userMsg, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.UserMsg
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }
