package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	DraftID string `json:"draftId,omitempty"`
}

func statusFor(err error) int {
	if apperr.CodeOf(err) == apperr.CodeTimeout {
		return http.StatusGatewayTimeout
	}
	switch apperr.KindOf(err) {
	case apperr.KindFatalInput, apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindEmptyReason:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStateConflict:
		return http.StatusConflict
	case apperr.KindExternal:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorFor(w, err, "")
}

// writeErrorFor renders err and, when the failed stage left a draft behind,
// tells the client which draft to continue with.
func writeErrorFor(w http.ResponseWriter, err error, draftID string) {
	status := statusFor(err)
	body := errorBody{
		Kind:    string(apperr.KindOf(err)),
		Code:    string(apperr.CodeOf(err)),
		Message: err.Error(),
		DraftID: draftID,
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		body.Message = "internal error"
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": errorBody{Kind: "auth", Code: code, Message: msg}})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
