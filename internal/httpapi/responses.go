package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"BookSnippetCollector/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, messageResponse{Message: message})
}

func WriteDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{
			Code:    "validation_error",
			Message: "invalid request",
			Fields:  ve.Fields,
		}})
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", "invalid request")
	case errors.Is(err, domain.ErrEmailTaken):
		WriteError(w, http.StatusBadRequest, "email_taken", "Email already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, domain.ErrPasswordNotSet):
		WriteError(w, http.StatusUnauthorized, "password_not_set", "this account signs in with Google")
	case errors.Is(err, domain.ErrAccountNotRegistered):
		WriteError(w, http.StatusUnauthorized, "not_registered", "no account is linked to this Google identity")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrResetTokenInvalid):
		WriteError(w, http.StatusBadRequest, "invalid_token", "Token is invalid or has expired.")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrUpstream):
		WriteError(w, http.StatusInternalServerError, "upstream_error", "upstream service failed")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// writeServerError logs unexpected failures before answering; domain errors
// with a client meaning are written without noise.
func (a *api) writeServerError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if isServerError(err) {
		fields := []any{"op", op, "err", err}
		if rid, ok := GetRequestID(r.Context()); ok {
			fields = append(fields, "request_id", rid)
		}
		a.logger.Error("request failed", fields...)
	}
	WriteDomainError(w, err)
}

func isServerError(err error) bool {
	for _, known := range []error{
		domain.ErrValidation,
		domain.ErrEmailTaken,
		domain.ErrInvalidCredentials,
		domain.ErrPasswordNotSet,
		domain.ErrAccountNotRegistered,
		domain.ErrUnauthorized,
		domain.ErrResetTokenInvalid,
		domain.ErrNotFound,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}
