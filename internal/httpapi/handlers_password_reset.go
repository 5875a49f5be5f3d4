package httpapi

import (
	"net/http"
	"time"

	"BookSnippetCollector/internal/service"
)

const forgotPasswordMessage = "If an account with that email exists, a reset link has been sent."

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// handleForgotPassword answers identically whether or not the address is
// registered. Only a throttled caller sees a different status.
func (a *api) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	email := service.NormalizeEmail(req.Email)
	if !a.loginLimiter.AllowAll(time.Now(), "forgot:ip:"+a.clientIP(r), "forgot:email:"+email) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	a.resetSvc.RequestReset(r.Context(), email)
	writeMessage(w, http.StatusOK, forgotPasswordMessage)
}

func (a *api) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	_, sessID, err := a.resetSvc.ResetPassword(r.Context(), r.PathValue("token"), req.Password, a.clientIP(r), r.UserAgent())
	if err != nil {
		a.writeServerError(w, r, "reset password", err)
		return
	}

	a.setSession(w, sessID)
	writeMessage(w, http.StatusOK, "Password changed successfully.")
}
