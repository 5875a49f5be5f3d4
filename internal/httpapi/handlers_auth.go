package httpapi

import (
	"net/http"
	"strings"
	"time"

	"BookSnippetCollector/internal/domain"
	"BookSnippetCollector/internal/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string   `json:"message"`
	User    userView `json:"user"`
}

func missingCredentials(email, password string) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(email) == "" {
		fields["email"] = "required"
	}
	if password == "" {
		fields["password"] = "required"
	}
	return fields
}

func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	if fields := missingCredentials(req.Email, req.Password); len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	if _, err := a.authSvc.Register(r.Context(), req.Email, req.Password); err != nil {
		a.writeServerError(w, r, "register", err)
		return
	}
	writeMessage(w, http.StatusCreated, "User created successfully")
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	email := service.NormalizeEmail(req.Email)
	if fields := missingCredentials(email, req.Password); len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	ip := a.clientIP(r)
	if !a.loginLimiter.AllowAll(time.Now(), "ip:"+ip, "email:"+email) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	u, sessID, err := a.authSvc.Login(r.Context(), email, req.Password, ip, r.UserAgent())
	if err != nil {
		a.writeServerError(w, r, "login", err)
		return
	}

	a.setSession(w, sessID)
	WriteJSON(w, http.StatusOK, loginResponse{Message: "Login successful", User: newUserView(u)})
}

func (a *api) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	sessID, ok := CurrentSessionID(r.Context())
	if !ok || sessID == "" {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	if err := a.authSvc.Logout(r.Context(), sessID); err != nil {
		a.logger.Warn("logout revoke failed", "err", err)
	}
	a.cookies.Clear(w)
	writeMessage(w, http.StatusOK, "Logout successful")
}

func (a *api) setSession(w http.ResponseWriter, sessID string) {
	a.cookies.Issue(w, sessID)
}
