package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"BookSnippetCollector/internal/domain"
)

type userView struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Bio               string    `json:"bio"`
	ProfilePictureURL string    `json:"profilePictureUrl"`
	HasPassword       bool      `json:"hasPassword"`
	GoogleLinked      bool      `json:"googleLinked"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func newUserView(u domain.User) userView {
	v := userView{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Bio:          u.Bio,
		HasPassword:  u.Credentials.HasPassword(),
		GoogleLinked: u.Credentials.HasGoogle(),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.ProfileImage != nil {
		v.ProfilePictureURL = u.ProfileImage.URL
	}
	return v
}

type userEnvelope struct {
	Message string   `json:"message,omitempty"`
	User    userView `json:"user"`
}

func (a *api) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=0")
	etag := userETag(u)
	if match := strings.TrimSpace(r.Header.Get("If-None-Match")); match != "" && match == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	WriteJSON(w, http.StatusOK, userEnvelope{User: newUserView(u)})
}

func (a *api) handleUsersDeleteAccount(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	if err := a.accountSvc.Delete(r.Context(), u.ID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.writeServerError(w, r, "delete account", err)
			return
		}
	}

	a.cookies.Clear(w)
	writeMessage(w, http.StatusOK, "Account and all associated data have been permanently deleted.")
}

func userETag(u domain.User) string {
	return fmt.Sprintf("W/\"user:%s:%d\"", u.ID, u.UpdatedAt.UnixNano())
}
