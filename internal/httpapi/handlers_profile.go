package httpapi

import (
	"net/http"

	"BookSnippetCollector/internal/domain"
	"BookSnippetCollector/internal/service"
)

const profilePictureField = "profilePicture"

type updateDetailsRequest struct {
	Name *string `json:"name"`
	Bio  *string `json:"bio"`
}

// handleUsersUpdateDetails accepts JSON for text-only edits or a multipart
// form when a new profile picture is included.
func (a *api) handleUsersUpdateDetails(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var ch service.ProfileChanges
	switch {
	case isJSON(r):
		var req updateDetailsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
			return
		}
		ch.Name, ch.Bio = req.Name, req.Bio
	case isMultipart(r):
		if err := parseMultipart(w, r, profilePictureField); err != nil {
			WriteDomainError(w, err)
			return
		}
		up, file, err := formUpload(r, profilePictureField)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if file != nil {
			defer file.Close()
		}
		ch.Name = optionalFormValue(r, "name")
		ch.Bio = optionalFormValue(r, "bio")
		ch.Picture = up
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := r.ParseForm(); err != nil {
			WriteError(w, http.StatusBadRequest, "bad_form", "invalid form")
			return
		}
		ch.Name = optionalFormValue(r, "name")
		ch.Bio = optionalFormValue(r, "bio")
	}

	updated, err := a.profileSvc.Update(r.Context(), u.ID, ch)
	if err != nil {
		a.writeServerError(w, r, "update profile", err)
		return
	}
	w.Header().Set("ETag", userETag(updated))
	WriteJSON(w, http.StatusOK, userEnvelope{Message: "Profile updated successfully", User: newUserView(updated)})
}
