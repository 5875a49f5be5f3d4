package httpapi

import (
	"errors"
	"net/http"
	"time"

	"BookSnippetCollector/internal/domain"
	"BookSnippetCollector/internal/service"
)

const snippetImageField = "snippetImage"

type snippetView struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Emotion     string    `json:"emotion"`
	Author      string    `json:"author"`
	BookName    string    `json:"bookName"`
	PageNo      string    `json:"pageNo"`
	Description string    `json:"description"`
	ImageURL    *string   `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newSnippetView(sn domain.Snippet) snippetView {
	v := snippetView{
		ID:          sn.ID,
		Text:        sn.Text,
		Emotion:     string(sn.Emotion),
		Author:      sn.Author,
		BookName:    sn.BookName,
		PageNo:      sn.PageNo,
		Description: sn.Description,
		CreatedAt:   sn.CreatedAt,
	}
	if sn.Image != nil {
		u := sn.Image.URL
		v.ImageURL = &u
	}
	return v
}

func (a *api) handleSnippetsList(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	f, err := parseSnippetFilter(r)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	snippets, err := a.snippetSvc.List(r.Context(), u.ID, f)
	if err != nil {
		a.writeServerError(w, r, "list snippets", err)
		return
	}

	out := make([]snippetView, 0, len(snippets))
	for _, sn := range snippets {
		out = append(out, newSnippetView(sn))
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, out)
}

func (a *api) handleSnippetsRandom(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	sn, err := a.snippetSvc.PickRandom(r.Context(), u.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "You don't have any snippets to pick from yet!")
			return
		}
		a.writeServerError(w, r, "random snippet", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, newSnippetView(sn))
}

func (a *api) handleSnippetsCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	in := service.NewSnippet{}
	switch {
	case isMultipart(r):
		if err := parseMultipart(w, r, snippetImageField); err != nil {
			WriteDomainError(w, err)
			return
		}
		up, file, err := formUpload(r, snippetImageField)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if file != nil {
			defer file.Close()
		}
		in.Image = up
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := r.ParseForm(); err != nil {
			WriteError(w, http.StatusBadRequest, "bad_form", "invalid form")
			return
		}
	}

	in.Text = r.FormValue("text")
	in.Emotion = r.FormValue("emotion")
	in.Author = r.FormValue("author")
	in.BookName = r.FormValue("bookName")
	in.PageNo = r.FormValue("pageNo")
	in.Description = r.FormValue("description")

	sn, err := a.snippetSvc.Create(r.Context(), u.ID, in)
	if err != nil {
		a.writeServerError(w, r, "create snippet", err)
		return
	}
	WriteJSON(w, http.StatusCreated, newSnippetView(sn))
}
