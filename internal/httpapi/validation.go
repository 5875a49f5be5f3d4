package httpapi

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"BookSnippetCollector/internal/domain"
	"BookSnippetCollector/internal/media"
)

const (
	maxUploadBody   = media.MaxImageSize + 1<<20
	multipartMemory = 1 << 20
)

// parseSnippetFilter reads the listing query. Empty parameters impose no
// constraint; a hasImage value that is not a boolean is rejected.
func parseSnippetFilter(r *http.Request) (domain.SnippetFilter, error) {
	q := r.URL.Query()
	f := domain.SnippetFilter{
		Search:  strings.TrimSpace(q.Get("search")),
		Emotion: domain.Emotion(strings.TrimSpace(q.Get("emotion"))),
		Sort:    domain.SortOrder(strings.ToLower(strings.TrimSpace(q.Get("sort")))),
	}
	if raw := strings.TrimSpace(q.Get("hasImage")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.SnippetFilter{}, domain.NewValidationError(map[string]string{"hasImage": "must be true or false"})
		}
		f.HasImage = &v
	}
	return f, nil
}

// parseMultipart bounds the body and parses a multipart form. An oversized
// body is reported against field.
func parseMultipart(w http.ResponseWriter, r *http.Request, field string) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NewValidationError(map[string]string{field: "must be 5 MiB or smaller"})
		}
		return domain.NewValidationError(map[string]string{"body": "invalid multipart form"})
	}
	return nil
}

// formUpload returns the uploaded file in field, or nil when none was sent.
// The caller closes the returned file.
func formUpload(r *http.Request, field string) (*media.Upload, multipart.File, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, domain.NewValidationError(map[string]string{field: "could not read file"})
	}
	return &media.Upload{
		Field:       field,
		Body:        file,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}, file, nil
}

// optionalFormValue distinguishes an absent form field from an empty one.
func optionalFormValue(r *http.Request, key string) *string {
	if r.MultipartForm != nil {
		if vs, ok := r.MultipartForm.Value[key]; ok && len(vs) > 0 {
			v := vs[0]
			return &v
		}
	}
	if vs, ok := r.PostForm[key]; ok && len(vs) > 0 {
		v := vs[0]
		return &v
	}
	return nil
}
