// Package media stores image attachments on an external object host and
// hands back the reference the owning record keeps.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"BookSnippetCollector/internal/domain"
)

// MaxImageSize is the largest accepted image payload.
const MaxImageSize = 5 << 20

// Storage is an object host. Put returns the public URL of the stored object.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, keys []string) error
}

// Upload is an image payload as received from a client. Field names the form
// field it came from and is used in validation errors.
type Upload struct {
	Field       string
	Body        io.Reader
	ContentType string
	Size        int64
}

type Service struct {
	Storage Storage
	Logger  *slog.Logger
	MaxSize int64
	Now     func() time.Time
}

func NewService(storage Storage, logger *slog.Logger) *Service {
	return &Service{Storage: storage, Logger: logger, MaxSize: MaxImageSize, Now: time.Now}
}

// Attach validates and uploads an image under folder.
func (s *Service) Attach(ctx context.Context, folder string, up Upload) (domain.ImageRef, error) {
	if s.Storage == nil {
		return domain.ImageRef{}, fmt.Errorf("attach image: %w: no storage configured", domain.ErrUpstream)
	}
	data, mt, err := s.read(up)
	if err != nil {
		return domain.ImageRef{}, err
	}

	key := s.newKey(folder, mt.Extension())
	url, err := s.Storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mt.String())
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("upload image: %w: %w", domain.ErrUpstream, err)
	}
	return domain.ImageRef{URL: url, AssetID: key}, nil
}

// Replace uploads the new image, hands it to commit, and only then deletes
// the old asset. If commit fails the new asset is removed again. A crash
// between commit and the old delete leaves an orphaned remote object.
func (s *Service) Replace(ctx context.Context, folder, oldAssetID string, up Upload, commit func(domain.ImageRef) error) (domain.ImageRef, error) {
	ref, err := s.Attach(ctx, folder, up)
	if err != nil {
		return domain.ImageRef{}, err
	}
	if err := commit(ref); err != nil {
		s.deleteQuietly(ctx, []string{ref.AssetID})
		return domain.ImageRef{}, err
	}
	if oldAssetID != "" && oldAssetID != ref.AssetID {
		s.deleteQuietly(ctx, []string{oldAssetID})
	}
	return ref, nil
}

// DetachAll deletes the given assets. Failures are logged, never returned.
func (s *Service) DetachAll(ctx context.Context, assetIDs []string) {
	ids := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || s.Storage == nil {
		return
	}
	s.deleteQuietly(ctx, ids)
}

func (s *Service) deleteQuietly(ctx context.Context, ids []string) {
	if err := s.Storage.Delete(ctx, ids); err != nil {
		s.logger().Warn("delete remote assets failed", "assets", ids, "err", err)
	}
}

func (s *Service) read(up Upload) ([]byte, *mimetype.MIME, error) {
	field := up.Field
	if field == "" {
		field = "image"
	}
	invalid := func(msg string) error {
		return domain.NewValidationError(map[string]string{field: msg})
	}

	maxSize := s.MaxSize
	if maxSize <= 0 {
		maxSize = MaxImageSize
	}
	if up.Body == nil {
		return nil, nil, invalid("image file is required")
	}
	if !isImageType(up.ContentType) {
		return nil, nil, invalid("only image files are allowed")
	}
	if up.Size > maxSize {
		return nil, nil, invalid("image must be at most 5 MB")
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, maxSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, nil, invalid("image must be at most 5 MB")
	}
	if len(data) == 0 {
		return nil, nil, invalid("image file is empty")
	}

	mt := mimetype.Detect(data)
	if !isImageType(mt.String()) {
		return nil, nil, invalid("only image files are allowed")
	}
	return data, mt, nil
}

func (s *Service) newKey(folder, ext string) string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	d := now().UTC()
	return fmt.Sprintf("%s/%d/%02d/%02d/%s%s", strings.Trim(folder, "/"), d.Year(), d.Month(), d.Day(), uuid.NewString(), ext)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// isImageType accepts image/* except SVG.
func isImageType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "image/") && ct != "image/svg+xml"
}
