package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DiskPrefix is the URL path under which Disk objects are served.
const DiskPrefix = "/media/"

// Disk keeps objects under a local directory. It backs development setups
// without an object host.
type Disk struct {
	Dir     string
	BaseURL string
}

func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Disk{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (d *Disk) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	target, err := d.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(target), "upload-*")
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	fail := func(err error) (string, error) {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("write media file: %w", err)
	}
	if _, err := io.Copy(tmpFile, body); err != nil {
		return fail(err)
	}
	if err := tmpFile.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmpFile.Name(), 0o644); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpFile.Name(), target); err != nil {
		return fail(err)
	}
	return d.BaseURL + DiskPrefix + escapeKey(key), nil
}

func (d *Disk) Delete(ctx context.Context, keys []string) error {
	var errs []error
	for _, k := range keys {
		p, err := d.path(k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Handler serves stored objects; mount it at DiskPrefix.
func (d *Disk) Handler() http.Handler {
	return http.StripPrefix(DiskPrefix, http.FileServer(http.Dir(d.Dir)))
}

func (d *Disk) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean != "/"+key {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	return filepath.Join(d.Dir, filepath.FromSlash(clean)), nil
}
