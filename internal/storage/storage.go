// Package storage defines the object store the live directory is emulated on
// top of. Keys are flat; "/" is only a naming convention.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

// ErrNotFound is returned by downloads when the key does not exist. It is an
// expected outcome, not a transport failure.
var ErrNotFound = errors.New("object not found")

// ProgressFunc receives upload progress in bytes.
type ProgressFunc func(sent, total int64)

// ObjectStore is the interface for prefix-addressed blob stores.
// Implementations: memory.InMemory (tests, offline use) and s3.Live.
type ObjectStore interface {
	// LoadPathData lists every key starting with path. When recursive is
	// false the listing is grouped one level deep on "/" and Folders holds
	// the common prefixes.
	LoadPathData(ctx context.Context, path string, recursive bool) (models.Listing, error)

	// GetSignedURL returns a time-limited download URL for path.
	GetSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// DownloadText returns the object body as a string, or ErrNotFound.
	DownloadText(ctx context.Context, path string) (string, error)

	// DownloadFile streams the object body, or returns ErrNotFound.
	DownloadFile(ctx context.Context, path string) (io.ReadCloser, error)

	// UploadText stores text at path.
	UploadText(ctx context.Context, path, text string) error

	// UploadFile stores size bytes from body at path, reporting progress.
	UploadFile(ctx context.Context, path string, body io.Reader, size int64, onProgress ProgressFunc) error

	// Delete removes the object at path. Deleting a missing key is not an error.
	Delete(ctx context.Context, path string) error
}

// ProgressReader reports bytes read through an upload body.
type ProgressReader struct {
	R          io.Reader
	Total      int64
	OnProgress ProgressFunc

	sent int64
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.R.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.OnProgress != nil {
			p.OnProgress(p.sent, p.Total)
		}
	}
	return n, err
}
