// Package memory provides an in-process object store. It follows the same
// prefix and delimiter listing rules as S3 and records every listing call, so
// tests can assert how many network loads a caller would have issued.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keenon/AddBiomechanics-sub000/internal/storage"
	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

type object struct {
	data     []byte
	modified time.Time
}

// LoadCall records one LoadPathData invocation.
type LoadCall struct {
	Path      string
	Recursive bool
}

// InMemory implements storage.ObjectStore in memory.
type InMemory struct {
	mu      sync.Mutex
	objects map[string]object
	calls   []LoadCall
	gate    chan struct{}
	loadErr error
	now     func() time.Time
}

// New creates an empty store.
func New() *InMemory {
	return &InMemory{
		objects: make(map[string]object),
		now:     time.Now,
	}
}

// Seed stores keys with empty bodies. Useful for building fixtures.
func (s *InMemory) Seed(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.objects[k] = object{modified: s.now()}
	}
}

// Calls returns a copy of the listing calls made so far.
func (s *InMemory) Calls() []LoadCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LoadCall(nil), s.calls...)
}

// CallCount returns the number of listing calls made so far.
func (s *InMemory) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Hold makes subsequent listings block until the returned release function
// is called or their context is cancelled.
func (s *InMemory) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailLoads makes subsequent listings fail with err. Pass nil to clear.
func (s *InMemory) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// LoadPathData lists keys under path.
func (s *InMemory) LoadPathData(ctx context.Context, path string, recursive bool) (models.Listing, error) {
	s.mu.Lock()
	s.calls = append(s.calls, LoadCall{Path: path, Recursive: recursive})
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Listing{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return models.Listing{}, s.loadErr
	}

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, path) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	listing := models.Listing{Files: []models.FileRecord{}, Folders: []string{}}
	seen := make(map[string]struct{})
	for _, k := range keys {
		if !recursive {
			if idx := strings.Index(k[len(path):], "/"); idx >= 0 {
				folder := k[:len(path)+idx+1]
				if _, ok := seen[folder]; !ok {
					seen[folder] = struct{}{}
					listing.Folders = append(listing.Folders, folder)
				}
				continue
			}
		}
		obj := s.objects[k]
		listing.Files = append(listing.Files, models.FileRecord{
			Key:          k,
			LastModified: obj.modified,
			Size:         int64(len(obj.data)),
		})
	}
	return listing, nil
}

// GetSignedURL returns a memory:// URL carrying the expiry.
func (s *InMemory) GetSignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	expires := s.now().Add(ttl).Unix()
	return fmt.Sprintf("memory:///%s?expires=%d", url.PathEscape(path), expires), nil
}

// DownloadText returns the object body.
func (s *InMemory) DownloadText(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	if !ok {
		return "", storage.ErrNotFound
	}
	return string(obj.data), nil
}

// DownloadFile returns a reader over the object body.
func (s *InMemory) DownloadFile(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// UploadText stores text at path.
func (s *InMemory) UploadText(_ context.Context, path, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = object{data: []byte(text), modified: s.now()}
	return nil
}

// UploadFile stores the body at path.
func (s *InMemory) UploadFile(ctx context.Context, path string, body io.Reader, size int64, onProgress storage.ProgressFunc) error {
	data, err := io.ReadAll(&storage.ProgressReader{R: body, Total: size, OnProgress: onProgress})
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = object{data: data, modified: s.now()}
	return nil
}

// Delete removes the object at path.
func (s *InMemory) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// Len returns the number of stored objects.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
