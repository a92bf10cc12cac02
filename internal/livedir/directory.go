// Package livedir implements a live, cached, hierarchical view of a flat
// object store. Listings are loaded lazily, shared between callers, and kept
// current by change events from the bus.
package livedir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keenon/AddBiomechanics-sub000/internal/events"
	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	"github.com/keenon/AddBiomechanics-sub000/internal/storage"
	"github.com/keenon/AddBiomechanics-sub000/pkg/tree"
)

// ErrClosed is returned by operations on a closed Directory.
var ErrClosed = errors.New("livedir: directory closed")

const (
	defaultSignedURLTTL      = time.Hour
	defaultDeleteConcurrency = 16
)

// Config holds the settings for a Directory.
type Config struct {
	// Root is prepended to every path. A non-empty root is forced to end in "/".
	Root string

	// Deployment scopes bus topics, e.g. "DEV" or "PROD".
	Deployment string

	// SignedURLTTL is the default lifetime of signed download URLs.
	SignedURLTTL time.Duration

	// DeleteConcurrency bounds parallel deletes in DeleteByPrefix.
	DeleteConcurrency int
}

// Directory is a live view of the object store under one root.
type Directory struct {
	root              string
	deployment        string
	signedURLTTL      time.Duration
	deleteConcurrency int

	store storage.ObjectStore
	bus   events.Bus

	// ctx bounds every store listing; it is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cache   *pathCache
	faults  map[string]*Load
	changes []change
	closed  bool

	notifier    *notifier
	unsubscribe []func()
}

// New creates a Directory over store. When bus is non-nil the directory
// subscribes to UPDATE and DELETE events under its root and publishes its
// own mutations.
func New(cfg Config, store storage.ObjectStore, bus events.Bus) (*Directory, error) {
	if store == nil {
		return nil, errors.New("livedir: store is required")
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}
	if cfg.DeleteConcurrency <= 0 {
		cfg.DeleteConcurrency = defaultDeleteConcurrency
	}

	root := tree.Root(cfg.Root)
	ctx, cancel := context.WithCancel(context.Background())
	d := &Directory{
		root:              root,
		deployment:        cfg.Deployment,
		signedURLTTL:      cfg.SignedURLTTL,
		deleteConcurrency: cfg.DeleteConcurrency,
		store:             store,
		bus:               bus,
		ctx:               ctx,
		cancel:            cancel,
		cache:             newPathCache(root),
		faults:            make(map[string]*Load),
		notifier:          newNotifier(),
	}

	if bus != nil {
		// One subscription for both change types; ingest filters by root.
		pattern := events.DeploymentPattern(cfg.Deployment)
		unsub, err := bus.Subscribe(pattern, d.handleMessage)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("subscribe %s: %w", pattern, err)
		}
		d.unsubscribe = append(d.unsubscribe, unsub)
	}

	logging.Debug("Live directory created",
		zap.String("root", root),
		zap.String("deployment", cfg.Deployment),
		zap.Bool("bus", bus != nil),
	)
	return d, nil
}

// Root returns the normalized root prefix.
func (d *Directory) Root() string {
	return d.root
}

// Close drops bus subscriptions and cancels in-flight listings.
func (d *Directory) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	unsubs := d.unsubscribe
	d.unsubscribe = nil
	d.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	d.cancel()
}

// CacheSize returns the number of cached entries.
func (d *Directory) CacheSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.len()
}

// lock and unlock guard the cache. Changes committed while holding the lock
// are delivered to listeners by unlock, after the lock is released.
func (d *Directory) lock() {
	d.mu.Lock()
}

func (d *Directory) unlock() {
	changes := d.changes
	d.changes = nil
	d.mu.Unlock()
	if len(changes) > 0 {
		d.notifier.dispatch(changes)
	}
}

// commit stores e as the newest snapshot for its path and queues a change
// notification. Callers hold the lock.
func (d *Directory) commit(e *PathEntry) *PathEntry {
	e = d.cache.put(e)
	d.changes = append(d.changes, change{path: e.Path, entry: *e})
	return e
}

// notify queues a notification for a snapshot that is not stored.
func (d *Directory) notify(e PathEntry) {
	d.changes = append(d.changes, change{path: e.Path, entry: e})
}

// GetCachedPath returns the cached entry for path without touching the
// store. Entries derivable from a recursively loaded ancestor count as cached.
func (d *Directory) GetCachedPath(path string) (PathEntry, bool) {
	d.lock()
	defer d.unlock()
	e, ok := d.cache.lookup(tree.Normalize(d.root, path))
	if !ok {
		return PathEntry{}, false
	}
	return *e, true
}

// AddPathChangeListener registers fn to run after every committed change to
// path. The returned function removes the listener.
func (d *Directory) AddPathChangeListener(path string, fn func(PathEntry)) func() {
	return d.notifier.add(tree.Normalize(d.root, path), fn)
}

// ListenerCount returns the number of registered listeners.
func (d *Directory) ListenerCount() int {
	return d.notifier.count()
}

// GetSignedURL returns a download URL for path. A zero ttl uses the
// configured default.
func (d *Directory) GetSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = d.signedURLTTL
	}
	key := tree.Normalize(d.root, path)
	u, err := d.store.GetSignedURL(ctx, key, ttl)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", key, err)
	}
	return u, nil
}

// DownloadText returns the body of path. A missing object yields
// storage.ErrNotFound.
func (d *Directory) DownloadText(ctx context.Context, path string) (string, error) {
	key := tree.Normalize(d.root, path)
	text, err := d.store.DownloadText(ctx, key)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	return text, nil
}

// DownloadFile streams the body of path. The caller closes the reader.
func (d *Directory) DownloadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	key := tree.Normalize(d.root, path)
	rc, err := d.store.DownloadFile(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return rc, nil
}
