package livedir

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
	"github.com/keenon/AddBiomechanics-sub000/pkg/tree"
)

// GetPath returns the entry for path and never blocks on the store. If the
// path is not cached, or a recursive view is requested and only a shallow
// one is cached, a listing starts and a loading entry is returned whose
// Pending load resolves when it lands. Concurrent callers share one listing
// per (path, recursive).
func (d *Directory) GetPath(path string, recursive bool) PathEntry {
	d.lock()
	defer d.unlock()
	return *d.getPathLocked(tree.Normalize(d.root, path), recursive)
}

func (d *Directory) getPathLocked(path string, recursive bool) *PathEntry {
	if e, ok := d.cache.lookup(path); ok && (e.Recursive || !recursive) {
		return e
	}
	return d.startLoad(path, recursive)
}

// startLoad writes a loading stub before the listing runs so that callers
// arriving in the meantime find it and join the same load.
func (d *Directory) startLoad(path string, recursive bool) *PathEntry {
	prev, _ := d.cache.get(path)
	load := newLoad()
	stub := d.commit(&PathEntry{
		Path:      path,
		Loading:   true,
		Pending:   load,
		Files:     []models.FileRecord{},
		Folders:   []string{},
		Recursive: recursive,
	})

	if d.closed {
		d.failLoad(path, load, prev, ErrClosed)
		return stub
	}

	logging.Debug("Loading path",
		zap.String("path", path),
		zap.Bool("recursive", recursive),
	)
	go d.runLoad(path, recursive, load, prev)
	return stub
}

func (d *Directory) runLoad(path string, recursive bool, load *Load, prev *PathEntry) {
	start := time.Now()
	listing, err := d.store.LoadPathData(d.ctx, path, recursive)
	metrics.RecordPathLoad(recursive, time.Since(start), err == nil)
	if err != nil {
		logging.Warn("Path load failed",
			zap.String("path", path),
			zap.Bool("recursive", recursive),
			zap.Error(err),
		)
		d.lock()
		d.failLoad(path, load, prev, err)
		d.unlock()
		return
	}

	// A slash-less name that lists as exactly one folder of the same name is
	// that folder; adopt the folder's contents instead. A marker object with
	// the bare name may be listed alongside it.
	if !recursive && path != d.root && !strings.HasSuffix(path, "/") &&
		len(listing.Folders) == 1 && listing.Folders[0] == path+"/" {
		d.redirect(path, load, prev)
		return
	}

	files, folders := stripRoot(d.root, listing)
	if recursive {
		folders = tree.FoldersFromFiles(tree.Relative(d.root, path), files)
	}
	entry := &PathEntry{
		Path:      path,
		Files:     files,
		Folders:   folders,
		Recursive: recursive,
	}

	d.lock()
	d.resolve(path, load, entry)
	d.unlock()
}

// redirect resolves a shallow load of "name" with the shallow listing of
// "name/".
func (d *Directory) redirect(path string, load *Load, prev *PathEntry) {
	d.lock()
	target := *d.getPathLocked(path+"/", false)
	d.unlock()

	if target.Pending != nil {
		if err := target.Pending.Wait(d.ctx); err != nil {
			d.lock()
			d.failLoad(path, load, prev, err)
			d.unlock()
			return
		}
		target = target.Pending.Entry()
	}

	adopted := target.clone()
	adopted.Path = path
	adopted.Loading = false
	adopted.Pending = nil

	d.lock()
	d.resolve(path, load, adopted)
	d.unlock()
}

// resolve commits entry if load is still the one the cache is waiting on and
// completes the load either way. A load superseded by an upgrade is dropped.
// Callers hold the lock, so a settled load is never observed uncommitted.
func (d *Directory) resolve(path string, load *Load, entry *PathEntry) {
	if cur, ok := d.cache.get(path); ok && cur.Pending == load {
		entry = d.commit(entry)
	}
	load.finish(entry, nil)
}

// failLoad removes a failed stub so a later GetPath retries. Whatever the
// stub replaced is restored. Callers hold the lock.
func (d *Directory) failLoad(path string, load *Load, prev *PathEntry, err error) {
	if cur, ok := d.cache.get(path); ok && cur.Pending == load {
		if restored := restorable(prev); restored != nil {
			d.commit(restored.clone())
		} else {
			d.cache.remove(path)
			d.notify(PathEntry{Path: path, Files: []models.FileRecord{}, Folders: []string{}})
		}
	}
	load.finish(nil, err)
}

// restorable returns the entry prev stands for: prev itself if resolved or
// still loading, the result of its load if that already landed, or nil.
func restorable(prev *PathEntry) *PathEntry {
	if prev == nil || prev.Pending == nil || !prev.Pending.settled() {
		return prev
	}
	if prev.Pending.Err() != nil {
		return nil
	}
	e := prev.Pending.Entry()
	return &e
}

// FaultInPath loads path shallowly and then every immediate child folder
// recursively, in parallel. One fault-in runs per path; later calls share
// it. A failed fault-in is forgotten so it can be retried.
func (d *Directory) FaultInPath(path string) *Load {
	path = tree.Normalize(d.root, path)

	d.lock()
	if fault, ok := d.faults[path]; ok {
		d.unlock()
		return fault
	}
	fault := newLoad()
	d.faults[path] = fault
	entry := *d.getPathLocked(path, false)
	d.unlock()

	go d.runFault(path, entry, fault)
	return fault
}

func (d *Directory) runFault(path string, entry PathEntry, fault *Load) {
	parent, err := d.await(d.ctx, entry)
	if err == nil {
		var g errgroup.Group
		for _, folder := range parent.Folders {
			g.Go(func() error {
				d.lock()
				child := *d.getPathLocked(d.root+folder, true)
				d.unlock()
				_, err := d.await(d.ctx, child)
				return err
			})
		}
		err = g.Wait()
	}

	d.lock()
	if err != nil {
		delete(d.faults, path)
		logging.Warn("Fault-in failed", zap.String("path", path), zap.Error(err))
		fault.finish(nil, err)
	} else {
		fault.finish(&parent, nil)
	}
	d.unlock()
}

// await returns the resolved form of e, waiting for its load if needed.
func (d *Directory) await(ctx context.Context, e PathEntry) (PathEntry, error) {
	if e.Pending == nil {
		return e, nil
	}
	if err := e.Pending.Wait(ctx); err != nil {
		return PathEntry{}, err
	}
	return e.Pending.Entry(), nil
}

// Load fetches path and waits for it. It is GetPath for callers that want
// a resolved listing.
func (d *Directory) Load(ctx context.Context, path string, recursive bool) (PathEntry, error) {
	return d.await(ctx, d.GetPath(path, recursive))
}
