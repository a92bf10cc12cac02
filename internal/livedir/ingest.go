package livedir

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/keenon/AddBiomechanics-sub000/internal/events"
	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
	"github.com/keenon/AddBiomechanics-sub000/pkg/tree"
)

const (
	originLocal = "local"
	originBus   = "bus"
)

func (d *Directory) handleMessage(msg events.Message) {
	if err := d.IngestMessage(msg); err != nil {
		logging.Warn("Dropping change event",
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
	}
}

// IngestMessage applies a change event received from the bus. Events for
// other deployments or outside the root are ignored.
func (d *Directory) IngestMessage(msg events.Message) error {
	eventType, payload, err := events.DecodeChange(msg)
	if err != nil {
		return err
	}
	deployment, _, _, err := events.ParseTopic(msg.Topic)
	if err != nil {
		return err
	}
	if deployment != d.deployment {
		return nil
	}
	return d.ingest(eventType, payload, originBus)
}

// ApplyUpdate records that payload.Key now exists with the given metadata.
func (d *Directory) ApplyUpdate(payload models.ChangePayload) error {
	return d.ingest(events.TypeUpdate, payload, originLocal)
}

// ApplyDelete records that payload.Key no longer exists.
func (d *Directory) ApplyDelete(payload models.ChangePayload) error {
	return d.ingest(events.TypeDelete, payload, originLocal)
}

// ingest applies one change at every cached ancestor of the key, in both
// trailing-slash spellings. Applying the same change twice is a no-op.
// Entries that are still loading are skipped; their listing will reflect
// the store.
func (d *Directory) ingest(eventType string, p models.ChangePayload, origin string) error {
	if p.Key == "" {
		return fmt.Errorf("change event has no key")
	}
	if eventType != events.TypeUpdate && eventType != events.TypeDelete {
		return fmt.Errorf("unknown change type %q", eventType)
	}
	if !strings.HasPrefix(p.Key, d.root) {
		return nil
	}
	metrics.RecordEventIngested(eventType, origin)

	local := tree.Relative(d.root, p.Key)
	segments := strings.Split(local, "/")
	record := p.Record(local)

	d.lock()
	defer d.unlock()

	seen := make(map[string]struct{})
	for i := len(segments); i >= 0; i-- {
		prefix := strings.Join(segments[:i], "/")
		spellings := []string{""}
		if prefix != "" {
			spellings = tree.Spellings(prefix)
		}
		for _, spelling := range spellings {
			if _, ok := seen[spelling]; ok {
				continue
			}
			seen[spelling] = struct{}{}

			full := d.root + spelling
			entry, ok := d.cache.get(full)
			if !ok {
				d.notifyUncached(full, eventType, record)
				continue
			}
			if entry.Loading {
				continue
			}
			if eventType == events.TypeUpdate {
				d.applyUpdate(entry, segments, i, record)
			} else {
				d.applyDelete(entry, spelling, i, record.Key)
			}
		}
	}
	return nil
}

// applyUpdate adds the implied child folder when the key lies deeper than
// the entry, and upserts the file when the entry can list it.
func (d *Directory) applyUpdate(entry *PathEntry, segments []string, depth int, rec models.FileRecord) {
	next := entry.clone()
	changed := false

	if depth+1 < len(segments) {
		folder := strings.Join(segments[:depth+1], "/") + "/"
		if !slices.Contains(next.Folders, folder) {
			next.Folders = append(next.Folders, folder)
			changed = true
		}
	}
	if next.Recursive || depth+1 == len(segments) {
		var upserted bool
		next.Files, upserted = upsertFile(next.Files, rec)
		changed = changed || upserted
	}

	if changed {
		d.commit(next)
	}
}

// applyDelete drops the file and, for recursive entries, re-derives folders.
// An entry left empty is removed from the folder list of its non-recursive
// parent. The cascade stops there.
func (d *Directory) applyDelete(entry *PathEntry, spelling string, depth int, key string) {
	next := entry.clone()
	next.Files, _ = removeFile(next.Files, key)
	if next.Recursive {
		next.Folders = tree.FoldersFromFiles(spelling, next.Files)
	}
	if len(next.Files) != len(entry.Files) || !slices.Equal(next.Folders, entry.Folders) {
		d.commit(next)
	}

	if depth > 0 && next.Empty() {
		d.dropFromParent(spelling)
	}
}

func (d *Directory) dropFromParent(prefix string) {
	folder := strings.TrimSuffix(prefix, "/") + "/"
	parent := tree.ParentPrefix(prefix)
	spellings := []string{""}
	if parent != "" {
		spellings = tree.Spellings(parent)
	}
	for _, spelling := range spellings {
		e, ok := d.cache.get(d.root + spelling)
		if !ok || e.Recursive || e.Loading {
			continue
		}
		next := e.clone()
		var removed bool
		if next.Folders, removed = removeFolder(next.Folders, folder); removed {
			d.commit(next)
		}
	}
}

// notifyUncached tells listeners of a path that has no cache entry what the
// change implies for it.
func (d *Directory) notifyUncached(path, eventType string, rec models.FileRecord) {
	if !d.notifier.has(path) {
		return
	}
	synthetic := PathEntry{Path: path, Files: []models.FileRecord{}, Folders: []string{}}
	if eventType == events.TypeUpdate {
		synthetic.Files = append(synthetic.Files, rec)
	}
	d.notify(synthetic)
}
