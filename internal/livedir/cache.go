package livedir

import (
	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
	"github.com/keenon/AddBiomechanics-sub000/pkg/tree"
)

// pathCache maps normalized paths to their latest snapshot. It is not safe
// for concurrent use; Directory serializes access.
type pathCache struct {
	root    string
	version uint64
	entries map[string]*PathEntry
}

func newPathCache(root string) *pathCache {
	return &pathCache{root: root, entries: make(map[string]*PathEntry)}
}

func (c *pathCache) get(path string) (*PathEntry, bool) {
	e, ok := c.entries[path]
	return e, ok
}

// put stamps e with the next version and stores it.
func (c *pathCache) put(e *PathEntry) *PathEntry {
	c.version++
	e.Version = c.version
	c.entries[e.Path] = e
	metrics.SetPathCacheEntries(c.root, len(c.entries))
	return e
}

func (c *pathCache) remove(path string) {
	delete(c.entries, path)
	metrics.SetPathCacheEntries(c.root, len(c.entries))
}

func (c *pathCache) len() int {
	return len(c.entries)
}

// lookup returns the exact entry for path. Failing that, it derives one from
// the nearest resolved recursive ancestor and caches it. The derived entry is
// stored silently: it reflects data already published for the ancestor.
func (c *pathCache) lookup(path string) (*PathEntry, bool) {
	if e, ok := c.entries[path]; ok {
		metrics.RecordCacheLookup("hit")
		return e, true
	}

	rel := tree.Relative(c.root, path)
	if rel == "" {
		metrics.RecordCacheLookup("miss")
		return nil, false
	}
	for _, anc := range tree.AncestorsOf(rel)[1:] {
		a, ok := c.entries[c.root+anc]
		if !ok || !a.Recursive || a.Loading {
			continue
		}
		files := tree.FilesUnder(rel, a.Files)
		derived := &PathEntry{
			Path:      path,
			Files:     files,
			Folders:   tree.FoldersFromFiles(rel, files),
			Recursive: true,
		}
		metrics.RecordCacheLookup("ancestor")
		return c.put(derived), true
	}

	metrics.RecordCacheLookup("miss")
	return nil, false
}

// stripRoot rewrites a store listing so keys and folders are relative to the
// directory root.
func stripRoot(root string, listing models.Listing) ([]models.FileRecord, []string) {
	files := make([]models.FileRecord, 0, len(listing.Files))
	for _, f := range listing.Files {
		f.Key = tree.Relative(root, f.Key)
		files = append(files, f)
	}
	folders := make([]string, 0, len(listing.Folders))
	for _, f := range listing.Folders {
		folders = append(folders, tree.Relative(root, f))
	}
	return files, folders
}
