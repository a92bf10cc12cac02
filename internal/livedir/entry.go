package livedir

import (
	"context"
	"slices"

	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

// PathEntry is an immutable snapshot of the listing for one normalized path.
// Every committed change produces a new snapshot with a higher Version.
//
// When Recursive is true, Files covers the whole subtree under Path and
// Folders is derived from it. Otherwise both list immediate children only.
// File keys and folders are relative to the directory root.
type PathEntry struct {
	Path      string
	Loading   bool
	Pending   *Load
	Files     []models.FileRecord
	Folders   []string
	Recursive bool
	Version   uint64
}

// Empty reports whether the entry has no files and no folders.
func (e PathEntry) Empty() bool {
	return len(e.Files) == 0 && len(e.Folders) == 0
}

// Wait blocks until the entry's pending load, if any, completes.
func (e PathEntry) Wait(ctx context.Context) error {
	if e.Pending == nil {
		return nil
	}
	return e.Pending.Wait(ctx)
}

// HasFile reports whether key is listed in Files.
func (e PathEntry) HasFile(key string) bool {
	return indexOfFile(e.Files, key) >= 0
}

// clone copies the entry so it can be modified and committed as a new
// snapshot without aliasing the published one.
func (e *PathEntry) clone() *PathEntry {
	c := *e
	c.Files = slices.Clone(e.Files)
	c.Folders = slices.Clone(e.Folders)
	if c.Files == nil {
		c.Files = []models.FileRecord{}
	}
	if c.Folders == nil {
		c.Folders = []string{}
	}
	return &c
}

func indexOfFile(files []models.FileRecord, key string) int {
	return slices.IndexFunc(files, func(f models.FileRecord) bool { return f.Key == key })
}

// upsertFile inserts rec or refreshes the metadata of an existing record with
// the same key. It reports whether anything changed.
func upsertFile(files []models.FileRecord, rec models.FileRecord) ([]models.FileRecord, bool) {
	i := indexOfFile(files, rec.Key)
	if i < 0 {
		return append(files, rec), true
	}
	if files[i].Size == rec.Size && files[i].LastModified.Equal(rec.LastModified) {
		return files, false
	}
	files[i].Size = rec.Size
	files[i].LastModified = rec.LastModified
	return files, true
}

// removeFile drops the record for key if present.
func removeFile(files []models.FileRecord, key string) ([]models.FileRecord, bool) {
	i := indexOfFile(files, key)
	if i < 0 {
		return files, false
	}
	return slices.Delete(files, i, i+1), true
}

func removeFolder(folders []string, folder string) ([]string, bool) {
	i := slices.Index(folders, folder)
	if i < 0 {
		return folders, false
	}
	return slices.Delete(folders, i, i+1), true
}
