// Package tree provides path utilities for emulating folders on top of a flat,
// prefix-addressed object store where "/" acts as the separator.
package tree

import (
	"strings"

	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

// Root forces a non-empty root prefix to end with "/".
func Root(root string) string {
	if root != "" && !strings.HasSuffix(root, "/") {
		return root + "/"
	}
	return root
}

// Normalize strips a leading "/", collapses doubled separators and prepends
// the directory root.
func Normalize(root, path string) string {
	path = strings.TrimPrefix(path, "/")
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return Root(root) + path
}

// Relative strips the directory root from a full key.
func Relative(root, key string) string {
	return strings.TrimPrefix(key, Root(root))
}

// Spellings returns both trailing-slash spellings of a prefix. The object
// store cannot tell a file from a directory marker, so callers must check both.
func Spellings(prefix string) []string {
	if strings.HasSuffix(prefix, "/") {
		return []string{prefix, strings.TrimSuffix(prefix, "/")}
	}
	return []string{prefix, prefix + "/"}
}

// AncestorsOf returns every prefix of path at a "/" boundary, from the full
// path down to the empty root, each in both trailing-slash spellings.
// Duplicates are removed; order is most specific first.
func AncestorsOf(path string) []string {
	segments := strings.Split(path, "/")
	seen := make(map[string]struct{}, 2*len(segments)+2)
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for i := len(segments); i >= 0; i-- {
		prefix := strings.Join(segments[:i], "/")
		if prefix == "" {
			add("")
			continue
		}
		for _, s := range Spellings(prefix) {
			add(s)
		}
	}
	return out
}

// ChildFolder returns the folder (terminated by "/") that key falls into
// directly below basePath, or "" if key has no "/" after basePath.
func ChildFolder(basePath, key string) string {
	if !strings.HasPrefix(key, basePath) {
		return ""
	}
	rest := key[len(basePath):]
	lead := 0
	if strings.HasPrefix(rest, "/") {
		lead = 1
	} else if basePath != "" && !strings.HasSuffix(basePath, "/") {
		// "a/bc/y" is a sibling of "a/b", not inside it.
		return ""
	}
	idx := strings.Index(rest[lead:], "/")
	if idx < 0 {
		return ""
	}
	return key[:len(basePath)+lead+idx+1]
}

// FoldersFromFiles derives the first-level subfolders of basePath from a flat
// key list. This is the only way folder structure is built for recursive
// listings. Order follows first appearance.
func FoldersFromFiles(basePath string, files []models.FileRecord) []string {
	seen := make(map[string]struct{})
	folders := []string{}
	for _, f := range files {
		folder := ChildFolder(basePath, f.Key)
		if folder == "" {
			continue
		}
		if _, ok := seen[folder]; ok {
			continue
		}
		seen[folder] = struct{}{}
		folders = append(folders, folder)
	}
	return folders
}

// FilesUnder returns the files at or below prefix on a "/" boundary. For
// "a/b" that is "a/b" itself and keys under "a/b/", but not "a/bc/...".
func FilesUnder(prefix string, files []models.FileRecord) []models.FileRecord {
	if prefix == "" {
		return append([]models.FileRecord{}, files...)
	}
	dir := strings.TrimSuffix(prefix, "/") + "/"
	out := []models.FileRecord{}
	for _, f := range files {
		if f.Key == prefix || strings.HasPrefix(f.Key, dir) {
			out = append(out, f)
		}
	}
	return out
}

// ParentPrefix returns the prefix one "/" level above path, without a
// trailing slash. The parent of a single-segment path is "".
func ParentPrefix(path string) string {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
