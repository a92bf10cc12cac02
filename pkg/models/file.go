// Package models contains shared data types used across the live directory,
// the object stores and the event bus.
package models

import "time"

// FileRecord is one object in a directory listing. Key is relative to the
// directory root.
type FileRecord struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"lastModified"`
	Size         int64     `json:"size"`
}

// Listing is the result of listing a prefix in the object store.
// Folders is only populated for non-recursive listings and holds one level
// of common-prefix grouping, each terminated by "/".
type Listing struct {
	Files   []FileRecord `json:"files"`
	Folders []string     `json:"folders"`
}

// ChangePayload is the body of an UPDATE or DELETE message on the event bus.
// Key is the full object key, root prefix included. LastModified is in
// milliseconds since the Unix epoch.
type ChangePayload struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
}

// Record converts the payload to a FileRecord keyed by the given local key.
func (p ChangePayload) Record(localKey string) FileRecord {
	return FileRecord{
		Key:          localKey,
		LastModified: time.UnixMilli(p.LastModified),
		Size:         p.Size,
	}
}
