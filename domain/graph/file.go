// Package graph defines the nodes, edges and audit records of the file
// identity graph.
package graph

import (
	"fmt"
	"time"
)

// FileStatus is the processing state of a file.
type FileStatus string

// FileStatus values.
const (
	FileStatusPending   FileStatus = "pending"
	FileStatusOrganized FileStatus = "organized"
	FileStatusError     FileStatus = "error"
	FileStatusSkipped   FileStatus = "skipped"
)

// ParseFileStatus converts a string to a FileStatus.
func ParseFileStatus(s string) (FileStatus, error) {
	switch st := FileStatus(s); st {
	case FileStatusPending, FileStatusOrganized, FileStatusError, FileStatusSkipped:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown file status %q", ErrInvalidInput, s)
}

// File is a node identified by its content digest. Moving or renaming the
// file never changes its canonical id.
type File struct {
	id           int64
	canonicalID  string
	contentHash  string
	originalPath string
	currentPath  string
	pathHistory  []string
	size         int64
	mimeType     string
	status       FileStatus
	statusReason string
	sourceIDs    []string
	createdAt    time.Time
	updatedAt    time.Time
	organizedAt  *time.Time
}

// NewFile creates a pending File first observed at path.
func NewFile(canonicalID, contentHash, path string, size int64, mimeType string, now time.Time) File {
	history := []string{}
	if path != "" {
		history = append(history, path)
	}
	return File{
		canonicalID:  canonicalID,
		contentHash:  contentHash,
		originalPath: path,
		currentPath:  path,
		pathHistory:  history,
		size:         size,
		mimeType:     mimeType,
		status:       FileStatusPending,
		sourceIDs:    []string{canonicalID},
		createdAt:    now,
		updatedAt:    now,
	}
}

// ReconstructFile reconstructs a File from persistence.
func ReconstructFile(
	id int64,
	canonicalID, contentHash, originalPath, currentPath string,
	pathHistory []string,
	size int64,
	mimeType string,
	status FileStatus,
	statusReason string,
	sourceIDs []string,
	createdAt, updatedAt time.Time,
	organizedAt *time.Time,
) File {
	return File{
		id:           id,
		canonicalID:  canonicalID,
		contentHash:  contentHash,
		originalPath: originalPath,
		currentPath:  currentPath,
		pathHistory:  cloneStrings(pathHistory),
		size:         size,
		mimeType:     mimeType,
		status:       status,
		statusReason: statusReason,
		sourceIDs:    cloneStrings(sourceIDs),
		createdAt:    createdAt,
		updatedAt:    updatedAt,
		organizedAt:  organizedAt,
	}
}

// ID returns the storage surrogate key (0 if not persisted).
func (f File) ID() int64 { return f.id }

// CanonicalID returns the content-derived identifier.
func (f File) CanonicalID() string { return f.canonicalID }

// ContentHash returns the normalized content digest.
func (f File) ContentHash() string { return f.contentHash }

// OriginalPath returns the path the file was first observed at.
func (f File) OriginalPath() string { return f.originalPath }

// CurrentPath returns the most recently observed path.
func (f File) CurrentPath() string { return f.currentPath }

// PathHistory returns every distinct path the file has been seen at, oldest first.
func (f File) PathHistory() []string { return cloneStrings(f.pathHistory) }

// Size returns the size in bytes.
func (f File) Size() int64 { return f.size }

// MimeType returns the MIME type.
func (f File) MimeType() string { return f.mimeType }

// Status returns the processing status.
func (f File) Status() FileStatus { return f.status }

// StatusReason returns the message attached to the last status change.
func (f File) StatusReason() string { return f.statusReason }

// SourceIDs returns the historical identifiers of this node.
func (f File) SourceIDs() []string { return cloneStrings(f.sourceIDs) }

// CreatedAt returns the creation timestamp.
func (f File) CreatedAt() time.Time { return f.createdAt }

// UpdatedAt returns the last update timestamp.
func (f File) UpdatedAt() time.Time { return f.updatedAt }

// OrganizedAt returns when the file was last organized, if ever.
func (f File) OrganizedAt() (time.Time, bool) {
	if f.organizedAt == nil {
		return time.Time{}, false
	}
	return *f.organizedAt, true
}

// WithObservation returns a copy updated with a newer sighting of the same content.
func (f File) WithObservation(path string, size int64, mimeType string, now time.Time) File {
	f.pathHistory = cloneStrings(f.pathHistory)
	if path != "" {
		if f.originalPath == "" {
			f.originalPath = path
		}
		f.currentPath = path
		if !containsString(f.pathHistory, path) {
			f.pathHistory = append(f.pathHistory, path)
		}
	}
	if size > 0 {
		f.size = size
	}
	if mimeType != "" {
		f.mimeType = mimeType
	}
	f.updatedAt = now
	return f
}

// WithStatus returns a copy with a new status.
func (f File) WithStatus(status FileStatus, reason string, now time.Time) File {
	f.status = status
	f.statusReason = reason
	f.updatedAt = now
	if status == FileStatusOrganized {
		at := now
		f.organizedAt = &at
	}
	return f
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// UnionOrdered appends each id from extra that is not already in base,
// preserving first-seen order.
func UnionOrdered(base []string, extra ...[]string) []string {
	out := cloneStrings(base)
	for _, list := range extra {
		for _, id := range list {
			if !containsString(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}
