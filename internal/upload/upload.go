// Package upload models document upload batches destined for the knowledge
// base. The three modes mirror the ways users hand over documents: a single
// file, an ad-hoc multi-file selection, or a folder whose relative layout is
// preserved.
package upload

import (
	"errors"
	"fmt"
)

// Mode identifies how an upload batch was assembled.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeMultiple Mode = "multiple"
	ModeFolder   Mode = "folder"
)

// KnowledgeTypeFile is the knowledge type recorded for uploaded documents.
const KnowledgeTypeFile = "file"

var (
	ErrNoFiles        = errors.New("upload has no files")
	ErrInvalidMode    = errors.New("invalid upload mode")
	ErrSingleFileMode = errors.New("single mode requires exactly one file")
	ErrMissingRelPath = errors.New("folder mode requires a relative path for every file")
)

// File is one document in an upload batch. RelPath is the path relative to
// the selected folder root and is only meaningful in folder mode.
type File struct {
	Name        string
	RelPath     string
	Size        int64
	ContentType string
	Content     []byte
}

// Request is a complete upload batch.
type Request struct {
	Mode          Mode
	KnowledgeType string
	Tags          []string
	Files         []File
}

// NewRequest assembles an upload batch with the file knowledge type.
func NewRequest(mode Mode, tags []string, files []File) Request {
	return Request{
		Mode:          mode,
		KnowledgeType: KnowledgeTypeFile,
		Tags:          tags,
		Files:         files,
	}
}

// Validate checks the mode-specific batch shape. It does not inspect file
// contents.
func (r Request) Validate() error {
	switch r.Mode {
	case ModeSingle, ModeMultiple, ModeFolder:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, r.Mode)
	}
	if len(r.Files) == 0 {
		return ErrNoFiles
	}
	if r.Mode == ModeSingle && len(r.Files) != 1 {
		return fmt.Errorf("%w, got %d", ErrSingleFileMode, len(r.Files))
	}
	if r.Mode == ModeFolder {
		for _, f := range r.Files {
			if f.RelPath == "" {
				return fmt.Errorf("%w: %s", ErrMissingRelPath, f.Name)
			}
		}
	}
	return nil
}

// TotalSize returns the combined byte size of the batch.
func (r Request) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}
