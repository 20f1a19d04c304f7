// Package ingest converts every supported document under a directory.
package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/calendar-converter/constants"
	"github.com/joseph-ayodele/calendar-converter/internal/ics"
)

// DocumentConverter is the part of the pipeline a directory run needs.
type DocumentConverter interface {
	ConvertDocument(ctx context.Context, content []byte, kind string) (ics.CalendarArtifact, error)
}

// FileResult is the per-file outcome.
type FileResult struct {
	SourcePath string
	OutputPath string
	HashHex    string
	UID        string
	Skipped    bool
	Err        string
}

// DirStats summarizes a directory run.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Skipped   uint32
	Failed    uint32
}

type Options struct {
	OutDir     string // empty -> next to each source file
	SkipHidden bool
	Overwrite  bool // re-convert when the .ics already exists
}

type DirectoryConverter struct {
	conv   DocumentConverter
	opts   Options
	logger *slog.Logger
}

func NewDirectoryConverter(conv DocumentConverter, opts Options, logger *slog.Logger) *DirectoryConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryConverter{conv: conv, opts: opts, logger: logger}
}

// Supported reports whether the extension names a convertible document.
func Supported(ext string) bool {
	_, ok := constants.ParseDocumentKind(ext)
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
