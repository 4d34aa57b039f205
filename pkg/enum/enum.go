package enum

import (
	"context"
	"errors"
	"iter"
	"log/slog"
)

// ErrPathNotFound is returned when the scan root does not exist.
var ErrPathNotFound = errors.New("path not found")

// Walker discovers candidate files to scan.
type Walker interface {
	// Walk yields absolute paths of candidate files. A non-nil error ends the
	// sequence.
	Walk(ctx context.Context) iter.Seq2[string, error]

	// Files returns a snapshot of every candidate file.
	Files(ctx context.Context) ([]string, error)
}

// Config for enumeration.
type Config struct {
	// Root is the starting path for enumeration. A regular file root yields
	// only itself.
	Root string

	// Exclude lists base names that are never yielded (report and log files).
	Exclude []string

	// SkipHidden skips files and directories whose name starts with a dot.
	SkipHidden bool

	// MaxFileSize is the maximum file size to yield (0 = no limit).
	MaxFileSize int64

	// RespectGitignore honors a .gitignore file at the root.
	RespectGitignore bool

	// Logger receives skipped-directory warnings. nil discards them.
	Logger *slog.Logger
}
