package enum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FilesystemWalker enumerates regular files under a directory.
//
// Entries are visited in lexical order. Symbolic links below the root are
// never followed: symlinked files and directories are skipped. The root
// itself is resolved, so a root that is a symlink to a directory is walked.
type FilesystemWalker struct {
	config Config
}

// NewFilesystemWalker creates a new filesystem walker.
func NewFilesystemWalker(config Config) *FilesystemWalker {
	return &FilesystemWalker{config: config}
}

// Walk yields the absolute path of every candidate file.
// A missing root yields a single ErrPathNotFound error. An unreadable
// subdirectory is logged and skipped.
func (w *FilesystemWalker) Walk(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		root, err := w.resolveRoot()
		if err != nil {
			yield("", err)
			return
		}

		ignore := w.loadGitignore(root)
		logger := w.logger()

		stopped := false
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path != root && d != nil && d.IsDir() {
					logger.Warn("skipping unreadable directory", "path", path, "error", err)
					return filepath.SkipDir
				}
				if path != root && errors.Is(err, fs.ErrNotExist) {
					// removed mid-walk
					return nil
				}
				return err
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			if path != root && w.skip(root, path, d, ignore) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}

			if w.config.MaxFileSize > 0 {
				info, err := d.Info()
				if err != nil {
					logger.Warn("skipping file", "path", path, "error", err)
					return nil
				}
				if info.Size() > w.config.MaxFileSize {
					return nil
				}
			}

			if !yield(path, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// Files collects Walk into a slice.
func (w *FilesystemWalker) Files(ctx context.Context) ([]string, error) {
	files := []string{}
	for path, err := range w.Walk(ctx) {
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}

// resolveRoot makes the root absolute and resolves a symlinked root.
func (w *FilesystemWalker) resolveRoot() (string, error) {
	root, err := filepath.Abs(w.config.Root)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", w.config.Root, err)
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPathNotFound, w.config.Root)
		}
		return "", fmt.Errorf("resolving %s: %w", w.config.Root, err)
	}
	if _, err := os.Stat(resolved); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPathNotFound, w.config.Root)
		}
		return "", err
	}
	return resolved, nil
}

// skip reports whether an entry below the root is filtered out.
func (w *FilesystemWalker) skip(root, path string, d fs.DirEntry, ignore *gitignore.GitIgnore) bool {
	name := d.Name()

	if d.Type()&fs.ModeSymlink != 0 {
		return true
	}
	if w.config.SkipHidden && isHidden(name) {
		return true
	}
	if !d.IsDir() && slices.Contains(w.config.Exclude, name) {
		return true
	}

	if ignore != nil {
		rel, err := filepath.Rel(root, path)
		if err == nil && ignore.MatchesPath(filepath.ToSlash(rel)) {
			return true
		}
	}
	return false
}

func (w *FilesystemWalker) loadGitignore(root string) *gitignore.GitIgnore {
	if !w.config.RespectGitignore {
		return nil
	}
	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); err != nil {
		return nil
	}
	ignore, err := gitignore.CompileIgnoreFile(gitignorePath)
	if err != nil {
		w.logger().Warn("ignoring unreadable .gitignore", "path", gitignorePath, "error", err)
		return nil
	}
	return ignore
}

func (w *FilesystemWalker) logger() *slog.Logger {
	if w.config.Logger != nil {
		return w.config.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// isHidden checks if a filename is hidden (starts with .).
// The special entries "." and ".." are NOT considered hidden.
func isHidden(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
