package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// ErrUnsafePath is returned for archive entries that would land outside the
// extraction directory.
var ErrUnsafePath = errors.New("archive entry escapes extraction directory")

// Default extraction limits.
const (
	DefaultMaxEntries    = 200000
	DefaultMaxTotalBytes = 8 << 30
)

// Archive unpacks zip-family (.zip, .jar, .apk, .ipa), 7z and tar archives
// into workDir/unzipped.
type Archive struct {
	MaxEntries    int   // 0 uses DefaultMaxEntries
	MaxTotalBytes int64 // 0 uses DefaultMaxTotalBytes
	Logger        *slog.Logger
}

// Name implements Extractor.
func (a *Archive) Name() string { return "archive" }

// Extract implements Extractor.
func (a *Archive) Extract(ctx context.Context, artifact, workDir string) (string, error) {
	dest := filepath.Join(workDir, "unzipped")
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}

	a.logger().Info("unpacking archive", "artifact", artifact, "dest", dest)

	w := &entryWriter{dest: dest, maxEntries: a.MaxEntries, maxBytes: a.MaxTotalBytes}
	if w.maxEntries <= 0 {
		w.maxEntries = DefaultMaxEntries
	}
	if w.maxBytes <= 0 {
		w.maxBytes = DefaultMaxTotalBytes
	}

	var err error
	switch Ext(artifact) {
	case ".7z":
		err = a.extract7z(ctx, artifact, w)
	case ".tar":
		err = a.extractTar(ctx, artifact, w, false)
	case ".tgz", ".tar.gz":
		err = a.extractTar(ctx, artifact, w, true)
	default:
		err = a.extractZip(ctx, artifact, w)
	}
	if err != nil {
		return "", fmt.Errorf("unpacking %s: %w", artifact, err)
	}

	a.logger().Debug("archive unpacked", "entries", w.entries, "bytes", w.written)
	return dest, nil
}

func (a *Archive) extractZip(ctx context.Context, artifact string, w *entryWriter) error {
	// safeJoin vets every name, so insecure paths are checked per entry.
	r, err := zip.OpenReader(artifact)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.write(f.Name, f.FileInfo(), f.Open); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) extract7z(ctx context.Context, artifact string, w *entryWriter) error {
	r, err := sevenzip.OpenReader(artifact)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.write(f.Name, f.FileInfo(), f.Open); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) extractTar(ctx context.Context, artifact string, w *entryWriter, gzipped bool) error {
	file, err := os.Open(artifact)
	if err != nil {
		return err
	}
	defer file.Close()

	var src io.Reader = file
	if gzipped {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer gz.Close()
		src = gz
	}

	tr := tar.NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return err
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeDir {
			// links and devices are never materialized
			continue
		}
		open := func() (io.ReadCloser, error) { return io.NopCloser(tr), nil }
		if err := w.write(hdr.Name, hdr.FileInfo(), open); err != nil {
			return err
		}
	}
}

func (a *Archive) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// entryWriter materializes archive entries below dest within limits.
type entryWriter struct {
	dest       string
	maxEntries int
	maxBytes   int64

	entries int
	written int64
}

func (w *entryWriter) write(name string, info fs.FileInfo, open func() (io.ReadCloser, error)) error {
	target, err := safeJoin(w.dest, name)
	if err != nil {
		return err
	}

	w.entries++
	if w.entries > w.maxEntries {
		return fmt.Errorf("archive has more than %d entries", w.maxEntries)
	}

	if info.IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	remaining := w.maxBytes - w.written
	n, err := io.Copy(out, io.LimitReader(rc, remaining+1))
	w.written += n
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if w.written > w.maxBytes {
		return fmt.Errorf("archive expands beyond %d bytes", w.maxBytes)
	}
	return nil
}

// safeJoin joins an archive entry name to dest, rejecting absolute names and
// names that climb out of dest.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}
