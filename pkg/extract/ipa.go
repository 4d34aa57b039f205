package extract

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

const machOMIME = "application/x-mach-binary"

// IPA unpacks an iOS package and prepares its .app bundle for scanning:
// Mach-O binaries and asset catalogs get a ".strings" sibling with their
// printable runs, property lists get a ".json" sibling.
type IPA struct {
	Archive Archive
	Logger  *slog.Logger
}

// Name implements Extractor.
func (p *IPA) Name() string { return "ipa" }

// Extract implements Extractor. The returned directory is the first .app
// bundle in the package, in lexical order.
func (p *IPA) Extract(ctx context.Context, artifact, workDir string) (string, error) {
	logger := p.logger()

	archive := p.Archive
	archive.Logger = logger
	unzipped, err := archive.Extract(ctx, artifact, workDir)
	if err != nil {
		return "", err
	}

	appDir, err := findAppBundle(unzipped)
	if err != nil {
		return "", err
	}
	logger.Info("found app bundle", "path", appDir)

	files, err := bundleFiles(appDir)
	if err != nil {
		return "", err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.prepare(path, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return appDir, nil
}

// prepare writes the sidecar file for path, if any. Failures only lose that
// sidecar and are logged.
func (p *IPA) prepare(path string, logger *slog.Logger) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case ext == ".plist":
		out, err := PlistFileToJSON(path)
		if err != nil {
			logger.Error("failed to convert plist", "path", path, "error", err)
			return
		}
		logger.Debug("converted plist", "path", path, "out", out)
	case ext == ".car" || ext == ".mobileprovision" || isMachO(path):
		out, err := StringsFile(path)
		if err != nil {
			logger.Error("failed to extract strings", "path", path, "error", err)
			return
		}
		logger.Debug("extracted strings", "path", path, "out", out)
	}
}

func isMachO(path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return mtype.Is(machOMIME)
}

// findAppBundle returns the lexically first directory named *.app below root.
func findAppBundle(root string) (string, error) {
	var bundles []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root && strings.HasSuffix(strings.ToLower(d.Name()), ".app") {
			bundles = append(bundles, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("searching for app bundle: %w", err)
	}
	if len(bundles) == 0 {
		return "", fmt.Errorf("no .app bundle found in %s", root)
	}
	sort.Strings(bundles)
	return bundles[0], nil
}

// bundleFiles snapshots the regular files of the bundle before sidecars are
// added.
func bundleFiles(appDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(appDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing app bundle: %w", err)
	}
	return files, nil
}

func (p *IPA) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
