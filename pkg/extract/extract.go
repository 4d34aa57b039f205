// Package extract turns an application artifact into a directory the scanner
// can walk. Each artifact type has its own Extractor; the scanner only ever
// sees the resulting directory.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnsupportedArtifact is returned for artifact types no extractor handles.
var ErrUnsupportedArtifact = errors.New("unsupported artifact")

// Extractor produces a scan root from an artifact.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// Extract unpacks artifact below workDir and returns the directory to
	// scan. Failures are fatal to the scan.
	Extract(ctx context.Context, artifact, workDir string) (string, error)
}

// Tools locates external decompilers. Empty fields fall back to the binary
// name on PATH.
type Tools struct {
	Jadx     string
	ILSpyCmd string
}

// Supported lists the artifact extensions ForArtifact accepts.
var Supported = []string{".apk", ".jar", ".ipa", ".dll", ".zip", ".7z", ".tar", ".tgz", ".tar.gz"}

// ForArtifact selects the extractor for path. Directories are scanned in
// place. Android packages fall back to plain unpacking when jadx is not
// installed.
func ForArtifact(path string, tools Tools, logger *slog.Logger) (Extractor, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", path, err)
	}
	if info.IsDir() {
		return Directory{}, nil
	}

	ext := Ext(path)
	switch ext {
	case ".apk", ".jar":
		jadx := toolPath(tools.Jadx, "jadx")
		if _, err := exec.LookPath(jadx); err != nil {
			logger.Warn("jadx not found, scanning unpacked archive instead", "jadx", jadx, "error", err)
			return &Archive{Logger: logger}, nil
		}
		return JadxDecompiler(jadx, logger), nil
	case ".dll":
		return ILSpyDecompiler(toolPath(tools.ILSpyCmd, "ilspycmd"), logger), nil
	case ".ipa":
		return &IPA{Logger: logger}, nil
	case ".zip", ".7z", ".tar", ".tgz", ".tar.gz":
		return &Archive{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedArtifact, ext, strings.Join(Supported, ", "))
	}
}

// Ext returns the lower-cased extension of path, treating ".tar.gz" as one
// extension.
func Ext(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") {
		return ".tar.gz"
	}
	return filepath.Ext(lower)
}

func toolPath(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

// Directory scans a directory in place.
type Directory struct{}

// Name implements Extractor.
func (Directory) Name() string { return "directory" }

// Extract returns artifact unchanged.
func (Directory) Extract(_ context.Context, artifact, _ string) (string, error) {
	info, err := os.Stat(artifact)
	if err != nil {
		return "", fmt.Errorf("inspecting %s: %w", artifact, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", artifact)
	}
	return artifact, nil
}
