package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Decompiler runs an external decompiler that writes sources into a
// directory. The scan root is workDir itself.
type Decompiler struct {
	Tool   string
	Binary string
	// Args builds the command line from the output directory and artifact.
	Args   func(outDir, artifact string) []string
	Logger *slog.Logger
}

// JadxDecompiler decompiles Android packages and jars with jadx.
func JadxDecompiler(binary string, logger *slog.Logger) *Decompiler {
	return &Decompiler{
		Tool:   "jadx",
		Binary: binary,
		Args: func(outDir, artifact string) []string {
			return []string{"--output-dir", outDir, artifact}
		},
		Logger: logger,
	}
}

// ILSpyDecompiler decompiles .NET assemblies with ilspycmd.
func ILSpyDecompiler(binary string, logger *slog.Logger) *Decompiler {
	return &Decompiler{
		Tool:   "ilspycmd",
		Binary: binary,
		Args: func(outDir, artifact string) []string {
			return []string{"--outputdir", outDir, artifact}
		},
		Logger: logger,
	}
}

// Name implements Extractor.
func (d *Decompiler) Name() string { return d.Tool }

// Extract implements Extractor.
//
// A missing binary is an error. A non-zero exit is only an error when the
// decompiler produced no output at all; decompilers commonly exit non-zero
// after skipping a few classes.
func (d *Decompiler) Extract(ctx context.Context, artifact, workDir string) (string, error) {
	logger := d.logger()

	binary, err := exec.LookPath(d.Binary)
	if err != nil {
		return "", fmt.Errorf("%s not found (configure its path): %w", d.Tool, err)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", workDir, err)
	}

	args := d.Args(workDir, artifact)
	logger.Info("decompiling", "tool", d.Tool, "artifact", artifact)
	logger.Debug("decompile command", "command", binary+" "+strings.Join(args, " "))

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return "", fmt.Errorf("running %s: %w", d.Tool, runErr)
		}
		if empty, _ := isEmptyDir(workDir); empty {
			return "", fmt.Errorf("%s failed with exit code %d: %s", d.Tool, exitErr.ExitCode(), lastLines(output.String(), 5))
		}
		logger.Warn("decompiler reported errors, scanning partial output", "tool", d.Tool, "exit_code", exitErr.ExitCode())
	}

	logger.Debug("decompiler output", "tool", d.Tool, "output", lastLines(output.String(), 20))
	return workDir, nil
}

func (d *Decompiler) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
