package extract

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/praetorian-inc/appalyzer/pkg/report"
)

// Timestamp formats now for work directory and report names.
func Timestamp(now time.Time) string {
	return now.Format(report.DateFormat)
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	if ext := Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, base[len(base)-len(ext):])
	}
	return base
}

// WorkDir returns the extraction directory for artifact:
// <outDir>/<stem>/<stem>_<timestamp>.
func WorkDir(outDir, artifact string, now time.Time) string {
	stem := Stem(artifact)
	return filepath.Join(outDir, stem, stem+"_"+Timestamp(now))
}

// ReportPath returns where the report for target goes. A directory gets
// dirscan_<timestamp>_results.out inside it; a file gets
// <name>_<timestamp>_results.out next to it.
func ReportPath(target string, isDir bool, now time.Time) string {
	ts := Timestamp(now)
	if isDir {
		return filepath.Join(target, "dirscan_"+ts+"_results.out")
	}
	return filepath.Join(filepath.Dir(target), filepath.Base(target)+"_"+ts+"_results.out")
}

// Describe returns the report header lines for target.
func Describe(target string) ([]string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return []string{"Process Dir: " + abs}, nil
	}

	sum, err := md5File(abs)
	if err != nil {
		return nil, err
	}
	return []string{
		"App: " + target,
		fmt.Sprintf("File Size: %s mb (%s)", formatMB(info.Size()), humanize.Bytes(uint64(info.Size()))),
		"Location: " + filepath.Dir(abs),
		"MD5 Sum: " + sum,
	}, nil
}

// Cleanup removes workDir, its per-artifact parent when left empty, and the
// decompiler cache next to artifact.
func Cleanup(workDir, artifact string) error {
	var errs []error
	if err := os.RemoveAll(workDir); err != nil {
		errs = append(errs, err)
	}

	// <outDir>/<stem> holds one directory per run; drop it once empty.
	parent := filepath.Dir(workDir)
	if entries, err := os.ReadDir(parent); err == nil && len(entries) == 0 {
		if err := os.Remove(parent); err != nil {
			errs = append(errs, err)
		}
	}

	cache := artifact + ".cache"
	if info, err := os.Stat(cache); err == nil && info.IsDir() {
		if err := os.RemoveAll(cache); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// formatMB renders size in MiB rounded to three decimals.
func formatMB(size int64) string {
	mb := math.Round(float64(size)/(1024*1024)*1000) / 1000
	return fmt.Sprintf("%.3f", mb)
}
