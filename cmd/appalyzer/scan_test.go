package main

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/appalyzer/pkg/extract"
	"github.com/praetorian-inc/appalyzer/pkg/rule"
	"github.com/praetorian-inc/appalyzer/pkg/store"
)

const testRules = `{"Test Token": "tok_[a-z0-9]{8}"}`

// resetScanFlags points the config at a fresh output directory and restores
// flag defaults. It returns the output directory.
func resetScanFlags(t *testing.T) string {
	t.Helper()
	outDir := t.TempDir()
	cfgFile := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(cfgFile, []byte("[default]\nOUTDIR_PATH = "+outDir+"\n"), 0644))

	configPath = cfgFile
	verbose = false
	quiet = true
	colorMode = "never"

	scanRulesPath = ""
	scanRulesInclude = ""
	scanRulesExclude = ""
	scanWorkers = 0
	scanTimeout = 0
	scanEngine = ""
	scanSkipHidden = false
	scanMaxFileSize = 0
	scanRespectGitignore = false
	scanCacheSize = -1
	scanDatastore = ""
	scanSARIF = ""
	scanCleanup = false
	scanNoBanner = true
	return outDir
}

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regexes.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	return cmd, &buf
}

func findReport(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(pattern)
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one report matching %s", pattern)
	return matches[0]
}

func TestRunScanDirectory(t *testing.T) {
	outDir := resetScanFlags(t)
	scanRulesPath = writeRules(t, testRules)

	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "app.js"), []byte("const t = 'tok_abcdef12';"), 0644))

	cmd, buf := newTestCommand()
	err := runScan(cmd, []string{target})
	require.NoError(t, err)

	report, err := os.ReadFile(findReport(t, filepath.Join(target, "dirscan_*_results.out")))
	require.NoError(t, err)
	assert.Contains(t, string(report), "Process Dir: "+target)
	assert.Contains(t, string(report), "[+]Test Token")
	assert.Contains(t, string(report), "- PATH: app.js")
	assert.Contains(t, string(report), "SECRET: tok_abcdef12")

	output := buf.String()
	assert.Contains(t, output, "Scan complete")
	assert.Contains(t, output, "Search execution took")

	_, err = os.Stat(filepath.Join(outDir, LogFileName))
	assert.NoError(t, err, "log file should be created in the output directory")
}

func TestRunScanExcludesOwnReport(t *testing.T) {
	resetScanFlags(t)
	scanRulesPath = writeRules(t, testRules)

	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "app.js"), []byte("tok_abcdef12"), 0644))

	cmd, _ := newTestCommand()
	require.NoError(t, runScan(cmd, []string{target}))

	report, err := os.ReadFile(findReport(t, filepath.Join(target, "dirscan_*_results.out")))
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(report, []byte("- PATH:")))
}

func TestRunScanArchiveWithCleanup(t *testing.T) {
	outDir := resetScanFlags(t)
	scanRulesPath = writeRules(t, testRules)
	scanCleanup = true

	dir := t.TempDir()
	artifact := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(artifact)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("assets/config.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"token": "tok_zz99yy88"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	cmd, _ := newTestCommand()
	require.NoError(t, runScan(cmd, []string{artifact}))

	report, err := os.ReadFile(findReport(t, filepath.Join(dir, "bundle.zip_*_results.out")))
	require.NoError(t, err)
	assert.Contains(t, string(report), "App: "+artifact)
	assert.Contains(t, string(report), "SECRET: tok_zz99yy88")
	assert.Contains(t, string(report), "- PATH: "+filepath.Join("assets", "config.json"))

	_, err = os.Stat(filepath.Join(outDir, "bundle"))
	assert.True(t, os.IsNotExist(err), "extraction directory should be removed")
}

func TestRunScanDatastoreAndSARIF(t *testing.T) {
	resetScanFlags(t)
	scanRulesPath = writeRules(t, testRules)
	scanDatastore = filepath.Join(t.TempDir(), "appalyzer.db")
	scanSARIF = filepath.Join(t.TempDir(), "results.sarif")

	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.txt"), []byte("tok_abcdef12 tok_abcdef12"), 0644))

	cmd, _ := newTestCommand()
	require.NoError(t, runScan(cmd, []string{target}))

	s, err := store.New(store.Config{Path: scanDatastore})
	require.NoError(t, err)
	defer s.Close()

	scans, err := s.GetScans()
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.False(t, scans[0].FinishedAt.IsZero())

	matches, err := s.GetMatches(scans[0].ID)
	require.NoError(t, err)
	require.Len(t, matches, 1, "duplicate secrets in one file are stored once")
	assert.Equal(t, "tok_abcdef12", matches[0].Secret)

	sarifData, err := os.ReadFile(scanSARIF)
	require.NoError(t, err)
	assert.Contains(t, string(sarifData), `"name": "appalyzer"`)
	assert.Contains(t, string(sarifData), "test-token")
}

func TestRunScanInvalidPatternNotFatal(t *testing.T) {
	resetScanFlags(t)
	scanRulesPath = writeRules(t, `{"Broken": "(unclosed", "Test Token": "tok_[a-z0-9]{8}"}`)

	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.txt"), []byte("tok_abcdef12"), 0644))

	cmd, buf := newTestCommand()
	require.NoError(t, runScan(cmd, []string{target}))
	assert.Contains(t, buf.String(), "1 failed")
	assert.Contains(t, buf.String(), "Broken")
}

func TestRunScanInvalidTarget(t *testing.T) {
	resetScanFlags(t)

	cmd, _ := newTestCommand()
	err := runScan(cmd, []string{"/nonexistent/path"})
	assert.Error(t, err, "should error on nonexistent target")
}

func TestRunScanUnsupportedArtifact(t *testing.T) {
	resetScanFlags(t)
	path := filepath.Join(t.TempDir(), "notes.docx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	cmd, _ := newTestCommand()
	err := runScan(cmd, []string{path})
	require.Error(t, err)
	assert.True(t, errors.Is(err, extract.ErrUnsupportedArtifact))
}

func TestRunScanMalformedRules(t *testing.T) {
	resetScanFlags(t)
	scanRulesPath = writeRules(t, `{"Broken": `)

	cmd, _ := newTestCommand()
	err := runScan(cmd, []string{t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rule.ErrMalformedRuleSource))
}

func TestRunScanBadFlags(t *testing.T) {
	tests := []struct {
		name  string
		setup func()
	}{
		{"engine", func() { scanEngine = "pcre" }},
		{"color", func() { colorMode = "sometimes" }},
		{"rules include", func() { scanRulesInclude = "(" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetScanFlags(t)
			tt.setup()

			cmd, _ := newTestCommand()
			assert.Error(t, runScan(cmd, []string{t.TempDir()}))
		})
	}
}

func TestLoadRulesFiltered(t *testing.T) {
	rules, err := loadRules("", "AWS", "")
	require.NoError(t, err)
	require.Greater(t, rules.Len(), 0)
	for _, name := range rules.Names() {
		assert.Contains(t, name, "AWS")
	}
}
