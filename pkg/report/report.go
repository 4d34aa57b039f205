// Package report writes the human-readable scan report.
//
// A report is a header block followed by one section per rule that produced
// matches. The header truncates the file; every later write appends.
package report

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/praetorian-inc/appalyzer/pkg/matcher"
	"github.com/praetorian-inc/appalyzer/pkg/types"
)

const (
	// SectionBreak separates header and sections.
	SectionBreak = "************************************************************"

	// DateFormat is the timestamp layout used in headers and file names
	// (dd-mm-yy_HHMM).
	DateFormat = "02-01-06_1504"

	// DefaultSecretLimit is the display length of a secret, in runes.
	DefaultSecretLimit = 80
)

// Options configures a Reporter.
type Options struct {
	SecretLimit int // 0 uses DefaultSecretLimit, negative disables truncation
}

// Header describes the scan target.
type Header struct {
	Lines []string
	Date  time.Time
}

// Reporter serializes rule results into a report file.
// Write is safe for concurrent use; each section is appended with a single
// write while holding the lock, so sections never interleave.
type Reporter struct {
	path string
	opts Options

	mu       sync.Mutex
	sections []string
	matches  int
}

// New creates a Reporter for path. Nothing is written until WriteHeader.
func New(path string, opts Options) *Reporter {
	if opts.SecretLimit == 0 {
		opts.SecretLimit = DefaultSecretLimit
	}
	return &Reporter{path: path, opts: opts}
}

// Path returns the report file path.
func (r *Reporter) Path() string {
	return r.path
}

// WriteHeader creates or truncates the report file and writes the header.
func (r *Reporter) WriteHeader(h Header) error {
	var buf bytes.Buffer
	buf.WriteString(SectionBreak + "\n")
	for _, line := range h.Lines {
		buf.WriteString(line + "\n")
	}
	fmt.Fprintf(&buf, "Date: %s\n", h.Date.Format(DateFormat))
	buf.WriteString(SectionBreak + "\n\n")

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.WriteFile(r.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	r.sections = nil
	r.matches = 0
	return nil
}

// Write appends the section for one rule result. Results without matches
// are a no-op.
func (r *Reporter) Write(result *types.RuleResult) error {
	if result.Empty() {
		return nil
	}

	section := r.render(result)

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening report: %w", err)
	}
	if _, err := f.Write(section); err != nil {
		f.Close()
		return fmt.Errorf("appending %s section: %w", result.RuleName, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}

	r.sections = append(r.sections, result.RuleName)
	r.matches += len(result.Matches)
	return nil
}

// Sections returns the rule names written so far, in write order.
func (r *Reporter) Sections() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sections...)
}

// Matches returns the number of matches written so far.
func (r *Reporter) Matches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matches
}

func (r *Reporter) render(result *types.RuleResult) []byte {
	var b strings.Builder
	b.WriteString("[+]" + result.RuleName + "\n")
	b.WriteString(SectionBreak + "\n")
	for _, m := range result.Matches {
		fmt.Fprintf(&b, "- PATH: %s\n", m.RelPath)
		fmt.Fprintf(&b, "  RegEx: %s\n", result.RuleName)
		fmt.Fprintf(&b, "  SECRET: %s\n", matcher.TruncateSecret(strings.TrimSpace(m.Secret), r.opts.SecretLimit))
		fmt.Fprintf(&b, "  LINE: %s\n\n", m.Snippet)
	}
	b.WriteString(SectionBreak + "\n")
	return []byte(b.String())
}
