package matcher

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// Unit is one rule applied to the whole candidate file list.
//
// The pattern is compiled once per unit. Every file is read once through
// Source and matched whole-content; each distinct matched text in a file
// yields at most one Match (the first occurrence). Compile failures fail the
// unit; read and per-file match failures are logged and skip only that file.
type Unit struct {
	Rule    *types.Rule
	Files   []string // absolute candidate paths, shared read-only
	Root    string   // scan root, used for relative paths
	Source  Source
	Options Options
	Logger  *slog.Logger
}

// Run executes the unit. ctx is checked between files only; a unit that is
// inside a single regex evaluation cannot be interrupted.
func (u *Unit) Run(ctx context.Context) *types.RuleResult {
	started := time.Now()
	opts := u.Options.withDefaults()
	logger := u.logger().With("rule", u.Rule.Name)

	result := &types.RuleResult{RuleName: u.Rule.Name}
	defer func() { result.Duration = time.Since(started) }()

	pattern, err := Compile(u.Rule.Pattern, opts.Engine, opts.MatchTimeout)
	if err != nil {
		result.Status = types.RuleError
		result.Err = err
		return result
	}

	source := u.Source
	if source == nil {
		source = FileSource{}
	}

	dedup := NewDeduplicator()
	for _, path := range u.Files {
		if ctx.Err() != nil {
			logger.Warn("rule unit interrupted", "error", ctx.Err(), "files_read", result.FilesRead)
			break
		}

		content, err := source.Read(path)
		if err != nil {
			result.FilesFailed++
			logger.Error("skipping unreadable file", "path", path, "error", err)
			continue
		}
		result.FilesRead++

		u.matchContent(pattern, path, content, opts, dedup, logger)
	}

	result.Matches = dedup.Matches()
	result.Status = types.RuleCompleted
	return result
}

// matchContent applies pattern to one file's content and feeds the
// deduplicator.
func (u *Unit) matchContent(pattern Pattern, path, content string, opts Options, dedup *Deduplicator, logger *slog.Logger) {
	spans, err := pattern.FindAll(content)
	if err != nil {
		// regexp2 timeouts land here; spans found so far are kept.
		logger.Error("pattern evaluation failed", "path", path, "error", err, "partial_matches", len(spans))
	}

	relPath := u.relPath(path)
	for _, span := range spans {
		start, end := span[0], span[1]
		if start == end {
			continue
		}

		secret := content[start:end]
		fingerprint := types.ComputeFingerprint(path, secret)
		if dedup.Seen(fingerprint) {
			continue
		}

		snippet, window := ExtractSnippet(content, start, end, opts.TruncateLine, opts.TruncateOffset)
		m := &types.Match{
			RuleName:    u.Rule.Name,
			RelPath:     relPath,
			AbsPath:     path,
			Secret:      secret,
			Snippet:     snippet,
			Span:        types.OffsetSpan{Start: start, End: end},
			SnippetSpan: window,
			Fingerprint: fingerprint,
		}
		dedup.Add(m)

		logger.Debug("match found", "path", relPath, "secret", secret)
	}
}

func (u *Unit) relPath(path string) string {
	if u.Root == "" {
		return path
	}
	rel, err := filepath.Rel(u.Root, path)
	if err != nil {
		return path
	}
	return rel
}

func (u *Unit) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
