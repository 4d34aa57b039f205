// Package scanner drives a scan: it writes the report header, snapshots the
// candidate files, runs one matcher unit per rule on a bounded pool and hands
// each result to the report as it arrives.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/praetorian-inc/appalyzer/pkg/enum"
	"github.com/praetorian-inc/appalyzer/pkg/matcher"
	"github.com/praetorian-inc/appalyzer/pkg/report"
	"github.com/praetorian-inc/appalyzer/pkg/store"
	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// ErrUnitTimeout is recorded on rule units abandoned after UnitTimeout.
var ErrUnitTimeout = errors.New("rule unit timed out")

const (
	// DefaultWorkers bounds concurrently running rule units.
	DefaultWorkers = 10

	// DefaultUnitTimeout is the per-unit wall-clock bound.
	DefaultUnitTimeout = 15 * time.Minute
)

// Config configures a Scanner.
type Config struct {
	Workers     int           // pool size, 0 uses DefaultWorkers
	UnitTimeout time.Duration // per-unit bound, 0 uses DefaultUnitTimeout, negative waits forever

	Options     matcher.Options
	Source      matcher.Source // nil reads files directly
	SecretLimit int            // report display limit, see report.Options

	// Walk filters. Root and the report file name are set per scan.
	Exclude          []string
	SkipHidden       bool
	MaxFileSize      int64
	RespectGitignore bool

	Store  store.Store // optional sink
	Logger *slog.Logger
}

// Scanner runs scans of one rule set. A Scanner runs one scan at a time.
type Scanner struct {
	rules  *types.RuleSet
	config Config
	logger *slog.Logger
	state  atomic.Int32
}

// New creates a Scanner over rules.
func New(rules *types.RuleSet, config Config) *Scanner {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.UnitTimeout == 0 {
		config.UnitTimeout = DefaultUnitTimeout
	}
	if config.Source == nil {
		config.Source = matcher.FileSource{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Scanner{rules: rules, config: config, logger: logger}
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	return State(s.state.Load())
}

func (s *Scanner) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("scan state", "state", st.String())
}

// Scan runs every rule over the files under target.Root and writes the report.
//
// Fatal errors are a missing root, an unwritable report and a failed walk.
// Invalid patterns, unreadable files and timed-out units are logged and
// counted in the Summary. Cancelling ctx stops dispatching new units; units
// already running stop at their next file.
func (s *Scanner) Scan(ctx context.Context, target Target) (*Summary, error) {
	s.setState(StateIdle)
	defer s.setState(StateDone)

	started := time.Now()
	summary := &Summary{
		ScanID:     uuid.NewString(),
		ReportPath: target.ReportPath,
		Rules:      s.rules.Len(),
		PerRule:    make(map[string]RuleSummary),
	}
	logger := s.logger.With("scan_id", summary.ScanID)

	root, err := filepath.Abs(target.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", enum.ErrPathNotFound, target.Root)
		}
		return nil, fmt.Errorf("checking root: %w", err)
	}
	// the walker yields paths below the resolved root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	summary.Root = root

	date := target.Date
	if date.IsZero() {
		date = started
	}
	reporter := report.New(target.ReportPath, report.Options{SecretLimit: s.config.SecretLimit})
	if err := reporter.WriteHeader(report.Header{Lines: target.Header, Date: date}); err != nil {
		return nil, err
	}
	s.setState(StateHeaderWritten)

	if s.config.Store != nil {
		scan := &store.Scan{ID: summary.ScanID, Root: root, ReportPath: target.ReportPath, StartedAt: started}
		if err := s.config.Store.BeginScan(scan); err != nil {
			return nil, fmt.Errorf("recording scan: %w", err)
		}
	}

	files, err := s.walker(root, target.ReportPath).Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}
	summary.Files = len(files)
	if len(files) == 0 {
		logger.Info("empty corpus, nothing to scan", "root", root)
	}
	logger.Info("scan started", "root", root, "files", len(files), "rules", s.rules.Len(), "workers", s.config.Workers)

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := s.dispatch(scanCtx, root, files, logger)

	var fatal error
	for result := range results {
		if fatal != nil {
			continue
		}
		if err := s.collect(summary, reporter, result, logger); err != nil {
			fatal = err
			cancel()
		}
	}

	summary.Sections = reporter.Sections()
	summary.Duration = time.Since(started)

	if s.config.Store != nil {
		if err := s.config.Store.FinishScan(summary.ScanID, time.Now()); err != nil {
			logger.Error("failed to record scan end", "error", err)
		}
	}

	if fatal != nil {
		return summary, fatal
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	logger.Info("scan finished",
		"completed", summary.Completed,
		"failed", summary.Failed,
		"timed_out", summary.TimedOut,
		"matches", summary.Matches,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (s *Scanner) walker(root, reportPath string) enum.Walker {
	exclude := append([]string{filepath.Base(reportPath)}, s.config.Exclude...)
	return enum.NewFilesystemWalker(enum.Config{
		Root:             root,
		Exclude:          exclude,
		SkipHidden:       s.config.SkipHidden,
		MaxFileSize:      s.config.MaxFileSize,
		RespectGitignore: s.config.RespectGitignore,
		Logger:           s.logger,
	})
}

// dispatch starts one unit per rule, in rule order, never running more than
// Workers at once. The returned channel yields one result per dispatched
// unit in completion order and is closed once all of them reported.
func (s *Scanner) dispatch(ctx context.Context, root string, files []string, logger *slog.Logger) <-chan *types.RuleResult {
	rules := s.rules.Rules()
	results := make(chan *types.RuleResult, len(rules))
	sem := semaphore.NewWeighted(int64(s.config.Workers))

	s.setState(StateScanning)

	var wg sync.WaitGroup
	go func() {
		defer func() {
			wg.Wait()
			close(results)
		}()

		for i, r := range rules {
			if err := sem.Acquire(ctx, 1); err != nil {
				logger.Warn("scan cancelled, rules not dispatched", "remaining", len(rules)-i, "error", err)
				break
			}

			unit := &matcher.Unit{
				Rule:    r,
				Files:   files,
				Root:    root,
				Source:  s.config.Source,
				Options: s.config.Options,
				Logger:  logger,
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				s.await(ctx, unit, sem, results, logger)
			}()
		}
		s.setState(StateDraining)
	}()

	return results
}

// await runs unit and waits for it up to UnitTimeout. The result is sent
// before the pool slot is released so that with one worker results arrive in
// rule order. A unit still running at the deadline is abandoned: it keeps its
// goroutine until it returns, and its late result is dropped.
func (s *Scanner) await(ctx context.Context, unit *matcher.Unit, sem *semaphore.Weighted, results chan<- *types.RuleResult, logger *slog.Logger) {
	defer sem.Release(1)

	done := make(chan *types.RuleResult, 1)
	go func() {
		done <- unit.Run(ctx)
	}()

	var deadline <-chan time.Time
	if s.config.UnitTimeout > 0 {
		timer := time.NewTimer(s.config.UnitTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case result := <-done:
		results <- result
	case <-deadline:
		logger.Warn("rule unit still alive after timeout, abandoning", "rule", unit.Rule.Name, "timeout", s.config.UnitTimeout)
		results <- &types.RuleResult{
			RuleName: unit.Rule.Name,
			Status:   types.RuleTimedOut,
			Err:      ErrUnitTimeout,
			Duration: s.config.UnitTimeout,
		}
	case <-ctx.Done():
		logger.Warn("rule unit abandoned after cancellation", "rule", unit.Rule.Name)
		results <- &types.RuleResult{
			RuleName: unit.Rule.Name,
			Status:   types.RuleError,
			Err:      ctx.Err(),
		}
	}
}

// collect records one result. Only a failed report write is returned.
func (s *Scanner) collect(summary *Summary, reporter *report.Reporter, result *types.RuleResult, logger *slog.Logger) error {
	summary.PerRule[result.RuleName] = RuleSummary{
		Status:   result.Status,
		Matches:  len(result.Matches),
		Duration: result.Duration,
		Err:      result.Err,
	}

	switch result.Status {
	case types.RuleError:
		summary.Failed++
		logger.Error("skipping rule", "rule", result.RuleName, "error", result.Err)
	case types.RuleTimedOut:
		summary.TimedOut++
	default:
		summary.Completed++
		summary.Results = append(summary.Results, result)

		if result.Empty() {
			logger.Debug("rule produced no matches", "rule", result.RuleName, "duration", result.Duration)
		} else {
			if err := reporter.Write(result); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			summary.Matches += len(result.Matches)
			logger.Info("rule matched", "rule", result.RuleName, "matches", len(result.Matches), "duration", result.Duration)
		}
	}

	if s.config.Store != nil {
		if err := s.config.Store.AddRuleResult(summary.ScanID, result); err != nil {
			logger.Error("failed to store rule result", "rule", result.RuleName, "error", err)
		}
	}
	return nil
}
