package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/appalyzer/pkg/config"
	"github.com/praetorian-inc/appalyzer/pkg/extract"
	"github.com/praetorian-inc/appalyzer/pkg/matcher"
	"github.com/praetorian-inc/appalyzer/pkg/rule"
	"github.com/praetorian-inc/appalyzer/pkg/sarif"
	"github.com/praetorian-inc/appalyzer/pkg/scanner"
	"github.com/praetorian-inc/appalyzer/pkg/store"
	"github.com/praetorian-inc/appalyzer/pkg/types"
)

var (
	scanRulesPath        string
	scanRulesInclude     string
	scanRulesExclude     string
	scanWorkers          int
	scanTimeout          time.Duration
	scanEngine           string
	scanSkipHidden       bool
	scanMaxFileSize      int64
	scanRespectGitignore bool
	scanCacheSize        int
	scanDatastore        string
	scanSARIF            string
	scanCleanup          bool
	scanNoBanner         bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir|artifact>",
	Short: "Scan a directory or application package for secrets",
	Long: `Scan a directory, or an application package (.apk, .jar, .ipa, .dll, .zip,
.7z, .tar, .tar.gz), for secrets. Packages are extracted below the configured
output directory first. The report is written next to the package, or inside
the directory for directory scans.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanRulesPath, "regex", "r", "", "Custom rules file (JSON object of name to pattern, or YAML)")
	scanCmd.Flags().StringVar(&scanRulesInclude, "rules-include", "", "Include rules whose name matches regex pattern (comma-separated)")
	scanCmd.Flags().StringVar(&scanRulesExclude, "rules-exclude", "", "Exclude rules whose name matches regex pattern (comma-separated)")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Concurrent rule workers (default from config, 10)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Time limit per rule (default from config, 15m)")
	scanCmd.Flags().StringVar(&scanEngine, "engine", "", "Regex engine: regexp2, re2 (default from config, regexp2)")
	scanCmd.Flags().BoolVar(&scanSkipHidden, "skip-hidden", false, "Skip hidden files and directories")
	scanCmd.Flags().Int64Var(&scanMaxFileSize, "max-file-size", 0, "Skip files larger than this many bytes (default from config, unlimited)")
	scanCmd.Flags().BoolVar(&scanRespectGitignore, "respect-gitignore", false, "Skip files matched by the root .gitignore")
	scanCmd.Flags().IntVar(&scanCacheSize, "cache-size", -1, "Files kept in the shared content cache, 0 disables it (default from config)")
	scanCmd.Flags().StringVar(&scanDatastore, "datastore", "", "Also record matches in this SQLite database")
	scanCmd.Flags().StringVar(&scanSARIF, "sarif", "", "Also write matches as SARIF to this file")
	scanCmd.Flags().BoolVar(&scanCleanup, "cleanup", false, "Remove the extraction directory when done")
	scanCmd.Flags().BoolVar(&scanNoBanner, "no-banner", false, "Do not print the banner")
}

func runScan(cmd *cobra.Command, args []string) error {
	started := time.Now()
	target := args[0]

	s, err := stylesFor(colorMode)
	if err != nil {
		return err
	}
	if !scanNoBanner {
		printBanner(cmd.ErrOrStderr(), s)
	}

	cfg, err := loadScanConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cmd.ErrOrStderr(), cfg.OutDir)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("log file", "path", filepath.Join(cfg.OutDir, LogFileName))
	if cfg.File != "" {
		logger.Debug("loaded config", "path", cfg.File)
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", target, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("target does not exist: %s", target)
	}

	rules, err := loadRules(cfg.RegexPath, scanRulesInclude, scanRulesExclude)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	if cfg.RegexPath == "" {
		logger.Info("using built-in rules", "rules", rules.Len())
	} else {
		logger.Info("using custom rules", "path", cfg.RegexPath, "rules", rules.Len())
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	now := time.Now()
	ex, err := extract.ForArtifact(abs, cfg.Tools(), logger)
	if err != nil {
		return err
	}

	var workDir string
	if !info.IsDir() {
		workDir = extract.WorkDir(cfg.OutDir, abs, now)
		if scanCleanup {
			defer cleanup(workDir, abs, logger)
		}
	}

	logger.Info("preparing target", "extractor", ex.Name(), "target", abs)
	root, err := ex.Extract(ctx, abs, workDir)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", target, err)
	}

	header, err := extract.Describe(abs)
	if err != nil {
		return fmt.Errorf("describing %s: %w", target, err)
	}

	var source matcher.Source = matcher.FileSource{}
	if cfg.CacheSize > 0 {
		cached := matcher.NewCachedSource(matcher.FileSource{}, cfg.CacheConfig())
		defer cached.Close()
		source = cached
	}

	var st store.Store
	if scanDatastore != "" {
		st, err = store.New(store.Config{Path: scanDatastore})
		if err != nil {
			return fmt.Errorf("opening datastore: %w", err)
		}
		defer st.Close()
	}

	opts := matcher.DefaultOptions()
	opts.Engine = cfg.Engine

	sc := scanner.New(rules, scanner.Config{
		Workers:          cfg.Workers,
		UnitTimeout:      cfg.UnitTimeout,
		Options:          opts,
		Source:           source,
		Exclude:          []string{LogFileName},
		SkipHidden:       scanSkipHidden,
		MaxFileSize:      cfg.MaxFileSize,
		RespectGitignore: scanRespectGitignore,
		Store:            st,
		Logger:           logger,
	})

	summary, err := sc.Scan(ctx, scanner.Target{
		Root:       root,
		ReportPath: extract.ReportPath(abs, info.IsDir(), now),
		Header:     header,
		Date:       now,
	})
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	if scanSARIF != "" {
		if err := sarif.FromResults(rules, summary.Results).WriteFile(scanSARIF); err != nil {
			return fmt.Errorf("writing SARIF: %w", err)
		}
		logger.Info("wrote SARIF", "path", scanSARIF)
	}

	out := cmd.OutOrStdout()
	printSummary(out, s, summary)
	fmt.Fprintln(out, formatElapsed(time.Since(started)))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// loadScanConfig loads the config file and applies command-line overrides.
func loadScanConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if scanRulesPath != "" {
		cfg.RegexPath = scanRulesPath
	}
	if scanWorkers > 0 {
		cfg.Workers = scanWorkers
	}
	if scanTimeout > 0 {
		cfg.UnitTimeout = scanTimeout
	}
	if scanEngine != "" {
		engine, err := matcher.ParseEngine(scanEngine)
		if err != nil {
			return nil, err
		}
		cfg.Engine = engine
	}
	if scanMaxFileSize > 0 {
		cfg.MaxFileSize = scanMaxFileSize
	}
	if scanCacheSize >= 0 {
		cfg.CacheSize = uint64(scanCacheSize)
	}

	return cfg, cfg.Validate()
}

func loadRules(path, include, exclude string) (*types.RuleSet, error) {
	loader := rule.NewLoader()

	var rules *types.RuleSet
	var err error

	if path != "" {
		rules, err = loader.LoadFile(path)
	} else {
		rules, err = loader.LoadBuiltin()
	}
	if err != nil {
		return nil, err
	}

	// Apply filtering if patterns specified
	if include != "" || exclude != "" {
		rules, err = rule.Filter(rules, rule.FilterConfig{
			Include: rule.ParsePatterns(include),
			Exclude: rule.ParsePatterns(exclude),
		})
		if err != nil {
			return nil, fmt.Errorf("filtering rules: %w", err)
		}
	}

	return rules, nil
}

func cleanup(workDir, artifact string, logger *slog.Logger) {
	logger.Info("cleaning up working directories", "path", workDir)
	if err := extract.Cleanup(workDir, artifact); err != nil {
		logger.Warn("cleanup incomplete", "error", err)
	}
}
