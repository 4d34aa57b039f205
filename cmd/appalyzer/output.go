package main

import (
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/praetorian-inc/appalyzer/pkg/scanner"
	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// styles holds the console color formatters.
type styles struct {
	banner  *color.Color
	heading *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
}

func newStyles(enabled bool) *styles {
	s := &styles{
		banner:  color.New(color.Bold, color.FgHiGreen),
		heading: color.New(color.Bold),
		good:    color.New(color.FgHiGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.Bold, color.FgHiRed),
	}

	if !enabled {
		s.banner.DisableColor()
		s.heading.DisableColor()
		s.good.DisableColor()
		s.warn.DisableColor()
		s.bad.DisableColor()
	}

	return s
}

// applyColorMode sets color.NoColor from the --color flag.
func applyColorMode(mode string) error {
	switch mode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto", "":
		// Check if stdout is a TTY and NO_COLOR is not set
		color.NoColor = !term.IsTerminal(int(os.Stdout.Fd())) || os.Getenv("NO_COLOR") != ""
	default:
		return fmt.Errorf("unknown color mode: %s (want auto, always or never)", mode)
	}
	return nil
}

// stylesFor applies the color mode and returns matching styles.
func stylesFor(mode string) (*styles, error) {
	if err := applyColorMode(mode); err != nil {
		return nil, err
	}
	return newStyles(!color.NoColor), nil
}

func printBanner(w io.Writer, s *styles) {
	s.banner.Fprintf(w, "appalyzer v%s", version)
	fmt.Fprintln(w, " - application secret scanner")
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, s *styles, summary *scanner.Summary) {
	s.heading.Fprintln(w, "Scan complete")
	fmt.Fprintf(w, "  Scan ID:  %s\n", summary.ScanID)
	fmt.Fprintf(w, "  Files:    %s\n", humanize.Comma(int64(summary.Files)))
	fmt.Fprintf(w, "  Rules:    %d (%s completed", summary.Rules, s.good.Sprintf("%d", summary.Completed))
	if summary.Failed > 0 {
		fmt.Fprintf(w, ", %s failed", s.bad.Sprintf("%d", summary.Failed))
	}
	if summary.TimedOut > 0 {
		fmt.Fprintf(w, ", %s timed out", s.warn.Sprintf("%d", summary.TimedOut))
	}
	fmt.Fprintln(w, ")")

	matches := fmt.Sprintf("%d", summary.Matches)
	if summary.Matches > 0 {
		matches = s.warn.Sprint(matches)
	}
	fmt.Fprintf(w, "  Matches:  %s in %d rule sections\n", matches, len(summary.Sections))
	fmt.Fprintf(w, "  Report:   %s\n", summary.ReportPath)

	for _, name := range slices.Sorted(maps.Keys(summary.PerRule)) {
		rs := summary.PerRule[name]
		switch rs.Status {
		case types.RuleError:
			fmt.Fprintf(w, "  %s %s: %v\n", s.bad.Sprint("[!]"), name, rs.Err)
		case types.RuleTimedOut:
			fmt.Fprintf(w, "  %s %s: timed out after %s\n", s.warn.Sprint("[!]"), name, rs.Duration.Round(time.Second))
		}
	}
}

// formatElapsed renders a duration as seconds, or as minutes with one
// decimal once it exceeds a minute.
func formatElapsed(d time.Duration) string {
	if d > time.Minute {
		return fmt.Sprintf("Search execution took %.1f minutes", math.Round(d.Minutes()*10)/10)
	}
	return fmt.Sprintf("Search execution took %.2f seconds", d.Seconds())
}
