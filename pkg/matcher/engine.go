package matcher

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	re2 "github.com/wasilibs/go-re2"
)

// ErrInvalidPattern is returned when a rule pattern fails to compile.
var ErrInvalidPattern = errors.New("invalid pattern")

// Engine selects the regular expression implementation.
type Engine string

const (
	// EngineRegexp2 is a backtracking engine (lookarounds, backreferences)
	// with a per-match timeout. It accepts the widest range of rule syntax.
	EngineRegexp2 Engine = "regexp2"

	// EngineRE2 is a linear-time engine without backtracking features.
	EngineRE2 Engine = "re2"
)

// ParseEngine validates an engine name.
func ParseEngine(name string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(name))); e {
	case EngineRegexp2, EngineRE2:
		return e, nil
	case "":
		return EngineRegexp2, nil
	default:
		return "", fmt.Errorf("unknown regex engine %q (want %s or %s)", name, EngineRegexp2, EngineRE2)
	}
}

// Pattern is a compiled rule pattern.
// Implementations are safe for concurrent use.
type Pattern interface {
	// FindAll returns the byte spans of every non-overlapping match in content,
	// in order. Spans are [start, end) pairs.
	FindAll(content string) ([][2]int, error)
}

// Compile compiles pattern with the given engine.
// Failures wrap ErrInvalidPattern.
func Compile(pattern string, engine Engine, timeout time.Duration) (Pattern, error) {
	switch engine {
	case EngineRE2:
		re, err := re2.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return &re2Pattern{re: re}, nil
	case EngineRegexp2, "":
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		if timeout > 0 {
			re.MatchTimeout = timeout
		}
		return &regexp2Pattern{re: re}, nil
	default:
		return nil, fmt.Errorf("unknown regex engine %q", engine)
	}
}

// re2Pattern wraps github.com/wasilibs/go-re2, which reports byte offsets.
type re2Pattern struct {
	re *re2.Regexp
}

func (p *re2Pattern) FindAll(content string) ([][2]int, error) {
	idx := p.re.FindAllStringIndex(content, -1)
	spans := make([][2]int, 0, len(idx))
	for _, loc := range idx {
		spans = append(spans, [2]int{loc[0], loc[1]})
	}
	return spans, nil
}

// regexp2Pattern wraps github.com/dlclark/regexp2.
// regexp2 matches over runes, so its Index/Length are rune counts and are
// converted to byte offsets here.
type regexp2Pattern struct {
	re *regexp2.Regexp
}

func (p *regexp2Pattern) FindAll(content string) ([][2]int, error) {
	offsets := newRuneOffsets(content)

	var spans [][2]int
	m, err := p.re.FindStringMatch(content)
	for err == nil && m != nil {
		spans = append(spans, [2]int{
			offsets.byteOffset(m.Index),
			offsets.byteOffset(m.Index + m.Length),
		})
		m, err = p.re.FindNextMatch(m)
	}
	// Spans found before a timeout are still valid.
	return spans, err
}

// runeOffsets maps rune indexes to byte offsets. ASCII content maps 1:1 and
// needs no table.
type runeOffsets struct {
	table []int // nil when content is ASCII
}

func newRuneOffsets(s string) runeOffsets {
	if utf8.RuneCountInString(s) == len(s) {
		return runeOffsets{}
	}
	table := make([]int, 0, len(s)+1)
	for i := range s {
		table = append(table, i)
	}
	table = append(table, len(s))
	return runeOffsets{table: table}
}

func (r runeOffsets) byteOffset(runeIndex int) int {
	if r.table == nil {
		return runeIndex
	}
	if runeIndex >= len(r.table) {
		return r.table[len(r.table)-1]
	}
	return r.table[runeIndex]
}
