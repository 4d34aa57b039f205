package matcher

import "time"

const (
	// DefaultTruncateLine is the content length (bytes) above which the
	// snippet is windowed around the match instead of holding the whole content.
	DefaultTruncateLine = 100

	// DefaultTruncateOffset is the number of context bytes kept on each side
	// of a match when the snippet is windowed.
	DefaultTruncateOffset = 80

	// DefaultMatchTimeout bounds a single regexp2 match attempt.
	DefaultMatchTimeout = 5 * time.Second
)

// Options configures matching behavior.
type Options struct {
	Engine         Engine        // regex implementation
	TruncateLine   int           // windowing threshold, see DefaultTruncateLine
	TruncateOffset int           // context bytes on each side, see DefaultTruncateOffset
	MatchTimeout   time.Duration // per-match timeout (regexp2 only, 0 = none)
}

// DefaultOptions returns the default matching options.
func DefaultOptions() Options {
	return Options{
		Engine:         EngineRegexp2,
		TruncateLine:   DefaultTruncateLine,
		TruncateOffset: DefaultTruncateOffset,
		MatchTimeout:   DefaultMatchTimeout,
	}
}

// withDefaults fills zero-valued fields.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Engine == "" {
		o.Engine = d.Engine
	}
	if o.TruncateLine <= 0 {
		o.TruncateLine = d.TruncateLine
	}
	if o.TruncateOffset <= 0 {
		o.TruncateOffset = d.TruncateOffset
	}
	return o
}
