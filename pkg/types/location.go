package types

// OffsetSpan is byte range [Start, End) - half-open interval.
type OffsetSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s OffsetSpan) Len() int {
	return s.End - s.Start
}

// Valid reports whether 0 <= Start <= End <= size.
func (s OffsetSpan) Valid(size int) bool {
	return s.Start >= 0 && s.Start <= s.End && s.End <= size
}

// Contains reports whether other lies entirely within s.
func (s OffsetSpan) Contains(other OffsetSpan) bool {
	return s.Start <= other.Start && other.End <= s.End
}
