package generation

import "strings"

// Accumulator rebuilds a streamed response. Chunks must be appended in
// delivery order from a single goroutine.
type Accumulator struct {
	buf    strings.Builder
	chunks int
}

// Append adds chunk to the end of the content
func (a *Accumulator) Append(chunk string) {
	a.buf.WriteString(chunk)
	a.chunks++
}

// String returns everything appended so far
func (a *Accumulator) String() string {
	return a.buf.String()
}

// Len is the accumulated size in bytes
func (a *Accumulator) Len() int {
	return a.buf.Len()
}

// Chunks is the number of chunks appended
func (a *Accumulator) Chunks() int {
	return a.chunks
}

// Reset discards the content
func (a *Accumulator) Reset() {
	a.buf.Reset()
	a.chunks = 0
}
