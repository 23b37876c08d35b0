package engine

import "github.com/ehrlich-b/go-tmin/internal/constants"

// Buffer holds the accepted input B and a same-capacity scratch T. Both
// are allocated once at constants.MaxInputSize and never reallocated for
// the life of a run, the same hot-path-allocation discipline
// queue.BufferPool enforces with its size-bucketed sync.Pool.
type Buffer struct {
	b []byte
	t []byte
}

// NewBuffer copies initial into a freshly allocated accepted buffer.
func NewBuffer(initial []byte) *Buffer {
	b := make([]byte, len(initial), constants.MaxInputSize)
	copy(b, initial)
	return &Buffer{b: b, t: make([]byte, 0, constants.MaxInputSize)}
}

// Accepted returns the currently accepted buffer B.
func (buf *Buffer) Accepted() []byte { return buf.b }

// Scratch returns the scratch buffer T, reset to length n.
func (buf *Buffer) Scratch(n int) []byte {
	buf.t = buf.t[:0]
	for len(buf.t) < n {
		buf.t = append(buf.t, 0)
	}
	return buf.t
}

// Commit replaces B with data, copying into B's existing backing array.
func (buf *Buffer) Commit(data []byte) {
	buf.b = buf.b[:0]
	buf.b = append(buf.b, data...)
}
