// Package window implements a sliding byte buffer addressed by absolute stream
// positions.
//
// Bytes are appended at the end of the filled region and released from the
// front with Advance. Released bytes can never be read again. The buffer
// compacts in place before it grows, so memory is bounded by the largest range
// that is retained at one time rather than by the length of the stream.
//
//	+---+---+---+---+---+---+---+---+---+---+---+---+
//	| released  |        retained        |   free   |
//	+---+---+---+---+---+---+---+---+---+---+---+---+
//	^           ^                        ^          ^
//	base        Advanced()               Filled()   cap
package window

import (
	"errors"
	"fmt"
)

var ErrOutOfRange = errors.New("window range is not retained")
var ErrInvalidAdvance = errors.New("window cannot advance to position")

// RangeError reports an access to positions the window does not hold.
type RangeError struct {
	Op       string
	From, To int64

	Advanced, Filled int64
	Err              error
}

func (e *RangeError) Error() string {
	if e.Op == "advance" {
		return fmt.Sprintf("window: advance to %d: retained range is [%d, %d]", e.To, e.Advanced, e.Filled)
	}
	return fmt.Sprintf("window: read [%d, %d): retained range is [%d, %d)", e.From, e.To, e.Advanced, e.Filled)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

const minBufferSize = 8192

type Window struct {
	buf []byte
	// absolute position of buf[0]
	base int64
	// index in buf of the first retained byte
	released int
}

func New() *Window {
	return &Window{}
}

// NewSize creates a window whose backing storage starts with the given capacity.
func NewSize(size int) *Window {
	return &Window{buf: make([]byte, 0, size)}
}

// Advanced returns the minimum position that can still be read.
func (w *Window) Advanced() int64 {
	return w.base + int64(w.released)
}

// Filled returns the position just past the last appended byte.
func (w *Window) Filled() int64 {
	return w.base + int64(len(w.buf))
}

// Retained returns the number of bytes currently held.
func (w *Window) Retained() int {
	return len(w.buf) - w.released
}

// Append adds bytes to the end of the filled region.
func (w *Window) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	w.reserve(len(p))
	w.buf = append(w.buf, p...)
}

// AppendByte adds a single byte to the end of the filled region.
func (w *Window) AppendByte(b byte) {
	w.reserve(1)
	w.buf = append(w.buf, b)
}

// Write implements io.Writer. It never fails.
func (w *Window) Write(p []byte) (int, error) {
	w.Append(p)
	return len(p), nil
}

func (w *Window) reserve(n int) {
	if cap(w.buf)-len(w.buf) >= n {
		return
	}

	retained := w.Retained()
	if w.released > 0 && cap(w.buf)-retained >= n && retained < cap(w.buf)/2 {
		// enough room once the released prefix is dropped
		copy(w.buf[:retained], w.buf[w.released:])
		w.buf = w.buf[:retained]
		w.base += int64(w.released)
		w.released = 0
		return
	}

	size := max(2*cap(w.buf), retained+n, minBufferSize)
	newBuf := make([]byte, retained, size)
	copy(newBuf, w.buf[w.released:])
	w.buf = newBuf
	w.base += int64(w.released)
	w.released = 0
}

// Read returns the bytes in [from, to). The returned slice aliases the window
// and is only valid until the next call to Append or Advance.
func (w *Window) Read(from, to int64) ([]byte, error) {
	if from < w.Advanced() || to > w.Filled() || from > to {
		return nil, &RangeError{Op: "read", From: from, To: to, Advanced: w.Advanced(), Filled: w.Filled(), Err: ErrOutOfRange}
	}
	return w.buf[from-w.base : to-w.base : to-w.base], nil
}

// Advance releases every byte before the given position. Advancing to the
// current position again is a no-op.
func (w *Window) Advance(to int64) error {
	if to < w.Advanced() || to > w.Filled() {
		return &RangeError{Op: "advance", To: to, Advanced: w.Advanced(), Filled: w.Filled(), Err: ErrInvalidAdvance}
	}
	w.released = int(to - w.base)
	if w.released == len(w.buf) {
		// nothing retained, restart at the front of the buffer
		w.base += int64(w.released)
		w.buf = w.buf[:0]
		w.released = 0
	}
	return nil
}

// Release drops the backing storage. Positions keep their meaning: the window
// behaves as if everything up to Filled had been advanced past.
func (w *Window) Release() {
	w.base = w.Filled()
	w.buf = nil
	w.released = 0
}
