// Package growbuf implements the retry protocol of size-sensitive OS
// queries: call into the current buffer, double it while the call reports
// that the buffer is too small, and give up on any other failure or once
// the growth limit is reached.
package growbuf

import (
	"errors"
	"fmt"
)

var (
	// ErrSizeMismatch is returned by a Query to ask for a larger buffer
	ErrSizeMismatch = errors.New("buffer too small")

	// ErrLimit is returned when the buffer would have to grow past its limit
	ErrLimit = errors.New("buffer growth limit reached")
)

const (
	DefaultInitial = 1 << 20
	DefaultLimit   = 256 << 20
)

// Query fills buf. It returns ErrSizeMismatch (or an error wrapping it) when
// buf is too small; any other error is final.
type Query func(buf []byte) error

// Buffer holds the sizing policy for a Query
type Buffer struct {
	initial int
	limit   int
}

// New returns a Buffer that starts at initial bytes and never allocates more
// than limit bytes. Non-positive values select the defaults.
func New(initial, limit int) *Buffer {
	if initial <= 0 {
		initial = DefaultInitial
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if initial > limit {
		initial = limit
	}
	return &Buffer{initial: initial, limit: limit}
}

// Fill runs q until it succeeds and returns the buffer it succeeded with
func (b *Buffer) Fill(q Query) ([]byte, error) {
	size := b.initial
	for {
		buf := make([]byte, size)

		err := q(buf)
		if err == nil {
			return buf, nil
		}
		if !errors.Is(err, ErrSizeMismatch) {
			return nil, err
		}
		if size >= b.limit {
			return nil, fmt.Errorf("%w: %d bytes", ErrLimit, b.limit)
		}

		size *= 2
		if size > b.limit {
			size = b.limit
		}
	}
}
