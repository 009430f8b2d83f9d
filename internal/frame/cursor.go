package frame

import (
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a field extends past the end of the buffer.
var ErrShortBuffer = errors.New("buffer too short")

// Cursor walks a byte slice field by field. Every read is checked against the
// remaining length; a failed read leaves the cursor where it was.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset reports how many bytes have been consumed.
func (c *Cursor) Offset() int { return c.off }

// Remaining reports how many bytes are left.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// Next consumes n bytes.
func (c *Cursor) Next(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative field width %d", n)
	}
	if n > c.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, c.off, c.Remaining())
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Uint consumes an n-byte big-endian unsigned field.
func (c *Cursor) Uint(n int) (uint64, error) {
	b, err := c.Next(n)
	if err != nil {
		return 0, err
	}
	return ReadUint(b), nil
}
