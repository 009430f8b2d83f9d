// Package source delivers raw packets to the ingestion pipeline.
package source

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/d21d3q/golora/internal/options"
)

// Source yields one raw packet per call. It returns io.EOF once exhausted.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// HexLines reads hex-encoded packets, one per line. Blank lines and lines
// starting with '#' are skipped. Lines are scanned on a separate goroutine so
// Next honours cancellation while the reader blocks.
type HexLines struct {
	r         io.Reader
	start     sync.Once
	lines     chan scanned
	stop      chan struct{}
	closeOnce sync.Once
	line      int
}

type scanned struct {
	text string
	err  error
}

// NewHexLines returns a source reading from r.
func NewHexLines(r io.Reader) *HexLines {
	return &HexLines{
		r:     r,
		lines: make(chan scanned),
		stop:  make(chan struct{}),
	}
}

func (h *HexLines) scan() {
	defer close(h.lines)
	sc := bufio.NewScanner(h.r)
	for sc.Scan() {
		select {
		case h.lines <- scanned{text: sc.Text()}:
		case <-h.stop:
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case h.lines <- scanned{err: err}:
		case <-h.stop:
		}
	}
}

// Next implements Source. Malformed hex is reported as an error for that line
// only; the following call continues with the next line. A read error is
// returned once, followed by io.EOF. A line scanned while no caller waits is
// kept for the next call.
func (h *HexLines) Next(ctx context.Context) ([]byte, error) {
	h.start.Do(func() { go h.scan() })
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			s  scanned
			ok bool
		)
		select {
		case s, ok = <-h.lines:
		case <-h.stop:
			return nil, io.EOF
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if !ok {
			return nil, io.EOF
		}
		if s.err != nil {
			return nil, s.err
		}
		h.line++
		text := strings.TrimSpace(s.text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		packet, err := DecodeHex(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", h.line, err)
		}
		return packet, nil
	}
}

// Close stops the scanning goroutine and ends Next with io.EOF. A read
// already blocked in the underlying reader is abandoned, not interrupted.
func (h *HexLines) Close() {
	h.closeOnce.Do(func() { close(h.stop) })
}

// DecodeHex decodes a packet dump, tolerating whitespace, '|' and '_'
// separators and a 0x prefix.
func DecodeHex(input string) ([]byte, error) {
	clean := options.StripWhitespace(input)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex packet must contain an even number of digits, got %d", len(clean))
	}
	decoded := make([]byte, len(clean)/2)
	if _, err := hex.Decode(decoded, []byte(clean)); err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}
