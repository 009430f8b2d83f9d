package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHexLines(t *testing.T) {
	input := "# captured packets\n01 02 03\n\nzz\n0xAB|CD_EF\n"
	src := NewHexLines(strings.NewReader(input))
	ctx := context.Background()

	p, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, p)

	_, err = src.Next(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 4")

	p, err = src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAB, 0xCD, 0xEF}, p)

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestHexLinesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHexLines(strings.NewReader("0102\n")).Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHexLinesCancelWhileBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := NewHexLines(pr)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := src.Next(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancellation")
	}

	go func() { _, _ = pw.Write([]byte("0A0B\n")) }()
	p, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0x0A, 0x0B}, p)
}

func TestHexLinesClose(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := NewHexLines(pr)
	src.Close()
	src.Close()
	_, err := src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestHexLinesReadErrorOnce(t *testing.T) {
	src := NewHexLines(failingReader{})
	_, err := src.Next(context.Background())
	require.EqualError(t, err, "device gone")
	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestDecodeHexOddLength(t *testing.T) {
	_, err := DecodeHex("ABC")
	require.Error(t, err)
}
