// Package sink defines where decoded readings go. Implementations may be a
// pull-based gauge registry or a push-based row store; the pipeline calls
// Record once per field either way.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrSinkUnavailable wraps every failure reported by a sink.
var ErrSinkUnavailable = errors.New("metric sink unavailable")

// Labels identify the node a sample belongs to.
type Labels struct {
	UniqueID   string
	DeviceType string
}

// Sample is one field of one reading.
type Sample struct {
	Metric    string
	Value     float64
	Timestamp int64
	Labels    Labels
}

// Time returns the sample timestamp.
func (s Sample) Time() time.Time { return time.Unix(s.Timestamp, 0).UTC() }

// Sink records samples.
type Sink interface {
	Record(ctx context.Context, s Sample) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, s Sample) error

// Record implements Sink.
func (f Func) Record(ctx context.Context, s Sample) error { return f(ctx, s) }

// Multi fans a sample out to every sink. All sinks are called; failures are
// joined.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, s Sample) error {
	var errs []error
	for _, sk := range m {
		if err := sk.Record(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithTimeout bounds every Record call of next.
func WithTimeout(next Sink, d time.Duration) Sink {
	if d <= 0 {
		return next
	}
	return Func(func(ctx context.Context, s Sample) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.Record(ctx, s)
	})
}

// WithRetry retries failed Record calls with exponential backoff until
// maxElapsed passes. A zero maxElapsed disables retries.
func WithRetry(next Sink, maxElapsed time.Duration) Sink {
	if maxElapsed <= 0 {
		return next
	}
	return Func(func(ctx context.Context, s Sample) error {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 50 * time.Millisecond
		b.MaxElapsedTime = maxElapsed
		return backoff.Retry(func() error {
			return next.Record(ctx, s)
		}, backoff.WithContext(b, ctx))
	})
}

// Unavailable wraps err so callers can match ErrSinkUnavailable.
func Unavailable(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSinkUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrSinkUnavailable, name, err)
}
