// Package ingest authenticates, decodes and forwards radio packets.
//
// Packets are processed one at a time: verify the signature, resolve the
// driver from the device type byte, read the node identity, get or create the
// node session, decode the device fields and record every field in the sink.
package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/golora/internal/crypto"
	"github.com/d21d3q/golora/internal/driver"
	"github.com/d21d3q/golora/internal/frame"
	"github.com/d21d3q/golora/internal/reading"
	"github.com/d21d3q/golora/internal/session"
	"github.com/d21d3q/golora/internal/sink"
	"github.com/d21d3q/golora/internal/source"
)

// Outcome classifies what happened to a packet.
type Outcome int

const (
	OutcomeRecorded Outcome = iota
	OutcomeAuthFailed
	OutcomeUnknownDevice
	OutcomeMalformed
	OutcomeSessionFailed
	OutcomeSinkFailed
	numOutcomes
)

var outcomeNames = [numOutcomes]string{
	OutcomeRecorded:      "recorded",
	OutcomeAuthFailed:    "auth_failed",
	OutcomeUnknownDevice: "unknown_device",
	OutcomeMalformed:     "malformed",
	OutcomeSessionFailed: "session_failed",
	OutcomeSinkFailed:    "sink_failed",
}

func (o Outcome) String() string {
	if o < 0 || o >= numOutcomes {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Outcomes lists every outcome in order.
func Outcomes() []Outcome {
	out := make([]Outcome, 0, numOutcomes)
	for o := Outcome(0); o < numOutcomes; o++ {
		out = append(out, o)
	}
	return out
}

// Result describes one processed packet. NodeID and DeviceType are set once
// the corresponding bytes were read; Reading only on a successful decode.
type Result struct {
	Outcome    Outcome
	NodeID     reading.NodeID
	DeviceType driver.DeviceType
	Reading    reading.Reading
	Samples    int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithClock sets the receive-time source used to timestamp samples.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithObserver registers a callback invoked after every packet.
func WithObserver(fn func(Result)) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, fn) }
}

// Pipeline is a single logical ingestion stream.
type Pipeline struct {
	verifier *crypto.Verifier
	sessions session.Store
	sink     sink.Sink

	log       logrus.FieldLogger
	now       func() time.Time
	observers []func(Result)

	mu     sync.Mutex
	counts [numOutcomes]atomic.Uint64
}

// New returns a pipeline trusting verifier's key.
func New(verifier *crypto.Verifier, sessions session.Store, s sink.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		verifier: verifier,
		sessions: sessions,
		sink:     s,
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sessions returns the node session table.
func (p *Pipeline) Sessions() session.Store { return p.sessions }

// Stats returns the number of packets per outcome.
func (p *Pipeline) Stats() map[Outcome]uint64 {
	out := make(map[Outcome]uint64, numOutcomes)
	for o := Outcome(0); o < numOutcomes; o++ {
		out[o] = p.counts[o].Load()
	}
	return out
}

// Handle processes one raw packet. Unauthenticated packets and unknown device
// types are dropped silently with a nil error. Malformed payloads, session
// store and sink failures return an error for the operator; none of them
// leave the pipeline unusable.
func (p *Pipeline) Handle(ctx context.Context, raw []byte) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, err := p.handle(ctx, raw)
	p.counts[res.Outcome].Add(1)
	for _, fn := range p.observers {
		fn(res)
	}
	return res, err
}

func (p *Pipeline) handle(ctx context.Context, raw []byte) (Result, error) {
	verified, err := p.verifier.Open(raw)
	if err != nil {
		p.log.WithField("length", len(raw)).Debug("dropping packet: signature rejected")
		return Result{Outcome: OutcomeAuthFailed}, nil
	}
	payload := verified.Bytes()
	p.log.WithField("packet", hex.EncodeToString(raw)).Debug("verified packet")

	if len(payload) < frame.DeviceTypeSize {
		err := fmt.Errorf("%w: empty payload", driver.ErrMalformedPayload)
		p.log.WithError(err).Warn("dropping signed packet")
		return Result{Outcome: OutcomeMalformed}, err
	}
	typ := driver.DeviceType(payload[0])
	res := Result{DeviceType: typ}
	drv, ok := driver.Lookup(typ)
	if !ok {
		p.log.WithField("device_type", typ.String()).Debug("dropping packet: unknown device type")
		res.Outcome = OutcomeUnknownDevice
		return res, nil
	}

	hdr, err := frame.ParseHeader(payload)
	if err != nil {
		err = fmt.Errorf("%w: %s header: %w", driver.ErrMalformedPayload, drv.Name(), err)
		p.log.WithError(err).WithField("device_type", typ.String()).Warn("dropping signed packet")
		res.Outcome = OutcomeMalformed
		return res, err
	}
	res.NodeID = reading.NodeID(hdr.UniqueID)
	log := p.log.WithFields(logrus.Fields{"node_id": res.NodeID.String(), "device_type": typ.String()})

	sess, created, err := p.sessions.GetOrCreate(ctx, res.NodeID, typ)
	if err != nil {
		log.WithError(err).Error("session lookup failed")
		res.Outcome = OutcomeSessionFailed
		return res, fmt.Errorf("session for node %s: %w", res.NodeID, err)
	}
	if created {
		log.Info("new node")
	}

	r, err := drv.Decode(hdr.Body)
	if err != nil {
		log.WithError(err).Warn("dropping signed packet")
		res.Outcome = OutcomeMalformed
		return res, err
	}
	received := p.now()
	sess.Observe(r, received)
	res.Reading = r

	labels := sink.Labels{UniqueID: res.NodeID.String(), DeviceType: typ.String()}
	var errs []error
	for _, f := range r.Fields() {
		smp := sink.Sample{Metric: f.Name, Value: f.Value, Timestamp: received.Unix(), Labels: labels}
		if err := p.sink.Record(ctx, smp); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		res.Samples++
	}
	if len(errs) > 0 {
		err := sink.Unavailable("record", errors.Join(errs...))
		log.WithError(err).WithField("recorded", res.Samples).Error("storing reading failed")
		res.Outcome = OutcomeSinkFailed
		return res, err
	}
	log.WithField("samples", res.Samples).Debug("reading recorded")
	res.Outcome = OutcomeRecorded
	return res, nil
}

// Run feeds packets from src into the pipeline until src is exhausted or ctx
// ends. Packet-level failures never stop the loop.
func (p *Pipeline) Run(ctx context.Context, src source.Source) error {
	for {
		raw, err := src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			p.log.WithError(err).Warn("reading packet from source failed")
			continue
		}
		_, _ = p.Handle(ctx, raw)
	}
}
