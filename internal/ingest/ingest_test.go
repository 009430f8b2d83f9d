package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/d21d3q/golora/internal/driver"
	"github.com/d21d3q/golora/internal/reading"
	"github.com/d21d3q/golora/internal/session"
	"github.com/d21d3q/golora/internal/sink"
	"github.com/d21d3q/golora/internal/source"
	"github.com/d21d3q/golora/internal/testutil"
)

var received = time.Unix(1700000000, 0)

type recorder struct {
	mu      sync.Mutex
	samples []sink.Sample
	fail    error
}

func (r *recorder) Record(_ context.Context, s sink.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.samples = append(r.samples, s)
	return nil
}

func newPipeline(t *testing.T, s sink.Sink) (*Pipeline, *session.MemoryStore, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	store := session.NewMemoryStore()
	p := New(testutil.Verifier(t), store, s,
		WithLogger(logger),
		WithClock(func() time.Time { return received }))
	return p, store, hook
}

func TestEndToEndEnvironmental(t *testing.T) {
	rec := &recorder{}
	p, store, hook := newPipeline(t, rec)
	packet := testutil.Sign(t, testutil.LoadBytes(t, "packets/environmental_zero.hex"))

	res, err := p.Handle(context.Background(), packet)
	require.NoError(t, err)
	require.Equal(t, OutcomeRecorded, res.Outcome)
	require.Equal(t, reading.NodeID(0xABCDEF), res.NodeID)
	require.Equal(t, driver.Environmental, res.DeviceType)

	env, ok := res.Reading.(reading.Environmental)
	require.True(t, ok)
	require.Equal(t, 0.0, env.Temperature)
	require.Equal(t, 45.0, env.Humidity)
	require.Equal(t, uint16(800), env.CO2)
	require.Equal(t, uint16(120), env.TVOC)
	require.Equal(t, uint16(50), env.Ethanol)
	require.Equal(t, uint8(2), env.AQI)

	require.Len(t, rec.samples, 8)
	names := make([]string, 0, len(rec.samples))
	for _, s := range rec.samples {
		names = append(names, s.Metric)
		require.Equal(t, sink.Labels{UniqueID: "0x0000000000ABCDEF", DeviceType: "ens160_aht21"}, s.Labels)
		require.Equal(t, received.Unix(), s.Timestamp)
	}
	require.Equal(t, []string{"unique_id", "device_time", "temperature", "humidity", "co2", "tvoc", "ethanol", "aqi"}, names)
	require.Equal(t, float64(0xABCDEF), rec.samples[0].Value)

	sess, ok := store.Get(0xABCDEF)
	require.True(t, ok)
	last, at := sess.Last()
	require.Equal(t, env, last)
	require.Equal(t, received, at)

	var sawNewNode bool
	for _, e := range hook.AllEntries() {
		if e.Message == "new node" {
			sawNewNode = true
		}
	}
	require.True(t, sawNewNode)
}

func TestLightPacketRecordsTwoSamples(t *testing.T) {
	rec := &recorder{}
	p, _, _ := newPipeline(t, rec)
	res, err := p.Handle(context.Background(), testutil.Sign(t, testutil.LoadBytes(t, "packets/light.hex")))
	require.NoError(t, err)
	require.Equal(t, OutcomeRecorded, res.Outcome)
	require.Equal(t, 2, res.Samples)
	require.Len(t, rec.samples, 2)
	require.Equal(t, "battery", rec.samples[0].Metric)
	require.InDelta(t, 0.75, rec.samples[0].Value, 1e-9)
	require.Equal(t, "illuminance", rec.samples[1].Metric)
	require.InDelta(t, 1000.0, rec.samples[1].Value, 1e-9)
	require.Equal(t, "light", rec.samples[1].Labels.DeviceType)
}

func TestSameNodeReusesSession(t *testing.T) {
	rec := &recorder{}
	p, store, hook := newPipeline(t, rec)
	packet := testutil.Sign(t, testutil.LoadBytes(t, "packets/environmental_zero.hex"))

	for i := 0; i < 2; i++ {
		res, err := p.Handle(context.Background(), packet)
		require.NoError(t, err)
		require.Equal(t, OutcomeRecorded, res.Outcome)
	}
	require.Equal(t, 1, store.Len())
	sess, _ := store.Get(0xABCDEF)
	require.Equal(t, uint64(2), sess.Packets())

	newNodes := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "new node" {
			newNodes++
		}
	}
	require.Equal(t, 1, newNodes)
}

func TestUnauthenticatedPacketDropped(t *testing.T) {
	rec := &recorder{}
	p, store, _ := newPipeline(t, rec)
	packet := testutil.Sign(t, testutil.LoadBytes(t, "packets/environmental_zero.hex"))
	packet[5] ^= 0x80

	res, err := p.Handle(context.Background(), packet)
	require.NoError(t, err)
	require.Equal(t, OutcomeAuthFailed, res.Outcome)
	require.Nil(t, res.Reading)
	require.Empty(t, rec.samples)
	require.Zero(t, store.Len())

	res, err = p.Handle(context.Background(), []byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, OutcomeAuthFailed, res.Outcome)
}

func TestUnknownDeviceTypeDropped(t *testing.T) {
	rec := &recorder{}
	p, store, _ := newPipeline(t, rec)
	res, err := p.Handle(context.Background(), testutil.Sign(t, testutil.LoadBytes(t, "packets/unknown_type.hex")))
	require.NoError(t, err)
	require.Equal(t, OutcomeUnknownDevice, res.Outcome)
	require.Equal(t, driver.DeviceType(0x7F), res.DeviceType)
	require.Zero(t, store.Len())
	require.Empty(t, rec.samples)
}

func TestMalformedPayloadRejected(t *testing.T) {
	rec := &recorder{}
	p, store, hook := newPipeline(t, rec)
	res, err := p.Handle(context.Background(), testutil.Sign(t, testutil.LoadBytes(t, "packets/environmental_truncated.hex")))
	require.ErrorIs(t, err, driver.ErrMalformedPayload)
	require.Equal(t, OutcomeMalformed, res.Outcome)
	require.Nil(t, res.Reading)
	require.Empty(t, rec.samples)

	sess, ok := store.Get(0xABCDEF)
	require.True(t, ok)
	last, _ := sess.Last()
	require.Nil(t, last)
	require.Zero(t, sess.Packets())
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestMalformedHeaderRejected(t *testing.T) {
	rec := &recorder{}
	p, store, _ := newPipeline(t, rec)
	for _, payload := range [][]byte{nil, {0x02, 0x00, 0x01}} {
		res, err := p.Handle(context.Background(), testutil.Sign(t, payload))
		require.ErrorIs(t, err, driver.ErrMalformedPayload)
		require.Equal(t, OutcomeMalformed, res.Outcome)
	}
	require.Zero(t, store.Len())
}

func TestSinkFailureStillObservesReading(t *testing.T) {
	rec := &recorder{fail: sink.Unavailable("test", errors.New("connection refused"))}
	p, store, hook := newPipeline(t, rec)
	res, err := p.Handle(context.Background(), testutil.Sign(t, testutil.LoadBytes(t, "packets/light.hex")))
	require.ErrorIs(t, err, sink.ErrSinkUnavailable)
	require.Equal(t, OutcomeSinkFailed, res.Outcome)
	require.NotNil(t, res.Reading)
	require.Zero(t, res.Samples)

	sess, ok := store.Get(0xDEADBEEF)
	require.True(t, ok)
	last, _ := sess.Last()
	require.NotNil(t, last)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

type brokenStore struct{ session.Store }

func (brokenStore) GetOrCreate(context.Context, reading.NodeID, driver.DeviceType) (*session.Session, bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

func TestSessionFailure(t *testing.T) {
	rec := &recorder{}
	p := New(testutil.Verifier(t), brokenStore{}, rec, WithLogger(logrus.New()))
	res, err := p.Handle(context.Background(), testutil.Sign(t, testutil.LoadBytes(t, "packets/light.hex")))
	require.Error(t, err)
	require.Equal(t, OutcomeSessionFailed, res.Outcome)
	require.Empty(t, rec.samples)
}

func TestRunContinuesAfterFailures(t *testing.T) {
	rec := &recorder{}
	var observed []Outcome
	logger, _ := test.NewNullLogger()
	p := New(testutil.Verifier(t), session.NewMemoryStore(), rec,
		WithLogger(logger),
		WithObserver(func(r Result) { observed = append(observed, r.Outcome) }))

	env := testutil.Sign(t, testutil.LoadBytes(t, "packets/environmental_zero.hex"))
	tampered := append([]byte(nil), env...)
	tampered[len(tampered)-1] ^= 0x01
	lines := []string{
		hexString(env),
		"not hex",
		hexString(tampered),
		hexString(testutil.Sign(t, testutil.LoadBytes(t, "packets/unknown_type.hex"))),
		hexString(testutil.Sign(t, testutil.LoadBytes(t, "packets/environmental_truncated.hex"))),
		hexString(testutil.Sign(t, testutil.LoadBytes(t, "packets/light.hex"))),
	}
	src := source.NewHexLines(strings.NewReader(strings.Join(lines, "\n")))

	require.NoError(t, p.Run(context.Background(), src))
	require.Equal(t, []Outcome{OutcomeRecorded, OutcomeAuthFailed, OutcomeUnknownDevice, OutcomeMalformed, OutcomeRecorded}, observed)

	stats := p.Stats()
	require.Equal(t, uint64(2), stats[OutcomeRecorded])
	require.Equal(t, uint64(1), stats[OutcomeAuthFailed])
	require.Equal(t, uint64(1), stats[OutcomeUnknownDevice])
	require.Equal(t, uint64(1), stats[OutcomeMalformed])
	require.Zero(t, stats[OutcomeSinkFailed])
	require.Equal(t, 2, p.Sessions().Len())
	require.Len(t, rec.samples, 10)
}

func TestRunStopsOnCancel(t *testing.T) {
	p, _, _ := newPipeline(t, &recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx, source.NewHexLines(strings.NewReader("0102\n")))
	require.ErrorIs(t, err, context.Canceled)
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "recorded", OutcomeRecorded.String())
	require.Equal(t, "sink_failed", OutcomeSinkFailed.String())
	require.Equal(t, "outcome(42)", Outcome(42).String())
	require.Len(t, Outcomes(), 6)
}

func hexString(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
