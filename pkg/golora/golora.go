package golora

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/golora/internal/crypto"
	"github.com/d21d3q/golora/internal/driver"
	"github.com/d21d3q/golora/internal/ingest"
	"github.com/d21d3q/golora/internal/options"
	"github.com/d21d3q/golora/internal/reading"
	"github.com/d21d3q/golora/internal/session"
	"github.com/d21d3q/golora/internal/sink"
	"github.com/d21d3q/golora/internal/source"
)

// ErrAuthentication is returned when the packet signature does not verify.
var ErrAuthentication = crypto.ErrAuthentication

// Result captures the outcome of AnalyzeHex.
type Result struct {
	Driver     string
	RawHex     string
	ByteCount  int
	NodeID     string
	DeviceType string
	Reading    reading.Reading
	Fields     map[string]any
	// Samples lists the metric names a sink would receive, in order.
	Samples []string
}

// String renders a human-readable representation of the result.
func (r Result) String() string {
	summary := map[string]any{
		"driver":     r.Driver,
		"byte_count": r.ByteCount,
		"raw_hex":    r.RawHex,
	}
	if r.NodeID != "" {
		summary["node_id"] = r.NodeID
	}
	if r.DeviceType != "" {
		summary["device_type"] = r.DeviceType
	}
	if len(r.Fields) > 0 {
		summary["fields"] = r.Fields
	}
	if len(r.Samples) > 0 {
		summary["samples"] = r.Samples
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("driver: %s bytes:%d raw:%s (marshal error: %v)", r.Driver, r.ByteCount, r.RawHex, err)
	}
	return string(data)
}

// AnalyzeHex verifies and decodes a hex packet with the default trusted key.
func AnalyzeHex(ctx context.Context, raw string) (Result, error) {
	return AnalyzeHexWithOptions(ctx, raw, AnalyzeOptions{})
}

// AnalyzeHexWithOptions verifies and decodes a hex packet. Packets with an
// unknown device type return a result with driver "unknown" and no error.
func AnalyzeHexWithOptions(ctx context.Context, raw string, opts AnalyzeOptions) (Result, error) {
	ctx, err := opts.toInternal(ctx)
	if err != nil {
		return Result{}, err
	}
	data, err := source.DecodeHex(raw)
	if err != nil {
		return Result{}, err
	}
	key := options.TrustedKey(ctx)
	if key == nil {
		key = crypto.DefaultTrustedKey
	}
	verifier, err := crypto.NewVerifier(key)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Driver:    "unknown",
		RawHex:    strings.ToUpper(hex.EncodeToString(data)),
		ByteCount: len(data),
	}
	collect := sink.Func(func(_ context.Context, s sink.Sample) error {
		result.Samples = append(result.Samples, s.Metric)
		return nil
	})
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	p := ingest.New(verifier, session.NewMemoryStore(), collect, ingest.WithLogger(logger))

	res, err := p.Handle(ctx, data)
	switch res.Outcome {
	case ingest.OutcomeAuthFailed:
		return result, ErrAuthentication
	case ingest.OutcomeUnknownDevice:
		result.DeviceType = res.DeviceType.String()
		return result, nil
	}
	if err != nil {
		return result, err
	}
	drv := driver.MustLookup(res.DeviceType)
	result.Driver = drv.Name()
	result.NodeID = res.NodeID.String()
	result.DeviceType = res.DeviceType.String()
	result.Reading = res.Reading
	fields, err := readingFields(res.Reading)
	if err != nil {
		return result, err
	}
	result.Fields = fields
	return result, nil
}

func readingFields(r reading.Reading) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	// Numbers stay json.Number so 64-bit ids keep full precision.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode reading: %w", err)
	}
	return fields, nil
}

// SignHex signs a hex payload with a hex Ed25519 seed and returns the packet
// as hex, ready to be replayed through AnalyzeHex or the exporter.
func SignHex(payloadHex, seedHex string) (string, error) {
	payload, err := source.DecodeHex(payloadHex)
	if err != nil {
		return "", err
	}
	seed, err := options.ParseKeyHex(seedHex)
	if err != nil {
		return "", err
	}
	if seed == nil {
		return "", fmt.Errorf("signing seed is required")
	}
	packet, err := crypto.Sign(seed, payload)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(packet)), nil
}

// PublicKeyHex returns the public key matching a hex Ed25519 seed.
func PublicKeyHex(seedHex string) (string, error) {
	seed, err := options.ParseKeyHex(seedHex)
	if err != nil {
		return "", err
	}
	pub, err := crypto.PublicKeyFromSeed(seed)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub), nil
}
