package light

import (
	"fmt"
	"math"

	"github.com/d21d3q/golora/internal/frame"
	"github.com/d21d3q/golora/internal/reading"
)

const (
	uniqueIDLen    = 8
	batteryLen     = 1
	illuminanceLen = 4

	batteryFactor     = 100.0
	illuminanceFactor = 100.0
)

// PayloadLen is the body length after the device type byte.
const PayloadLen = uniqueIDLen + batteryLen + illuminanceLen

// Driver decodes ambient light node payloads.
type Driver struct{}

// Name returns the canonical driver name.
func (Driver) Name() string { return "light" }

// MinLength returns the number of body bytes Decode requires.
func (Driver) MinLength() int { return PayloadLen }

// Decode parses body, the payload with the device type byte stripped.
func (Driver) Decode(body []byte) (reading.Reading, error) {
	if len(body) < PayloadLen {
		return nil, fmt.Errorf("%w: light payload needs %d bytes, got %d", frame.ErrShortBuffer, PayloadLen, len(body))
	}
	c := frame.NewCursor(body)
	var r reading.Light
	id, err := c.Uint(uniqueIDLen)
	if err != nil {
		return nil, fmt.Errorf("unique id: %w", err)
	}
	r.UniqueID = id
	battery, err := c.Uint(batteryLen)
	if err != nil {
		return nil, fmt.Errorf("battery: %w", err)
	}
	r.Battery = float64(battery) / batteryFactor
	lux, err := c.Uint(illuminanceLen)
	if err != nil {
		return nil, fmt.Errorf("illuminance: %w", err)
	}
	r.Illuminance = float64(lux) / illuminanceFactor
	return r, nil
}

// Encode lays r out as a body, inverting the scaling applied by Decode.
func Encode(r reading.Light) []byte {
	out := make([]byte, 0, PayloadLen)
	for i := uniqueIDLen - 1; i >= 0; i-- {
		out = append(out, byte(r.UniqueID>>(8*uint(i))))
	}
	out = append(out, byte(math.Round(r.Battery*batteryFactor)))
	lux := uint32(math.Round(r.Illuminance * illuminanceFactor))
	return append(out, byte(lux>>24), byte(lux>>16), byte(lux>>8), byte(lux))
}
