package environmental

import (
	"fmt"
	"math"

	"github.com/d21d3q/golora/internal/frame"
	"github.com/d21d3q/golora/internal/reading"
)

const (
	uniqueIDLen    = 8
	timeLen        = 8
	temperatureLen = 2
	humidityLen    = 2
	co2Len         = 2
	tvocLen        = 2
	ethanolLen     = 2
	aqiLen         = 1

	temperatureFactor = 100
	temperatureOffset = 300
	humidityFactor    = 100
)

// PayloadLen is the body length after the device type byte.
const PayloadLen = uniqueIDLen + timeLen + temperatureLen + humidityLen + co2Len + tvocLen + ethanolLen + aqiLen

// Driver decodes ENS160 + AHT21 air quality node payloads.
type Driver struct{}

// Name returns the canonical driver name.
func (Driver) Name() string { return "ens160_aht21" }

// MinLength returns the number of body bytes Decode requires.
func (Driver) MinLength() int { return PayloadLen }

// Decode parses body, the payload with the device type byte stripped.
func (Driver) Decode(body []byte) (reading.Reading, error) {
	if len(body) < PayloadLen {
		return nil, fmt.Errorf("%w: environmental payload needs %d bytes, got %d", frame.ErrShortBuffer, PayloadLen, len(body))
	}
	c := frame.NewCursor(body)
	var r reading.Environmental
	var raw uint64
	var err error

	if r.UniqueID, err = c.Uint(uniqueIDLen); err != nil {
		return nil, fmt.Errorf("unique id: %w", err)
	}
	if r.DeviceTime, err = c.Uint(timeLen); err != nil {
		return nil, fmt.Errorf("time: %w", err)
	}
	if raw, err = c.Uint(temperatureLen); err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}
	r.Temperature = float64(raw)/temperatureFactor - temperatureOffset
	if raw, err = c.Uint(humidityLen); err != nil {
		return nil, fmt.Errorf("humidity: %w", err)
	}
	r.Humidity = float64(raw) / humidityFactor
	if raw, err = c.Uint(co2Len); err != nil {
		return nil, fmt.Errorf("co2: %w", err)
	}
	r.CO2 = uint16(raw)
	if raw, err = c.Uint(tvocLen); err != nil {
		return nil, fmt.Errorf("tvoc: %w", err)
	}
	r.TVOC = uint16(raw)
	if raw, err = c.Uint(ethanolLen); err != nil {
		return nil, fmt.Errorf("ethanol: %w", err)
	}
	r.Ethanol = uint16(raw)
	if raw, err = c.Uint(aqiLen); err != nil {
		return nil, fmt.Errorf("aqi: %w", err)
	}
	r.AQI = uint8(raw)
	return r, nil
}

// Encode lays r out as a body, inverting the scaling applied by Decode.
func Encode(r reading.Environmental) []byte {
	out := make([]byte, 0, PayloadLen)
	out = putUint(out, r.UniqueID, uniqueIDLen)
	out = putUint(out, r.DeviceTime, timeLen)
	out = putUint(out, uint64(math.Round((r.Temperature+temperatureOffset)*temperatureFactor)), temperatureLen)
	out = putUint(out, uint64(math.Round(r.Humidity*humidityFactor)), humidityLen)
	out = putUint(out, uint64(r.CO2), co2Len)
	out = putUint(out, uint64(r.TVOC), tvocLen)
	out = putUint(out, uint64(r.Ethanol), ethanolLen)
	return putUint(out, uint64(r.AQI), aqiLen)
}

func putUint(dst []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}
