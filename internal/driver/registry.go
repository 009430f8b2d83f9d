package driver

import (
	"errors"
	"fmt"

	"github.com/d21d3q/golora/internal/driver/environmental"
	"github.com/d21d3q/golora/internal/driver/light"
	"github.com/d21d3q/golora/internal/reading"
)

var (
	ErrUnknownDeviceType = errors.New("unknown device type")
	ErrMalformedPayload  = errors.New("malformed payload")
)

// DeviceType identifies the sensor combination on a node and selects the
// payload layout.
type DeviceType byte

const (
	Environmental DeviceType = 0x01
	Light         DeviceType = 0x02
)

// String returns the label attached to emitted metrics.
func (d DeviceType) String() string {
	switch d {
	case Environmental:
		return "ens160_aht21"
	case Light:
		return "light"
	default:
		return fmt.Sprintf("0x%02X", byte(d))
	}
}

// Known reports whether a decoder exists for d.
func (d DeviceType) Known() bool {
	_, ok := Lookup(d)
	return ok
}

// Supported lists the device types with a decoder, ascending.
func Supported() []DeviceType {
	return []DeviceType{Environmental, Light}
}

type decoder interface {
	Name() string
	MinLength() int
	Decode(body []byte) (reading.Reading, error)
}

// Driver decodes the payload of one device type.
type Driver struct {
	typ  DeviceType
	impl decoder
}

// Lookup resolves the driver for a device type. The set of device types is
// fixed protocol knowledge; adding one means adding a case here.
func Lookup(d DeviceType) (Driver, bool) {
	switch d {
	case Environmental:
		return Driver{typ: d, impl: environmental.Driver{}}, true
	case Light:
		return Driver{typ: d, impl: light.Driver{}}, true
	default:
		return Driver{}, false
	}
}

// MustLookup is Lookup for device types known at compile time.
func MustLookup(d DeviceType) Driver {
	drv, ok := Lookup(d)
	if !ok {
		panic(fmt.Sprintf("driver: no decoder for device type %s", d))
	}
	return drv
}

// Name returns the canonical driver name.
func (d Driver) Name() string {
	if d.impl == nil {
		return "unknown"
	}
	return d.impl.Name()
}

// DeviceType returns the type this driver decodes.
func (d Driver) DeviceType() DeviceType { return d.typ }

// MinLength returns the body length Decode requires.
func (d Driver) MinLength() int {
	if d.impl == nil {
		return 0
	}
	return d.impl.MinLength()
}

// Decode parses body, the verified payload with the device type byte
// stripped. Short bodies fail with ErrMalformedPayload and yield no reading.
func (d Driver) Decode(body []byte) (reading.Reading, error) {
	if d.impl == nil {
		return nil, fmt.Errorf("%w %s", ErrUnknownDeviceType, d.typ)
	}
	r, err := d.impl.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, d.impl.Name(), err)
	}
	return r, nil
}
