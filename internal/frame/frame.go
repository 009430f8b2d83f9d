package frame

import (
	"errors"
	"fmt"
)

const (
	// SignatureSize is the length of the detached Ed25519 signature trailing every packet.
	SignatureSize = 64
	// DeviceTypeSize is the length of the leading device type byte.
	DeviceTypeSize = 1
	// UniqueIDSize is the length of the node identity that follows the device type.
	UniqueIDSize = 8
	// HeaderSize covers the prefix shared by every device type.
	HeaderSize = DeviceTypeSize + UniqueIDSize
)

// ErrPacketTooShort is returned when a packet cannot hold a signature.
var ErrPacketTooShort = errors.New("packet too short")

// Packet is a raw radio packet split into the signed payload and its
// detached signature. Both slices alias Raw.
type Packet struct {
	Raw       []byte
	Payload   []byte
	Signature []byte
}

// Split separates the trailing signature from the signed payload.
func Split(raw []byte) (Packet, error) {
	if len(raw) < SignatureSize {
		return Packet{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrPacketTooShort, len(raw), SignatureSize)
	}
	cut := len(raw) - SignatureSize
	return Packet{
		Raw:       raw,
		Payload:   raw[:cut:cut],
		Signature: raw[cut:],
	}, nil
}

// Header is the device-independent prefix of a signed payload.
type Header struct {
	DeviceType byte
	UniqueID   uint64
	// Body holds the payload with the device type byte stripped; it still
	// starts with the unique id, which device decoders read again.
	Body []byte
}

// ParseHeader reads the device type byte and the node identity. The identity
// is resolved before any device-specific decoding so sessions can be looked up
// independently of the layout.
func ParseHeader(payload []byte) (Header, error) {
	c := NewCursor(payload)
	typ, err := c.Uint(DeviceTypeSize)
	if err != nil {
		return Header{}, fmt.Errorf("device type: %w", err)
	}
	body := payload[c.Offset():]
	id, err := c.Uint(UniqueIDSize)
	if err != nil {
		return Header{}, fmt.Errorf("unique id: %w", err)
	}
	return Header{DeviceType: byte(typ), UniqueID: id, Body: body}, nil
}
