package light

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/golora/internal/frame"
	"github.com/d21d3q/golora/internal/reading"
)

func TestDecode(t *testing.T) {
	body := []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x12, 0x34,
		0x4B,
		0x00, 0x01, 0x86, 0xA0,
	}
	got, err := (Driver{}).Decode(body)
	require.NoError(t, err)
	r := got.(reading.Light)
	require.Equal(t, uint64(0x1234), r.UniqueID)
	require.InDelta(t, 0.75, r.Battery, 1e-9)
	require.InDelta(t, 1000.0, r.Illuminance, 1e-9)
}

func TestRoundTrip(t *testing.T) {
	want := reading.Light{UniqueID: 0xFEEDFACE, Battery: 2.55, Illuminance: 123.45}
	body := Encode(want)
	require.Len(t, body, PayloadLen)
	got, err := (Driver{}).Decode(body)
	require.NoError(t, err)
	r := got.(reading.Light)
	require.Equal(t, want.UniqueID, r.UniqueID)
	require.InDelta(t, want.Battery, r.Battery, 1e-9)
	require.InDelta(t, want.Illuminance, r.Illuminance, 1e-9)
}

func TestDecodeTruncated(t *testing.T) {
	body := Encode(reading.Light{UniqueID: 1})
	_, err := (Driver{}).Decode(body[:PayloadLen-1])
	require.ErrorIs(t, err, frame.ErrShortBuffer)
}

func TestFields(t *testing.T) {
	fields := reading.Light{UniqueID: 3, Battery: 3.3, Illuminance: 5}.Fields()
	require.Equal(t, []reading.Field{{Name: "battery", Value: 3.3}, {Name: "illuminance", Value: 5}}, fields)
}
