package frame

// ReadUint interprets b as an unsigned big-endian integer of arbitrary width.
// An empty slice yields 0. Only the low 64 bits survive for widths above 8.
func ReadUint(b []byte) uint64 {
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	return v
}
