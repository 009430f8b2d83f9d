package golora

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// FieldSet offers typed helpers on top of a result's field map.
type FieldSet struct {
	data map[string]any
}

// FieldSet returns a FieldSet wrapper for the result's fields.
func (r Result) FieldSet() FieldSet {
	return FieldSet{data: r.Fields}
}

// Map exposes the underlying map for callers that still need raw access.
func (fs FieldSet) Map() map[string]any {
	return fs.data
}

// Keys lists the field names, sorted.
func (fs FieldSet) Keys() []string {
	keys := make([]string, 0, len(fs.data))
	for k := range fs.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present.
func (fs FieldSet) Has(key string) bool {
	_, ok := fs.Raw(key)
	return ok
}

// Raw returns the stored value without conversions.
func (fs FieldSet) Raw(key string) (any, bool) {
	if fs.data == nil {
		return nil, false
	}
	v, ok := fs.data[key]
	return v, ok
}

// Float returns a numeric field as float64.
func (fs FieldSet) Float(key string) (float64, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case uint64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}

// Uint returns a numeric field as uint64 without passing through float64, so
// 64-bit node ids survive. Negative and fractional values are rejected.
func (fs FieldSet) Uint(key string) (uint64, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not an unsigned integer: %w", key, err)
		}
		return u, nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("field %q is negative: %d", key, n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n >= math.MaxUint64 {
			return 0, fmt.Errorf("field %q is not an unsigned integer: %v", key, n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}
