package options

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

const keySize = 32

type contextKey struct{}

// WithTrustedKey stores the provided public key inside the context.
func WithTrustedKey(ctx context.Context, key []byte) context.Context {
	if len(key) == 0 {
		return ctx
	}
	buf := make([]byte, len(key))
	copy(buf, key)
	return context.WithValue(ctx, contextKey{}, buf)
}

// TrustedKey retrieves the public key from context if present.
func TrustedKey(ctx context.Context) []byte {
	if v := ctx.Value(contextKey{}); v != nil {
		if key, ok := v.([]byte); ok {
			return key
		}
	}
	return nil
}

// ParseKeyHex validates and decodes a 64-hex-digit Ed25519 key (public key or
// private seed). Empty input yields a nil key.
func ParseKeyHex(input string) ([]byte, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	clean := StripWhitespace(input)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if len(clean) != keySize*2 {
		return nil, fmt.Errorf("Ed25519 key must be %d hex digits (%d bytes), got %d", keySize*2, keySize, len(clean))
	}
	dst := make([]byte, keySize)
	if _, err := hex.Decode(dst, []byte(clean)); err != nil {
		return nil, fmt.Errorf("invalid key hex: %w", err)
	}
	return dst, nil
}

// StripWhitespace drops spaces and the '|' and '_' separators used when
// pasting annotated hex dumps.
func StripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '|' || r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
