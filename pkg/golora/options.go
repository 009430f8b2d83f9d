package golora

import (
	"context"

	internalopts "github.com/d21d3q/golora/internal/options"
)

// AnalyzeOptions configures parsing.
type AnalyzeOptions struct {
	// KeyHex overrides the trusted Ed25519 public key (64 hex digits).
	KeyHex string
}

func (opts AnalyzeOptions) toInternal(ctx context.Context) (context.Context, error) {
	key, err := internalopts.ParseKeyHex(opts.KeyHex)
	if err != nil {
		return ctx, err
	}
	return internalopts.WithTrustedKey(ctx, key), nil
}
