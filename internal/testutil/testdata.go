package testutil

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/d21d3q/golora/internal/crypto"
)

// Seed is the private key seed test packets are signed with.
var Seed = bytes.Repeat([]byte{0x5A}, crypto.SeedSize)

// PublicKey returns the public key matching Seed.
func PublicKey(t testing.TB) []byte {
	t.Helper()
	pub, err := crypto.PublicKeyFromSeed(Seed)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	return pub
}

// Verifier returns a verifier trusting PublicKey.
func Verifier(t testing.TB) *crypto.Verifier {
	t.Helper()
	v, err := crypto.NewVerifier(PublicKey(t))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

// Sign appends a valid signature to payload.
func Sign(t testing.TB, payload []byte) []byte {
	t.Helper()
	packet, err := crypto.Sign(Seed, payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return packet
}

// LoadJSON loads a JSON fixture from testdata relative to the repo root.
func LoadJSON(t testing.TB, rel string, v any) {
	t.Helper()
	data := readTestdata(t, rel)
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", rel, err)
	}
}

// LoadHex returns a trimmed hex string from testdata relative path. Lines
// starting with '#' are dropped so fixtures can annotate their fields.
func LoadHex(t testing.TB, rel string) string {
	t.Helper()
	data := readTestdata(t, rel)
	var b strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// LoadBytes decodes a hex fixture.
func LoadBytes(t testing.TB, rel string) []byte {
	t.Helper()
	clean := strings.Join(strings.Fields(LoadHex(t, rel)), "")
	b, err := hex.DecodeString(clean)
	if err != nil {
		t.Fatalf("decode %s: %v", rel, err)
	}
	return b
}

func readTestdata(t testing.TB, rel string) []byte {
	t.Helper()
	candidates := []string{
		filepath.Join("testdata", rel),
		filepath.Join("..", "testdata", rel),
		filepath.Join("..", "..", "testdata", rel),
		filepath.Join("..", "..", "..", "testdata", rel),
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
	}
	t.Fatalf("unable to locate testdata file %s", rel)
	return nil
}
