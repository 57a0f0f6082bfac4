// Package cryptoutil resolves HMAC key material shared by config validation
// and the audit signer.
package cryptoutil

import (
	"encoding/hex"
	"fmt"
)

// MinKeyBytes is the minimum HMAC-SHA256 key size.
const MinKeyBytes = 32

// isHex reports whether s consists entirely of hexadecimal characters.
// An empty string is hex; callers check length first.
func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// ResolveKey returns the key bytes for an operator-supplied signing key.
// 64+ even-length hex characters are decoded; anything else is used raw and
// must be at least MinKeyBytes long.
func ResolveKey(key string) ([]byte, error) {
	n := len(key)
	if n >= 2*MinKeyBytes && n%2 == 0 && isHex(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("signing key hex decode: %w", err)
		}
		return decoded, nil
	}
	if n < MinKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes or %d+ hex characters (got %d)", MinKeyBytes, 2*MinKeyBytes, n)
	}
	return []byte(key), nil
}
