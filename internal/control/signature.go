package control

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/cryptoutil"
)

const signaturePrefix = "hmac-sha256:"

// Signer creates and verifies HMAC-SHA256 signatures over audit entries.
type Signer struct {
	key []byte
}

// NewSigner accepts a key of at least 32 raw bytes, or 64+ hex characters
// decoding to at least 32 bytes.
func NewSigner(key string) (*Signer, error) {
	keyBytes, err := cryptoutil.ResolveKey(key)
	if err != nil {
		return nil, err
	}
	return &Signer{key: keyBytes}, nil
}

// Sign returns the signature for data.
func (s *Signer) Sign(data []byte) string {
	h := hmac.New(sha256.New, s.key)
	h.Write(data)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// Verify checks signature against data.
func (s *Signer) Verify(data []byte, signature string) bool {
	return hmac.Equal([]byte(s.Sign(data)), []byte(signature))
}

// SignEntry sets e.Signature over the entry's canonical JSON (signature empty).
func (s *Signer) SignEntry(e *AuditEntry) error {
	data, err := canonicalEntry(*e)
	if err != nil {
		return err
	}
	e.Signature = s.Sign(data)
	return nil
}

// VerifyEntry reports whether e carries a valid signature.
func (s *Signer) VerifyEntry(e AuditEntry) bool {
	sig := e.Signature
	data, err := canonicalEntry(e)
	if err != nil {
		return false
	}
	return s.Verify(data, sig)
}

func canonicalEntry(e AuditEntry) ([]byte, error) {
	e.Signature = ""
	e.Timestamp = e.Timestamp.UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling audit entry: %w", err)
	}
	return data, nil
}
