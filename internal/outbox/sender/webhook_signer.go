package sender

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// HeaderSignature carries "v1=<hex hmac>" when a signing key is configured.
	HeaderSignature = "X-Outbox-Signature"
	// HeaderTimestamp carries the unix time the signature was computed at.
	HeaderTimestamp = "X-Outbox-Timestamp"

	signatureVersion = "v1"
	signingKeyInfo   = "outbox-webhook-signing-v1"
)

// ErrSignatureInvalid is returned by Verify when the signature does not match the body.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// WebhookSigner computes HMAC-SHA256 signatures over webhook bodies so receivers can check that a
// request came from this relay and was not altered. The HMAC key is derived from the configured
// secret with HKDF-SHA256.
type WebhookSigner struct {
	key []byte
}

// NewWebhookSigner derives a signing key from secret.
func NewWebhookSigner(secret string) (*WebhookSigner, error) {
	if secret == "" {
		return nil, errors.New("webhook signing key is empty")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive webhook signing key: %w", err)
	}

	return &WebhookSigner{key: key}, nil
}

// Sign returns the header value for body sent at timestamp (unix seconds).
func (s *WebhookSigner) Sign(timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(canonicalize(timestamp, body))
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a header value produced by Sign.
func (s *WebhookSigner) Verify(signature string, timestamp int64, body []byte) error {
	version, encoded, ok := strings.Cut(signature, "=")
	if !ok || version != signatureVersion {
		return ErrSignatureInvalid
	}
	got, err := hex.DecodeString(encoded)
	if err != nil {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(canonicalize(timestamp, body))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// canonicalize encodes timestamp || len(body) || body with fixed-width big-endian integers, so a
// timestamp cannot be shifted into the body.
func canonicalize(timestamp int64, body []byte) []byte {
	buf := make([]byte, 0, 16+len(body))
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp))
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(body)))
	return append(buf, body...)
}
