package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySignature checks the GitHub webhook signature (HMAC SHA-256,
// delivered as "sha256=<hex hash>"). The received hash is decoded and
// compared against the computed MAC in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	received, err := hex.DecodeString(signature[len(signaturePrefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return hmac.Equal(received, mac.Sum(nil))
}

// ValidateSignatureHeader validates the X-Hub-Signature-256 header shape.
func ValidateSignatureHeader(header string) error {
	if header == "" {
		return fmt.Errorf("missing X-Hub-Signature-256 header")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return fmt.Errorf("invalid signature format, expected 'sha256=<hash>'")
	}
	return nil
}
