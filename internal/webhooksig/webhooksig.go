// Package webhooksig verifies inbound webhook signatures. No ecosystem
// library in the dependency surface offers HMAC webhook verification; this is
// a thin wrapper over crypto/hmac and crypto/subtle, which is what the
// standard library is for.
package webhooksig

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifyGitHub checks X-Hub-Signature-256, formatted "sha256=<hex hmac>".
func VerifyGitHub(secret string, body []byte, header string) error {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("missing sha256= prefix")
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	got := mac.Sum(nil)

	if !hmac.Equal(want, got) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// VerifyAzureDevOps checks X-Webhook-Secret by constant-time compare against
// the configured shared secret.
func VerifyAzureDevOps(secret string, presented string) error {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) != 1 {
		return fmt.Errorf("secret mismatch")
	}
	return nil
}
