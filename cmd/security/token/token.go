package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	// SecretEnvKey is the env var holding the HS256 signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "MSG_AUTH_JWT_SECRET"

	// MinSecretBytes matches the HS256 output size.
	MinSecretBytes = 32
)

// SecretFromEnv returns the trimmed secret from key, enforcing a minimum byte length.
// A missing or blank value yields ErrSecretMissing.
func SecretFromEnv(key string, minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, ErrSecretMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return nil, ErrSecretTooShort
	}
	return []byte(raw), nil
}

// RandomSecret returns n bytes from crypto/rand. Tokens signed with it do not
// survive a restart.
func RandomSecret(n int) ([]byte, error) {
	if n < MinSecretBytes {
		n = MinSecretBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("token: random secret: %w", err)
	}
	return b, nil
}

// Fingerprint returns a short, non-reversible id for a secret, safe to log.
func Fingerprint(secret []byte) string {
	m := hmac.New(sha256.New, []byte("msg-secret-fingerprint"))
	_, _ = m.Write(secret)
	return hex.EncodeToString(m.Sum(nil))[:12]
}
