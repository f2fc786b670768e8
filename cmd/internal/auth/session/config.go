package session

import (
	"errors"
	"os"
	"time"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/security/token"
)

// Config controls access-token issuance.
type Config struct {
	// Issuer is the "iss" claim; Verify rejects other issuers.
	Issuer string

	// AccessTokenTTL is the lifetime of issued tokens.
	AccessTokenTTL time.Duration

	// ClockSkew is the leeway applied to exp/iat/nbf checks.
	ClockSkew time.Duration

	// Secret is the HS256 key. LoadConfigFromEnv leaves it nil when
	// MSG_AUTH_JWT_SECRET is unset; the caller decides whether to fail or
	// generate an ephemeral one.
	Secret []byte
}

// DefaultConfig returns development defaults without a secret.
func DefaultConfig() Config {
	return Config{
		Issuer:         "messenger",
		AccessTokenTTL: 24 * time.Hour,
		ClockSkew:      30 * time.Second,
	}
}

// LoadConfigFromEnv reads MSG_AUTH_ISSUER, MSG_AUTH_ACCESS_TTL, MSG_AUTH_CLOCK_SKEW
// and MSG_AUTH_JWT_SECRET. A secret shorter than token.MinSecretBytes is ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("MSG_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("MSG_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("MSG_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	secret, err := token.SecretFromEnv(token.SecretEnvKey, token.MinSecretBytes)
	switch {
	case err == nil:
		cfg.Secret = secret
	case errors.Is(err, token.ErrSecretMissing):
	default:
		return Config{}, ErrConfig
	}

	return cfg, nil
}
