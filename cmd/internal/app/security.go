package app

import (
	"errors"
	"fmt"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/auth/session"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/security/token"
)

// loadSessionConfig reads the token config and applies the secret policy:
// with MSG_REQUIRE_JWT_SECRET a missing or short secret is fatal, otherwise a
// missing secret is replaced by a random per-process key. Tokens issued under
// an ephemeral key stop verifying after a restart.
func loadSessionConfig(cfg Config, log Logger) (session.Config, error) {
	sc, err := session.LoadConfigFromEnv()
	if err != nil {
		if errors.Is(err, session.ErrConfig) && cfg.RequireJWTSecret {
			return session.Config{}, fmt.Errorf("security policy: MSG_REQUIRE_JWT_SECRET=true but %s is invalid (min %d bytes)", token.SecretEnvKey, token.MinSecretBytes)
		}
		return session.Config{}, err
	}

	if len(sc.Secret) > 0 {
		log.Info("auth.jwt.secret", "source", "env", "fingerprint", token.Fingerprint(sc.Secret))
		return sc, nil
	}

	if cfg.RequireJWTSecret {
		return session.Config{}, fmt.Errorf("security policy: MSG_REQUIRE_JWT_SECRET=true but %s is missing", token.SecretEnvKey)
	}

	secret, err := token.RandomSecret(token.MinSecretBytes)
	if err != nil {
		return session.Config{}, err
	}
	sc.Secret = secret
	log.Warn("auth.jwt.secret.ephemeral", "fingerprint", token.Fingerprint(secret))
	return sc, nil
}
