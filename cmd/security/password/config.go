package password

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Params controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the hasher configuration.
type Config struct {
	Params Params
	Policy Policy
}

// DefaultConfig follows the OWASP Argon2id baseline (19 MiB, t=2, p=1),
// which keeps registration latency low on small instances.
func DefaultConfig() Config {
	return Config{
		Params: Params{
			MemoryKiB:   19 * 1024,
			Iterations:  2,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      128,
			RejectVeryWeak: true,
		},
	}
}

type uintKnob struct {
	env      string
	min, max uint32
	set      func(*Config, uint32) error
}

var uintKnobs = []uintKnob{
	{"MSG_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(c *Config, v uint32) error { c.Params.MemoryKiB = v; return nil }},
	{"MSG_ARGON2_ITERATIONS", 1, 20, func(c *Config, v uint32) error { c.Params.Iterations = v; return nil }},
	{"MSG_ARGON2_PARALLELISM", 1, math.MaxUint8, func(c *Config, v uint32) error { c.Params.Parallelism = uint8(v); return nil }},
	{"MSG_ARGON2_SALT_LEN", 8, 64, func(c *Config, v uint32) error { c.Params.SaltLength = v; return nil }},
	{"MSG_ARGON2_KEY_LEN", 16, 64, func(c *Config, v uint32) error { c.Params.KeyLength = v; return nil }},
	{"MSG_PASSWORD_MIN_LEN", 1, 1024, func(c *Config, v uint32) error { c.Policy.MinLength = int(v); return nil }},
	{"MSG_PASSWORD_MAX_LEN", 1, 4096, func(c *Config, v uint32) error { c.Policy.MaxLength = int(v); return nil }},
}

// FromEnv loads DefaultConfig and applies overrides:
// MSG_ARGON2_MEMORY_KIB, MSG_ARGON2_ITERATIONS, MSG_ARGON2_PARALLELISM,
// MSG_ARGON2_SALT_LEN, MSG_ARGON2_KEY_LEN, MSG_PASSWORD_MIN_LEN,
// MSG_PASSWORD_MAX_LEN and MSG_PASSWORD_REJECT_VERY_WEAK.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, k := range uintKnobs {
		raw, ok := os.LookupEnv(k.env)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := parseBounded(raw, k.min, k.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", k.env, err)
		}
		if err := k.set(&cfg, v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", k.env, err)
		}
	}

	if raw, ok := os.LookupEnv("MSG_PASSWORD_REJECT_VERY_WEAK"); ok && strings.TrimSpace(raw) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("MSG_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

func parseBounded(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
