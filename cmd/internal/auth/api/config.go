package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	MaxBodyBytes int64

	// LoginMax failed-or-not login attempts per username within LoginWindow.
	LoginMax    int
	LoginWindow time.Duration

	SearchLimit int
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		MaxBodyBytes: envInt64("MSG_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LoginMax:     envInt("MSG_AUTH_LOGIN_MAX", 10),
		LoginWindow:  envDuration("MSG_AUTH_LOGIN_WINDOW", 5*time.Minute),
		SearchLimit:  envInt("MSG_AUTH_SEARCH_LIMIT", 10),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.LoginMax <= 0 {
		c.LoginMax = 10
	}
	if c.LoginWindow <= 0 {
		c.LoginWindow = 5 * time.Minute
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 10
	}
	if c.SearchLimit > 50 {
		c.SearchLimit = 50
	}
	return c
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
