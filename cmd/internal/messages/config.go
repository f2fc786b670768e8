package messages

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the core's tunables.
type Config struct {
	// PageSize is N in skip = (position-1)*N.
	PageSize int

	// MaxClientDelay bounds how far in the past a client timestamp may be.
	MaxClientDelay time.Duration

	// MaxClientLead bounds how far in the future a client timestamp may be.
	MaxClientLead time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:       10,
		MaxClientDelay: 10 * time.Second,
		MaxClientLead:  10 * time.Second,
	}
}

// LoadConfigFromEnv reads MSG_MESSAGES_PAGE_SIZE, MSG_MESSAGES_MAX_CLIENT_DELAY
// and MSG_MESSAGES_MAX_CLIENT_LEAD on top of DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("MSG_MESSAGES_PAGE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			return Config{}, fmt.Errorf("MSG_MESSAGES_PAGE_SIZE: out of range [1..1000]")
		}
		cfg.PageSize = n
	}

	if v := strings.TrimSpace(os.Getenv("MSG_MESSAGES_MAX_CLIENT_DELAY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("MSG_MESSAGES_MAX_CLIENT_DELAY: invalid duration")
		}
		cfg.MaxClientDelay = d
	}

	if v := strings.TrimSpace(os.Getenv("MSG_MESSAGES_MAX_CLIENT_LEAD")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("MSG_MESSAGES_MAX_CLIENT_LEAD: invalid duration")
		}
		cfg.MaxClientLead = d
	}

	return cfg, nil
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.MaxClientDelay <= 0 {
		c.MaxClientDelay = def.MaxClientDelay
	}
	if c.MaxClientLead < 0 {
		c.MaxClientLead = def.MaxClientLead
	}
	return c
}
