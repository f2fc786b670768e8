package msgapi

import (
	"os"
	"strconv"
	"strings"
)

const defaultMaxBodyBytes int64 = 10 << 20 // 10 MiB

// Config controls the messages HTTP surface.
type Config struct {
	MaxBodyBytes int64
}

// LoadConfigFromEnv reads MSG_MESSAGES_MAX_BODY_BYTES.
func LoadConfigFromEnv() Config {
	cfg := Config{MaxBodyBytes: defaultMaxBodyBytes}
	if v := strings.TrimSpace(os.Getenv("MSG_MESSAGES_MAX_BODY_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
	return cfg
}
