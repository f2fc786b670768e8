package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	DBSchema       string
	DBAutoMigrate  bool
	DBUserFKs      bool
	RedisAddr      string
	KafkaBrokers   []string
	KafkaTopic     string
	OTLPEndpoint   string
	ServiceName    string
	RateLimitCount int
	RateLimitEvery time.Duration

	// /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Fail startup when MSG_AUTH_JWT_SECRET is missing or short instead of
	// generating an ephemeral key.
	RequireJWTSecret bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("MSG_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("MSG_LOG_LEVEL", "info"),
		LogFormat: EnvString("MSG_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("MSG_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("MSG_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("MSG_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("MSG_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("MSG_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("MSG_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL:   EnvString("MSG_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("MSG_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("MSG_DB_MIN_CONNS", 0),
		DBSchema:      EnvString("MSG_DB_SCHEMA", "messenger"),
		DBAutoMigrate: EnvBool("MSG_DB_AUTO_MIGRATE", false),
		DBUserFKs:     EnvBool("MSG_DB_USER_FOREIGN_KEYS", true),

		RedisAddr:      EnvString("MSG_REDIS_ADDR", ""),
		KafkaBrokers:   EnvList("MSG_KAFKA_BROKERS", nil),
		KafkaTopic:     EnvString("MSG_KAFKA_TOPIC", "messages.created"),
		OTLPEndpoint:   EnvString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:    EnvString("OTEL_SERVICE_NAME", "messenger"),
		RateLimitCount: EnvInt("MSG_RATE_LIMIT_EVENTS", 120),
		RateLimitEvery: EnvDuration("MSG_RATE_LIMIT_WINDOW", 10*time.Second),

		ReadinessRequireDB: EnvBool("MSG_READINESS_REQUIRE_DB", false),
		RequireJWTSecret:   EnvBool("MSG_REQUIRE_JWT_SECRET", false),

		CORSAllowedOrigins:   EnvList("MSG_CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		CORSAllowCredentials: EnvBool("MSG_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("MSG_CORS_MAX_AGE_SECONDS", 600),
	}
}
