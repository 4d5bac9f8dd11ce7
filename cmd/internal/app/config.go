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

	MaxBodyBytes int64

	// Store selects the persistence backend: "postgres", "sqlite", or
	// "memory". Empty means auto: postgres when BRINK_DATABASE_URL is set,
	// sqlite otherwise.
	Store string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	SQLitePath string

	// If true:
	// - /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("BRINK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("BRINK_LOG_LEVEL", "info"),
		LogFormat: EnvString("BRINK_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("BRINK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("BRINK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("BRINK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("BRINK_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("BRINK_HTTP_MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:   int64(EnvInt("BRINK_HTTP_MAX_BODY_BYTES", 1<<20)),

		Store: EnvString("BRINK_STORE", ""),

		DatabaseURL: EnvString("BRINK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("BRINK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BRINK_DB_MIN_CONNS", 0),

		SQLitePath: EnvString("BRINK_SQLITE_PATH", "brink-auth.db"),

		ReadinessRequireDB: EnvBool("BRINK_READINESS_REQUIRE_DB", false),
	}
}
