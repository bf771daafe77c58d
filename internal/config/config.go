package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger backends accepted by LEDGER_BACKEND.
const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"
)

// Config contains runtime configuration values.
type Config struct {
	Environment        string
	HTTPPort           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	LedgerBackend      string
	XReqTTL            time.Duration
	XReqRetention      time.Duration
	XReqMinLength      int
	SweepInterval      time.Duration
	SessionTokenTTL    time.Duration
	SessionSigningKey  string
	VaultPassphrase    string
	VaultSalt          string
	EnforceRequestHash bool
	ServiceName        string
	RateLimitRPM       int
	TelemetryEndpoint  string
	TelemetryInsecure  bool
	TelemetrySampling  float64
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	SecurityLogBuffer  int
	AutoMigrate        bool
	NodeID             int64
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		LedgerBackend:      strings.ToLower(getEnv("LEDGER_BACKEND", LedgerPostgres)),
		XReqTTL:            getDuration("XREQ_TTL", 90*time.Second),
		XReqRetention:      getDuration("XREQ_RETENTION", time.Hour),
		XReqMinLength:      getInt("XREQ_MIN_LENGTH", 32),
		SweepInterval:      getDuration("SWEEP_INTERVAL", 5*time.Minute),
		SessionTokenTTL:    getDuration("SESSION_TOKEN_TTL", 30*24*time.Hour),
		SessionSigningKey:  strings.TrimSpace(os.Getenv("SESSION_SIGNING_KEY")),
		VaultPassphrase:    os.Getenv("VAULT_PASSPHRASE"),
		VaultSalt:          getEnv("VAULT_SALT", "rewardguard-vault"),
		EnforceRequestHash: getBool("ENFORCE_REQUEST_HASH", true),
		ServiceName:        getEnv("SERVICE_NAME", "rewardguard"),
		RateLimitRPM:       getInt("RATE_LIMIT_RPM", 120),
		TelemetryEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetrySampling:  getFloat("OTEL_TRACES_SAMPLER_RATIO", 1),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods: getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders: getList("CORS_ALLOWED_HEADERS", []string{
			"Authorization", "Content-Type", "X-Req", "X-Req-Key", "X-Full-Request-Hash",
			"X-Device-Model", "X-OS-Version", "X-Request-Window", "X-Request-ID",
		}),
		SecurityLogBuffer: getInt("SECURITY_LOG_BUFFER", 1024),
		AutoMigrate:       getBool("AUTO_MIGRATE", false),
		NodeID:            int64(getInt("NODE_ID", 1)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required values and clamps unsafe ones.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.SessionSigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY is required")
	}
	if len(c.SessionSigningKey) < 32 {
		return fmt.Errorf("SESSION_SIGNING_KEY must be at least 32 characters")
	}
	if c.VaultPassphrase == "" {
		return fmt.Errorf("VAULT_PASSPHRASE is required")
	}
	switch c.LedgerBackend {
	case LedgerPostgres, LedgerRedis, LedgerMemory:
	default:
		return fmt.Errorf("LEDGER_BACKEND must be one of postgres, redis, memory")
	}
	if c.XReqTTL <= 0 {
		c.XReqTTL = 90 * time.Second
	}
	if c.XReqRetention <= 0 {
		c.XReqRetention = time.Hour
	}
	if c.XReqMinLength < 16 {
		c.XReqMinLength = 16
	}
	if c.TelemetrySampling < 0 || c.TelemetrySampling > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLER_RATIO must be between 0 and 1")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023")
	}
	if c.SecurityLogBuffer <= 0 {
		c.SecurityLogBuffer = 1024
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
