package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentinbox/mcp-connect/internal/domain/connect"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	StateStoreBackend    string
	PublicBaseURL        string
	EncryptionKey        []byte
	StaticClientID       string
	ClientName           string
	IdentitySecret       string
	IdentityIssuer       string
	StateTTL             time.Duration
	OutboundTimeout      time.Duration
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
// The encryption key is validated here so a malformed key fails startup
// instead of the first callback.
func Load() (Config, error) {
	_ = godotenv.Load()

	keyHex := strings.TrimSpace(os.Getenv("TOKEN_ENCRYPTION_KEY"))
	if keyHex == "" {
		return Config{}, fmt.Errorf("%w: TOKEN_ENCRYPTION_KEY is required", connect.ErrEncryptionConfig)
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return Config{}, fmt.Errorf("%w: TOKEN_ENCRYPTION_KEY must be hex", connect.ErrEncryptionConfig)
	}
	if len(key) != 32 {
		return Config{}, fmt.Errorf("%w: TOKEN_ENCRYPTION_KEY must be 64 hex chars (32 bytes), got %d bytes", connect.ErrEncryptionConfig, len(key))
	}

	publicBaseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	if publicBaseURL == "" {
		return Config{}, fmt.Errorf("PUBLIC_BASE_URL is required")
	}
	identitySecret := strings.TrimSpace(os.Getenv("IDENTITY_JWT_SECRET"))
	if identitySecret == "" {
		return Config{}, fmt.Errorf("IDENTITY_JWT_SECRET is required")
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		StateStoreBackend:    strings.ToLower(getEnv("STATE_STORE_BACKEND", "redis")),
		PublicBaseURL:        publicBaseURL,
		EncryptionKey:        key,
		StaticClientID:       strings.TrimSpace(os.Getenv("OAUTH_CLIENT_ID")),
		ClientName:           getEnv("OAUTH_CLIENT_NAME", "agentinbox-connect"),
		IdentitySecret:       identitySecret,
		IdentityIssuer:       strings.TrimSpace(os.Getenv("IDENTITY_ISSUER")),
		StateTTL:             getDuration("FLOW_STATE_TTL", 10*time.Minute),
		OutboundTimeout:      getDuration("OUTBOUND_HTTP_TIMEOUT", 10*time.Second),
		ServiceName:          getEnv("SERVICE_NAME", "mcp-connect"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.StateStoreBackend {
	case "redis", "postgres":
	default:
		return Config{}, fmt.Errorf("STATE_STORE_BACKEND must be redis or postgres, got %q", cfg.StateStoreBackend)
	}

	return cfg, nil
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
