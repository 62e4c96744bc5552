package config

import (
	"log"
	"os"
	"strings"
	"time"
)

// Length bounds accepted by the generation backend
const (
	MinLength     = 100
	MaxLength     = 2000
	DefaultLength = 500
)

const (
	defaultGeneratorURL = "http://localhost:8000/generate"
	defaultRevokeDelay  = 2 * time.Second
	defaultIdleTimeout  = 2 * time.Hour
)

// Config holds the application configuration
// Note: Melodia keeps no persistent state - sessions live in memory only
type Config struct {
	// Environment
	Environment string
	Port        string

	// Generation backend
	GeneratorURL     string
	GeneratorTimeout time.Duration // 0 means no timeout

	// Browser sessions
	SessionSecret      string
	SessionIdleTimeout time.Duration
	AllowedOrigins     []string // CORS origins, empty allows any

	// Synthesis / export
	MIDIOutputType      string        // "binary", "encoded" or "link"
	DownloadRevokeDelay time.Duration // lifetime of a blob reference after a download

	// Observability
	SentryDSN         string // Sentry DSN for error tracking
	LangfusePublicKey string // Langfuse public key
	LangfuseSecretKey string // Langfuse secret key
	LangfuseHost      string // Langfuse host URL (cloud or self-hosted)
	LangfuseEnabled   bool   // Feature flag for Langfuse
}

func Load() *Config {
	return &Config{
		Environment:         getEnv("ENVIRONMENT", "development"),
		Port:                getEnv("PORT", "8080"),
		GeneratorURL:        getEnv("GENERATOR_URL", defaultGeneratorURL),
		GeneratorTimeout:    getDuration("GENERATOR_TIMEOUT", 0),
		SessionSecret:       getEnv("SESSION_SECRET", "melodia-dev-session-secret"),
		SessionIdleTimeout:  getDuration("SESSION_IDLE_TIMEOUT", defaultIdleTimeout),
		AllowedOrigins:      getList("ALLOWED_ORIGINS"),
		MIDIOutputType:      getEnv("MIDI_OUTPUT_TYPE", "binary"),
		DownloadRevokeDelay: getDuration("DOWNLOAD_REVOKE_DELAY", defaultRevokeDelay),
		SentryDSN:           getEnv("SENTRY_DSN", ""),
		LangfusePublicKey:   getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey:   getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:        getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:     getEnv("LANGFUSE_ENABLED", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("⚠️  Invalid duration for %s (%q), using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// IsProduction returns true when running in the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
