package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	GatewayURL  string
	AuthToken   string
	HTTPTimeout time.Duration
	// Redis - empty disables the local query cache
	RedisURL string
	CacheTTL time.Duration
	// PDF renderer probe
	ChromiumPath  string
	RendererProbe time.Duration
	// Upload limit enforced before any network call
	MaxUploadBytes int64
}

func Load() Config {
	return Config{
		GatewayURL:     getenv("DOCVAULT_GATEWAY_URL", "http://localhost:8000/api"),
		AuthToken:      getenv("DOCVAULT_TOKEN", ""),
		HTTPTimeout:    time.Duration(getenvInt("DOCVAULT_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		RedisURL:       getenv("REDIS_URL", "redis://localhost:6379/0"),
		CacheTTL:       time.Duration(getenvInt("DOCVAULT_CACHE_TTL_SECONDS", 300)) * time.Second,
		ChromiumPath:   getenv("DOCVAULT_CHROMIUM", ""),
		RendererProbe:  time.Duration(getenvInt("DOCVAULT_RENDERER_PROBE_SECONDS", 15)) * time.Second,
		MaxUploadBytes: int64(getenvInt("DOCVAULT_MAX_UPLOAD_BYTES", 10*1024*1024)),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
