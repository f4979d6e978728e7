package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SharedCfg selects and configures the shared cache backend.
type SharedCfg struct {
	Driver       string // "redis", "postgrest", or "none"
	RedisAddr    string
	PostgrestURL string
	PostgrestKey string
	OpTimeout    time.Duration
	TTL          time.Duration
}

// LocalCfg configures the on-device cache tier.
type LocalCfg struct {
	Driver     string // "memory" or "sqlite"
	SQLitePath string
	MaxEntries int
	TTL        time.Duration
}

type ProviderCfg struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	Local      LocalCfg
	Shared     SharedCfg
	Provider   ProviderCfg
}

func FromEnv() Config {
	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		Local: LocalCfg{
			Driver:     strings.ToLower(getenv("LOCAL_CACHE_DRIVER", "memory")),
			SQLitePath: getenv("LOCAL_CACHE_SQLITE_PATH", "placecache.db"),
			MaxEntries: getint("LOCAL_CACHE_MAX_ENTRIES", 1024),
			TTL:        getduration("LOCAL_CACHE_TTL", 3*time.Hour),
		},
		Shared: SharedCfg{
			Driver:       strings.ToLower(getenv("SHARED_CACHE_DRIVER", "redis")),
			RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
			PostgrestURL: getenv("POSTGREST_URL", ""),
			PostgrestKey: getenv("POSTGREST_ANON_KEY", ""),
			OpTimeout:    getduration("SHARED_CACHE_OP_TIMEOUT", 2*time.Second),
			TTL:          getduration("SHARED_CACHE_TTL", 6*time.Hour),
		},
		Provider: ProviderCfg{
			BaseURL: getenv("PROVIDER_URL", ""),
			APIKey:  getenv("PROVIDER_API_KEY", ""),
			Timeout: getduration("PROVIDER_TIMEOUT", 10*time.Second),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
