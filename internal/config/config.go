// Package config loads service configuration from the environment, after
// applying an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTPAddr   string
	CORSOrigin string

	StoreDriver   string
	DatabaseURL   string
	SeedUniverses string

	ValkeyAddr   string
	PairCacheTTL time.Duration

	Auth  Auth
	Video Video

	LogLevel  string
	LogPretty bool
}

// Auth configures verification of the identity service's bearer tokens.
type Auth struct {
	JWTSecret string
	Issuer    string
}

// Video holds the provider-issued signing credentials and issuance policy.
type Video struct {
	AccountSID     string
	APIKeySID      string
	APIKeySecret   string
	TokenTTL       time.Duration
	AllowOverrides bool
}

// Load reads .env files (if present) and the environment. A missing .env
// is not an error; missing required variables are reported together.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}
	cfg := &Config{
		HTTPAddr:      r.str("HTTP_ADDR", ":8080"),
		CORSOrigin:    r.str("CORS_ORIGIN", "http://127.0.0.1:5173"),
		StoreDriver:   r.str("STORE_DRIVER", DriverMemory),
		DatabaseURL:   r.str("DB_URL", ""),
		SeedUniverses: r.str("SEED_UNIVERSES", ""),
		ValkeyAddr:    r.str("VALKEY_ADDR", ""),
		PairCacheTTL:  r.duration("PAIR_CACHE_TTL", 24*time.Hour),
		Auth: Auth{
			JWTSecret: r.required("AUTH_JWT_SECRET"),
			Issuer:    r.str("AUTH_JWT_ISSUER", ""),
		},
		Video: Video{
			AccountSID:     r.required("VIDEO_ACCOUNT_SID"),
			APIKeySID:      r.required("VIDEO_API_KEY_SID"),
			APIKeySecret:   r.required("VIDEO_API_KEY_SECRET"),
			TokenTTL:       r.duration("CALL_TOKEN_TTL", 24*time.Hour),
			AllowOverrides: r.boolean("CALL_ALLOW_OVERRIDES", false),
		},
		LogLevel:  r.str("LOG_LEVEL", "info"),
		LogPretty: r.boolean("LOG_PRETTY", false),
	}

	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			r.missing = append(r.missing, "DB_URL")
		}
	default:
		r.invalid = append(r.invalid, fmt.Sprintf("STORE_DRIVER=%q", cfg.StoreDriver))
	}
	if cfg.PairCacheTTL <= 0 {
		r.invalid = append(r.invalid, "PAIR_CACHE_TTL must be positive")
	}
	if cfg.Video.TokenTTL <= 0 {
		r.invalid = append(r.invalid, "CALL_TOKEN_TTL must be positive")
	}

	if len(r.missing) > 0 {
		return nil, fmt.Errorf("config: missing required variables: %s", strings.Join(r.missing, ", "))
	}
	if len(r.invalid) > 0 {
		return nil, fmt.Errorf("config: invalid values: %s", strings.Join(r.invalid, "; "))
	}
	return cfg, nil
}

type reader struct {
	lookup  func(string) (string, bool)
	missing []string
	invalid []string
}

func (r *reader) str(name, def string) string {
	if v, ok := r.lookup(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) required(name string) string {
	v := r.str(name, "")
	if v == "" {
		r.missing = append(r.missing, name)
	}
	return v
}

func (r *reader) duration(name string, def time.Duration) time.Duration {
	v := r.str(name, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.invalid = append(r.invalid, fmt.Sprintf("%s=%q", name, v))
		return def
	}
	return d
}

func (r *reader) boolean(name string, def bool) bool {
	v := r.str(name, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.invalid = append(r.invalid, fmt.Sprintf("%s=%q", name, v))
		return def
	}
	return b
}
