// Package settings centralizes typed configuration for every gplot
// component. Values come from GPLOT_* environment variables with sensible
// defaults; cmd/main.go loads a .env file first via godotenv.
package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
)

const envPrefix = "GPLOT"

type ServerSettings struct {
	Host string
	Port int
}

type AuthSettings struct {
	JWTSecret      string
	TokenStorePath string
	RequireAuth    bool
	AdminGroup     string
}

type StorageSettings struct {
	Dir          string
	PurgeAgeDays int // scheduled purge threshold; 0 disables the cron job
}

type RateLimitSettings struct {
	Enabled      bool
	DefaultLimit int
	Window       int // seconds
	RenderLimit  int // override for render endpoints; 0 keeps the default
}

type AuditSettings struct {
	LogFile string
	Console bool
	DBPath  string // optional sqlite sink; empty disables it
}

type Settings struct {
	Server    ServerSettings
	Auth      AuthSettings
	Storage   StorageSettings
	RateLimit RateLimitSettings
	Audit     AuditSettings
}

// FromEnv reads all settings. It fails when auth is required but no JWT
// secret is configured; an unsigned deployment must opt out explicitly
// with GPLOT_REQUIRE_AUTH=false.
func FromEnv() (*Settings, error) {
	s := &Settings{
		Server: ServerSettings{
			Host: envString("HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8000),
		},
		Auth: AuthSettings{
			JWTSecret:      envString("JWT_SECRET", ""),
			TokenStorePath: envString("TOKEN_STORE", defaultTokenStorePath()),
			RequireAuth:    envBool("REQUIRE_AUTH", true),
			AdminGroup:     envString("ADMIN_GROUP", "admin"),
		},
		Storage: StorageSettings{
			Dir:          envString("STORAGE_DIR", filepath.Join(os.TempDir(), "gplot-images")),
			PurgeAgeDays: envInt("PURGE_AGE_DAYS", 30),
		},
		RateLimit: RateLimitSettings{
			Enabled:      envBool("RATE_LIMIT_ENABLED", true),
			DefaultLimit: envInt("RATE_LIMIT", 100),
			Window:       envInt("RATE_WINDOW", 60),
			RenderLimit:  envInt("RENDER_RATE_LIMIT", 10),
		},
		Audit: AuditSettings{
			LogFile: envString("AUDIT_LOG", ""),
			Console: envBool("AUDIT_CONSOLE", true),
			DBPath:  envString("AUDIT_DB", ""),
		},
	}

	if s.Auth.RequireAuth && s.Auth.JWTSecret == "" {
		return nil, errors.New(
			"JWT secret is required when authentication is enabled; set GPLOT_JWT_SECRET or disable auth with GPLOT_REQUIRE_AUTH=false")
	}
	return s, nil
}

// SecretFingerprint is a short, loggable digest of the JWT secret; it lets
// operators confirm two processes share a secret without revealing it.
func (a AuthSettings) SecretFingerprint() string {
	if a.JWTSecret == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(a.JWTSecret))
	return "sha256:" + hex.EncodeToString(sum[:])[:12]
}

func defaultTokenStorePath() string {
	return filepath.Join(os.TempDir(), "gplot-tokens.json")
}

func envString(key, fallback string) string {
	if v := os.Getenv(envPrefix + "_" + key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(envPrefix + "_" + key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(envPrefix + "_" + key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
