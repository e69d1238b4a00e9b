// Package config loads server settings from the environment. A .env file
// in the working directory is honored when present; real environment
// variables win over it.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"duelgrounds/internal/auth"
	"duelgrounds/internal/combat"
	"duelgrounds/internal/world"
)

// DefaultAddr is where the server listens unless DUEL_ADDR says otherwise.
const DefaultAddr = ":8080"

// Config carries every tunable the server reads at boot.
type Config struct {
	// Addr is the listen address.
	Addr string
	// DatabaseURL selects the Postgres store; empty runs in-memory.
	DatabaseURL string
	// ClientDir holds the static web client. Unset, a web directory near
	// the process is used when one exists; empty disables static serving.
	ClientDir string
	// LogPath is the rotated log file; empty logs to stderr only.
	LogPath string

	BroadcastHz    int
	MaxSubscribers int
	MaxHitDistance float64
	SessionTTL     time.Duration
}

// FromEnv reads the DUEL_* variables plus DATABASE_URL. Invalid values
// are logged and replaced with the subsystem default, never fatal.
func FromEnv(log *zap.SugaredLogger) Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:           DefaultAddr,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ClientDir:      os.Getenv("DUEL_CLIENT_DIR"),
		LogPath:        os.Getenv("DUEL_LOG_PATH"),
		BroadcastHz:    world.DefaultBroadcastHz,
		MaxSubscribers: world.DefaultMaxSubscribers,
		MaxHitDistance: combat.DefaultMaxHitDistance,
		SessionTTL:     auth.DefaultSessionTTL,
	}

	if raw := os.Getenv("DUEL_ADDR"); raw != "" {
		cfg.Addr = raw
	}
	if cfg.ClientDir == "" {
		cfg.ClientDir = discoverClientDir()
	}
	if raw := os.Getenv("DUEL_BROADCAST_HZ"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.BroadcastHz = value
		} else {
			log.Warnw("invalid DUEL_BROADCAST_HZ, keeping default",
				"value", raw, "default", cfg.BroadcastHz)
		}
	}
	if raw := os.Getenv("DUEL_MAX_SUBSCRIBERS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MaxSubscribers = value
		} else {
			log.Warnw("invalid DUEL_MAX_SUBSCRIBERS, keeping default",
				"value", raw, "default", cfg.MaxSubscribers)
		}
	}
	if raw := os.Getenv("DUEL_MAX_HIT_DISTANCE"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.MaxHitDistance = value
		} else {
			log.Warnw("invalid DUEL_MAX_HIT_DISTANCE, keeping default",
				"value", raw, "default", cfg.MaxHitDistance)
		}
	}
	if raw := os.Getenv("DUEL_SESSION_TTL"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			cfg.SessionTTL = value
		} else {
			log.Warnw("invalid DUEL_SESSION_TTL, keeping default",
				"value", raw, "default", cfg.SessionTTL)
		}
	}
	return cfg
}
