// Package config loads the environment-driven settings shared by the bank
// and mintette binaries, generalizing the teacher's requireEnv/
// getEnvOrDefault pattern (cmd/engine/main.go) into a single loader each
// cmd package calls once at startup.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/rscoin/pkg/rscoin"
)

// Config holds every knob a bank or mintette process needs. Both binaries
// load the same set of fields; a field a binary does not use is simply
// ignored.
type Config struct {
	Port string

	// SecretKey is this node's own signing key (bank or mintette).
	SecretKey rscoin.SecretKey

	DatabaseURL string // empty means run with the in-memory store only

	OwnerFanout int

	PeriodTimeout     time.Duration
	SnapshotInterval  time.Duration
	LogRetentionPeriods int

	APIAuthToken string
}

// Load reads every setting from the environment. SecretKey must be set via
// the given env var name as 64 hex characters (a secp256k1 private key);
// everything else falls back to a sane default when unset.
func Load(secretKeyEnv string) (Config, error) {
	skHex := requireEnv(secretKeyEnv)
	skBytes, err := hex.DecodeString(skHex)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s is not valid hex: %w", secretKeyEnv, err)
	}
	sk, err := rscoin.SecretKeyFromBytes(skBytes)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", secretKeyEnv, err)
	}

	fanout, err := strconv.Atoi(getEnvOrDefault("OWNER_FANOUT", "3"))
	if err != nil {
		return Config{}, fmt.Errorf("config: OWNER_FANOUT: %w", err)
	}

	periodTimeout, err := time.ParseDuration(getEnvOrDefault("PERIOD_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: PERIOD_TIMEOUT: %w", err)
	}

	snapshotInterval, err := time.ParseDuration(getEnvOrDefault("SNAPSHOT_INTERVAL", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: SNAPSHOT_INTERVAL: %w", err)
	}

	retention, err := strconv.Atoi(getEnvOrDefault("LOG_RETENTION_PERIODS", "100"))
	if err != nil {
		return Config{}, fmt.Errorf("config: LOG_RETENTION_PERIODS: %w", err)
	}

	return Config{
		Port:                getEnvOrDefault("PORT", "5339"),
		SecretKey:           sk,
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		OwnerFanout:         fanout,
		PeriodTimeout:       periodTimeout,
		SnapshotInterval:    snapshotInterval,
		LogRetentionPeriods: retention,
		APIAuthToken:        os.Getenv("API_AUTH_TOKEN"),
	}, nil
}

// requireEnv reads a required environment variable and exits if it is not
// set, matching the teacher's fail-fast startup behavior for credentials.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		fmt.Fprintf(os.Stderr, "FATAL: required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
