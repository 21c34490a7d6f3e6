package config

import (
	"encoding/hex"
	"testing"

	"github.com/rawblock/rscoin/pkg/rscoin"
)

func validSecretKeyHex(t *testing.T) string {
	t.Helper()
	sk, err := rscoin.GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return hex.EncodeToString(sk.Bytes())
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("BANK_SECRET_KEY", validSecretKeyHex(t))
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OWNER_FANOUT", "")
	t.Setenv("PERIOD_TIMEOUT", "")
	t.Setenv("SNAPSHOT_INTERVAL", "")
	t.Setenv("LOG_RETENTION_PERIODS", "")
	t.Setenv("API_AUTH_TOKEN", "")

	cfg, err := Load("BANK_SECRET_KEY")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "5339" {
		t.Fatalf("expected default port 5339, got %s", cfg.Port)
	}
	if cfg.OwnerFanout != 3 {
		t.Fatalf("expected default owner fanout 3, got %d", cfg.OwnerFanout)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected empty database url by default")
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	t.Setenv("MINTETTE_SECRET_KEY", validSecretKeyHex(t))
	t.Setenv("PORT", "9000")
	t.Setenv("OWNER_FANOUT", "5")
	t.Setenv("API_AUTH_TOKEN", "s3cret")

	cfg, err := Load("MINTETTE_SECRET_KEY")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Fatalf("expected overridden port 9000, got %s", cfg.Port)
	}
	if cfg.OwnerFanout != 5 {
		t.Fatalf("expected overridden owner fanout 5, got %d", cfg.OwnerFanout)
	}
	if cfg.APIAuthToken != "s3cret" {
		t.Fatalf("expected overridden api auth token, got %s", cfg.APIAuthToken)
	}
}

func TestLoadRejectsInvalidSecretKeyHex(t *testing.T) {
	t.Setenv("BANK_SECRET_KEY", "not-hex")
	_, err := Load("BANK_SECRET_KEY")
	if err == nil {
		t.Fatalf("expected error for invalid hex secret key")
	}
}

func TestLoadRejectsInvalidOwnerFanout(t *testing.T) {
	t.Setenv("BANK_SECRET_KEY", validSecretKeyHex(t))
	t.Setenv("OWNER_FANOUT", "not-a-number")
	_, err := Load("BANK_SECRET_KEY")
	if err == nil {
		t.Fatalf("expected error for non-numeric OWNER_FANOUT")
	}
}
