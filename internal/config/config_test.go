package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LIMS_CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("LOCKOUT_THRESHOLD", "")
	t.Setenv("JWT_EXPIRES_IN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.LockoutThreshold != 5 {
		t.Errorf("expected lockout threshold 5, got %d", cfg.LockoutThreshold)
	}
	if cfg.JWTExpirationDur != 15*time.Minute {
		t.Errorf("expected 15m expiry, got %s", cfg.JWTExpirationDur)
	}
}

func TestLoad_FileOverridesAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lims.yaml")
	content := []byte("port: \"9090\"\ndb:\n  name: labdb\nlockout:\n  threshold: 3\n  duration: 1m\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("LIMS_CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("DB_NAME", "")
	t.Setenv("LOCKOUT_THRESHOLD", "")
	t.Setenv("LOCKOUT_DURATION", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("expected env port 7070 to win, got %s", cfg.Port)
	}
	if cfg.DBName != "labdb" {
		t.Errorf("expected db name from file, got %s", cfg.DBName)
	}
	if cfg.LockoutThreshold != 3 {
		t.Errorf("expected threshold 3 from file, got %d", cfg.LockoutThreshold)
	}
	if cfg.LockoutDuration != time.Minute {
		t.Errorf("expected 1m lockout, got %s", cfg.LockoutDuration)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("LIMS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LIMS_CONFIG_FILE", "")
	t.Setenv("LOCKOUT_THRESHOLD", "zero")
	t.Setenv("JWT_EXPIRES_IN", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LockoutThreshold != 5 {
		t.Errorf("expected fallback threshold 5, got %d", cfg.LockoutThreshold)
	}
	if cfg.JWTExpirationDur != 15*time.Minute {
		t.Errorf("expected fallback 15m, got %s", cfg.JWTExpirationDur)
	}
}
