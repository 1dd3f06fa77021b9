package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "WELCOME_CREDIT", "LEDGER_BACKEND", "GENERATION_TIMEOUT", "GENERATION_TEMPERATURE"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "3001" {
		t.Errorf("Expected default port 3001, got %s", cfg.Port)
	}
	if cfg.WelcomeCredit != 25 {
		t.Errorf("Expected welcome credit 25, got %d", cfg.WelcomeCredit)
	}
	if cfg.LedgerBackend != BackendMemory {
		t.Errorf("Expected memory ledger backend, got %s", cfg.LedgerBackend)
	}
	if cfg.GenerationTimeout != 20*time.Second {
		t.Errorf("Expected 20s generation timeout, got %s", cfg.GenerationTimeout)
	}
	if cfg.GenerationTemperature != 0.7 {
		t.Errorf("Expected temperature 0.7, got %v", cfg.GenerationTemperature)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WELCOME_CREDIT", "10")
	t.Setenv("LEDGER_BACKEND", "Redis")
	t.Setenv("GENERATION_TIMEOUT", "5s")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ACCESSIBLE_PER_GENDER", "not-a-number")

	cfg := Load()

	if cfg.WelcomeCredit != 10 {
		t.Errorf("Expected welcome credit 10, got %d", cfg.WelcomeCredit)
	}
	if cfg.LedgerBackend != BackendRedis {
		t.Errorf("Expected redis backend, got %s", cfg.LedgerBackend)
	}
	if cfg.GenerationTimeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %s", cfg.GenerationTimeout)
	}
	if !cfg.IsProduction() {
		t.Error("Expected production environment")
	}
	if cfg.AccessiblePerGender != 3 {
		t.Errorf("Invalid integers should fall back to the default, got %d", cfg.AccessiblePerGender)
	}
}
