package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/practice_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("expected development mode by default")
	}
	if cfg.DefaultTenant != "default" {
		t.Errorf("DefaultTenant = %q, want default", cfg.DefaultTenant)
	}
	if cfg.ReportTTL() != 5*time.Minute {
		t.Errorf("ReportTTL = %v, want 5m", cfg.ReportTTL())
	}
	if cfg.ReminderWindow() != 24*time.Hour {
		t.Errorf("ReminderWindow = %v, want 24h", cfg.ReminderWindow())
	}
}

func TestValidateRequiresJWTSecretOutsideDev(t *testing.T) {
	cfg := &Config{Env: "production", GatewayBaseURL: "https://clearinghouse.example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when JWT_SECRET missing in production")
	}

	cfg.JWTSecret = "super-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequiresGatewayInProduction(t *testing.T) {
	cfg := &Config{Env: "production", JWTSecret: "s"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when GATEWAY_BASE_URL missing in production")
	}
}
