package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	c := Config{}
	c.App.Env = "local"
	c.App.Port = 8080
	c.DB.Host = "localhost"
	c.DB.Port = 5432
	c.DB.User = "robot"
	c.DB.Name = "callwave"
	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Auth.JWTSecret = "secret"
	c.ARI.URL = "http://localhost:8088"
	c.ARI.Username = "robot"
	return c
}

func TestValidate_OK(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	c := validConfig()
	c.DB.Host = ""
	c.ARI.URL = ""
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "DB_HOST") || !strings.Contains(err.Error(), "ARI_URL") {
		t.Fatalf("expected joined errors, got %v", err)
	}
}

func TestValidate_SSLModeRequiredInProduction(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()
	c.applyDefaults()

	if c.Dispatch.MaxConcurrentCalls != 8 {
		t.Fatalf("expected ceiling 8, got %d", c.Dispatch.MaxConcurrentCalls)
	}
	if c.Dispatch.LaunchSpacing != 2*time.Second {
		t.Fatalf("expected 2s spacing, got %s", c.Dispatch.LaunchSpacing)
	}
	if c.Dispatch.PollInterval != 5*time.Second {
		t.Fatalf("expected 5s poll, got %s", c.Dispatch.PollInterval)
	}
	if c.Dispatch.StuckCallTimeout != 120*time.Second {
		t.Fatalf("expected 120s stuck timeout, got %s", c.Dispatch.StuckCallTimeout)
	}
	if c.Speech.RequestTimeout != 10*time.Second {
		t.Fatalf("expected 10s speech timeout, got %s", c.Speech.RequestTimeout)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable, got %q", c.DB.SSLMode)
	}
}

func TestPostgresDSN(t *testing.T) {
	c := validConfig()
	c.DB.SSLMode = "disable"
	dsn := c.PostgresDSN()
	if !strings.Contains(dsn, "dbname=callwave") || !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}
