package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseDriver != DriverSQLite || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database defaults: %#v", cfg)
	}
	if cfg.SessionCookieName != "movieclub_session" {
		t.Fatalf("unexpected cookie name %q", cfg.SessionCookieName)
	}
	if cfg.SessionTTL != 365*24*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("expected no allowed origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("MOVIECLUB_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("MOVIECLUB_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("MOVIECLUB_SITE_URL", "https://club.example.com/")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SessionSigningSecret != "from-env" {
		t.Fatalf("expected signing secret from env, got %q", cfg.SessionSigningSecret)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.SiteURL != "https://club.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.SiteURL)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name     string
		settings map[string]any
	}{
		{name: "missing secret", settings: map[string]any{}},
		{name: "unknown driver", settings: map[string]any{"auth.signing_secret": "s", "database.driver": "mysql"}},
		{name: "postgres without dsn", settings: map[string]any{"auth.signing_secret": "s", "database.driver": "postgres"}},
		{name: "smtp without sender", settings: map[string]any{"auth.signing_secret": "s", "smtp.host": "smtp.example.com"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.settings {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
