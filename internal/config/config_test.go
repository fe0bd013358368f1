package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefault(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RATE_CACHE_TTL_SECONDS", "")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected address :8080, got %s", cfg.Address())
	}
	if cfg.RateCacheTTLSeconds != 300 || cfg.ReportCacheTTLSeconds != 60 {
		t.Fatalf("unexpected cache TTL defaults: %d/%d", cfg.RateCacheTTLSeconds, cfg.ReportCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestLoadRejectsBrokenTTLs(t *testing.T) {
	t.Setenv("RATE_CACHE_TTL_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.RateCacheTTLSeconds != 300 {
		t.Fatalf("broken rate TTL should fall back to 300, got %d", cfg.RateCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("negative token TTL should fall back to 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
