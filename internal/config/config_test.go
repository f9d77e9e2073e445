package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGIN", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("DASHBOARD_CACHE_TTL_SECONDS", "")
	t.Setenv("LOW_STOCK_THRESHOLD", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port: %q", cfg.Port)
	}
	if cfg.AllowedOrigin != "http://127.0.0.1:3000" {
		t.Fatalf("allowed origin: %q", cfg.AllowedOrigin)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl: %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.DashboardCacheTTLSeconds != 30 {
		t.Fatalf("cache ttl: %d", cfg.DashboardCacheTTLSeconds)
	}
	if cfg.LowStockThreshold != 10 {
		t.Fatalf("low stock threshold: %d", cfg.LowStockThreshold)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address: %q", cfg.Address())
	}
}

func TestLoadOverridesAndBadValues(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "60")
	t.Setenv("DASHBOARD_CACHE_TTL_SECONDS", "notanumber")
	t.Setenv("LOW_STOCK_THRESHOLD", "-3")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Fatalf("port: %q", cfg.Port)
	}
	if cfg.AccessTokenTTLMinutes != 60 {
		t.Fatalf("token ttl: %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.DashboardCacheTTLSeconds != 30 {
		t.Fatalf("bad cache ttl should fall back: %d", cfg.DashboardCacheTTLSeconds)
	}
	if cfg.LowStockThreshold != 10 {
		t.Fatalf("negative threshold should fall back: %d", cfg.LowStockThreshold)
	}
}
