package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	if cfg.DBPath != "bancho.db" || cfg.DataDir != ".data" {
		t.Fatalf("paths %q %q", cfg.DBPath, cfg.DataDir)
	}
	if cfg.LoginRate != 1 || cfg.LoginBurst != 5 {
		t.Fatalf("login limits %v/%d", cfg.LoginRate, cfg.LoginBurst)
	}
	if cfg.MaxClientAge != 1440*time.Hour {
		t.Fatalf("client age %v", cfg.MaxClientAge)
	}
	if cfg.PPCapVanilla != 1500 || cfg.PPCapRelax != 2500 {
		t.Fatalf("pp caps %d/%d", cfg.PPCapVanilla, cfg.PPCapRelax)
	}
	if cfg.PPCapVanillaFL != 1200 || cfg.PPCapRelaxFL != 2000 {
		t.Fatalf("flashlight pp caps %d/%d", cfg.PPCapVanillaFL, cfg.PPCapRelaxFL)
	}
	if cfg.MenuIconURL != "" {
		t.Fatalf("menu icon should default empty, got %q", cfg.MenuIconURL)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BANCHO_ADDR", ":9999")
	t.Setenv("BANCHO_MAX_CLIENT_AGE", "24h")
	t.Setenv("BANCHO_PP_CAP_VN", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	if cfg.MaxClientAge != 24*time.Hour {
		t.Fatalf("client age %v", cfg.MaxClientAge)
	}
	if cfg.PPCapVanilla != 0 {
		t.Fatalf("pp cap %d", cfg.PPCapVanilla)
	}
}
