// Package config loads server configuration from the environment, with
// an optional .env file for development convenience.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all server configuration. Environment variables override
// .env entries, which override the tagged defaults.
type Config struct {
	Addr    string `env:"BANCHO_ADDR" envDefault:":8080"`
	Domain  string `env:"BANCHO_DOMAIN" envDefault:"localhost"`
	DBPath  string `env:"BANCHO_DB" envDefault:"bancho.db"`
	DataDir string `env:"BANCHO_DATA_DIR" envDefault:".data"`

	// Menu icon shown on the client's main screen. Empty disables it.
	MenuIconURL    string `env:"BANCHO_MENU_ICON_URL"`
	MenuOnclickURL string `env:"BANCHO_MENU_ONCLICK_URL"`

	// Login rate limiting, per source IP.
	LoginRate  float64 `env:"BANCHO_LOGIN_RATE" envDefault:"1"`
	LoginBurst int     `env:"BANCHO_LOGIN_BURST" envDefault:"5"`

	// Clients whose build date is older than this are forced to update.
	MaxClientAge time.Duration `env:"BANCHO_MAX_CLIENT_AGE" envDefault:"1440h"`

	// Scores above the pp cap restrict the submitter unless
	// whitelisted. Caps are keyed on mode and on flashlight, which has
	// its own (lower) ceiling. Zero disables the check.
	PPCapVanilla   uint32 `env:"BANCHO_PP_CAP_VN" envDefault:"1500"`
	PPCapVanillaFL uint32 `env:"BANCHO_PP_CAP_VN_FL" envDefault:"1200"`
	PPCapRelax     uint32 `env:"BANCHO_PP_CAP_RX" envDefault:"2500"`
	PPCapRelaxFL   uint32 `env:"BANCHO_PP_CAP_RX_FL" envDefault:"2000"`

	LogLevel string `env:"BANCHO_LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
