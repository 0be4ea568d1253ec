package otp

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls passcode timing.
//
// The value is read at startup so operator-controlled defaults can be tuned
// without changing runtime code paths.
type Config struct {
	TTL time.Duration `env:"HDNOTES_OTP_TTL" envDefault:"10m"`
}

// LoadConfigFromEnv loads passcode configuration and applies defensive
// defaults.
//
// The default is intentionally explicit because passcode lifetime is
// security-sensitive and should remain predictable in local and CI
// environments.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.TTL == 0 {
		cfg.TTL = 10 * time.Minute
	}
	return cfg
}
