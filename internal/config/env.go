package config

import "github.com/caarlos0/env/v11"

// FromEnv overlays DUEUE_* environment variables onto cfg. Env always wins
// over file values.
func FromEnv(cfg *Config) error {
	return env.Parse(cfg)
}
