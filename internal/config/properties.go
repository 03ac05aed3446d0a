package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Keys understood in a legacy config.properties file.
const (
	propURL      = "signalk_url"
	propUsername = "signalk_username"
	propPassword = "signalk_password"
)

// readProperties loads a key=value properties file, then lets cleanenv
// apply defaults and environment overrides on top of it.
func readProperties(path string, cfg *Config) error {
	props, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to parse properties %s: %w", path, err)
	}

	cfg.Hub.URL = props[propURL]
	cfg.Hub.Username = props[propUsername]
	cfg.Hub.Password = props[propPassword]

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	return nil
}
