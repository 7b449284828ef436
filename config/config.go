package config

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration settings of the application.
type Config struct {
	Port           int    `yaml:"port"`
	Pepper         string `yaml:"pepper"`
	SigningKey     string `yaml:"signing_key"`
	SessionTTLHour int    `yaml:"session_ttl_hours"`
	DatabaseDSN    string `yaml:"database_dsn"`
	UsersFile      string `yaml:"users_file"`
}

// LoadConfig loads the configuration from .config.yaml. The two secrets,
// BULLDOGGY_SIGNING_KEY and BULLDOGGY_PEPPER, may also come from the
// environment (a .env file is picked up automatically) so they can stay
// out of the config file.
func LoadConfig() (Config, error) {
	c := Config{
		Port:           8000,
		SessionTTLHour: 24,
		DatabaseDSN:    "./database/bulldoggy.db",
		UsersFile:      "./users.gob",
	}

	data, err := os.ReadFile(".config.yaml")
	if err != nil {
		return Config{}, fmt.Errorf("error reading .config.yaml: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling .config.yaml: %w", err)
	}

	if v := os.Getenv("BULLDOGGY_SIGNING_KEY"); v != "" {
		c.SigningKey = v
	}
	if v := os.Getenv("BULLDOGGY_PEPPER"); v != "" {
		c.Pepper = v
	}

	if c.SigningKey == "" {
		return Config{}, fmt.Errorf("signing_key is required")
	}
	return c, nil
}
