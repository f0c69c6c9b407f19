// Package config loads the node's TOML configuration file, generating a
// default one the first time it is run against a path that does not yet
// exist. The Treasury key itself is never stored here: it lives in the
// encrypted keystore file at TreasuryKeystorePath, per crypto/keystore.go.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the node daemon's full configuration surface.
type Config struct {
	ListenAddress        string `toml:"ListenAddress"`
	DataDir              string `toml:"DataDir"`
	EventStorePath       string `toml:"EventStorePath"`
	TreasuryKeystorePath string `toml:"TreasuryKeystorePath"`
	TreasuryBalance      uint64 `toml:"TreasuryBalance"`
	JWTSigningSecret     string `toml:"JWTSigningSecret"`
	RateLimitPerMin      int    `toml:"RateLimitPerMin"`
}

// Load reads the configuration at path, creating a default one if it does
// not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:        ":8080",
		DataDir:              "./opschain-data",
		EventStorePath:       "./opschain-data/events.db",
		TreasuryKeystorePath: "./opschain-data/treasury.keystore",
		TreasuryBalance:      1_000_000,
		RateLimitPerMin:      60,
	}
	if err := save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
