package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration of a ledger deployment.
type Config struct {
	Service     string `toml:"Service"`
	Environment string `toml:"Environment"`

	Ledger   Ledger   `toml:"ledger"`
	Storage  Storage  `toml:"storage"`
	Audit    Audit    `toml:"audit"`
	Webhooks Webhooks `toml:"webhooks"`
	Pauses   Pauses   `toml:"pauses"`
	Quotas   Quotas   `toml:"quotas"`
}

// Default returns the configuration a fresh deployment starts from: daily
// periods, nano rate scale, cent-style accuracy unit.
func Default() *Config {
	return &Config{
		Service:     "ledgerd",
		Environment: "local",
		Ledger: Ledger{
			PeriodSeconds:    86_400,
			RateScale:        1_000_000_000,
			AccuracyUnit:     10_000,
			CooldownPeriods:  3,
			InstallmentLimit: 255,
		},
		Storage: Storage{
			DataDir: "./ledger-data",
		},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults; unknown keys are rejected so typos never silently
// disable a setting.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if strings.TrimSpace(cfg.Service) == "" {
		cfg.Service = "ledgerd"
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
