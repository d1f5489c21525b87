package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/purchasekit/internal/recovery"
	"github.com/vietddude/purchasekit/internal/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Mode == "" {
		cfg.Store.Mode = "sim"
	}

	if cfg.Retry.Strategy == "" {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = 30 * time.Second
	}
	if cfg.Recovery.SweepInterval == 0 {
		defaults := recovery.DefaultConfig()
		cfg.Recovery.SweepInterval = defaults.SweepInterval
		cfg.Recovery.SweepOnStart = defaults.SweepOnStart
		cfg.Recovery.RecoverOrders = defaults.RecoverOrders
	}
	if cfg.Recovery.FinishedTTL == 0 {
		cfg.Recovery.FinishedTTL = recovery.DefaultConfig().FinishedTTL
	}
	if cfg.Janitor.Interval == 0 {
		cfg.Janitor.Interval = time.Hour
	}
}
