package config

import (
	"time"

	"github.com/vietddude/purchasekit/internal/infra/orderapi"
	redisclient "github.com/vietddude/purchasekit/internal/infra/redis"
	"github.com/vietddude/purchasekit/internal/infra/storage/postgres"
	"github.com/vietddude/purchasekit/internal/infra/validation"
	"github.com/vietddude/purchasekit/internal/monitor"
	"github.com/vietddude/purchasekit/internal/recovery"
	"github.com/vietddude/purchasekit/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Store     StoreConfig        `yaml:"store"`
	Retry     retry.Config       `yaml:"retry"`
	Monitor   monitor.Config     `yaml:"monitor"`
	Recovery  recovery.Config    `yaml:"recovery"`
	Orders    orderapi.Config    `yaml:"orders"`
	Validator validation.Config  `yaml:"validator"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Janitor   JanitorConfig      `yaml:"janitor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StoreConfig selects the purchase store backend.
type StoreConfig struct {
	// Mode is "sim" for the in-process simulated store. Only the simulated
	// backend ships in this build.
	Mode     string          `yaml:"mode"`
	Products []ProductConfig `yaml:"products"`
}

// ProductConfig seeds a simulated catalog entry.
type ProductConfig struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Price    string `yaml:"price"`
	Currency string `yaml:"currency"`
}

// JanitorConfig holds settlement cleanup settings.
type JanitorConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Retention time.Duration `yaml:"retention"` // settled orders older than this are purged, 0 = keep forever
}
