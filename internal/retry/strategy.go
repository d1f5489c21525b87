package retry

import (
	"fmt"
	"math"
	"time"
)

// Strategy selects the backoff curve.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
)

// Config controls retry behavior for one manager.
type Config struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Strategy          Strategy      `yaml:"strategy"`
}

// DefaultConfig provides sensible defaults for store/server calls.
// 1s, 2s, 4s, 8s, 16s (max 30s).
func DefaultConfig() Config {
	return Config{
		MaxRetries:        5,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Strategy:          StrategyExponential,
	}
}

// Validate checks the configuration for values the delay math cannot handle.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must be >= 0, got %v", c.BaseDelay)
	}
	if c.Strategy == StrategyExponential && c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %v", c.BackoffMultiplier)
	}
	switch c.Strategy {
	case StrategyFixed, StrategyLinear, StrategyExponential:
		return nil
	}
	return fmt.Errorf("unknown strategy %q", c.Strategy)
}

// Delay computes the wait before the invocation following attemptIndex
// recorded failures. attemptIndex starts at 1 for the first retry; values
// below 1 mean no attempt was recorded yet and wait nothing.
func (c Config) Delay(attemptIndex int) time.Duration {
	if attemptIndex < 1 {
		return 0
	}

	switch c.Strategy {
	case StrategyFixed:
		return c.BaseDelay
	case StrategyLinear:
		return c.BaseDelay * time.Duration(attemptIndex)
	case StrategyExponential:
		d := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(attemptIndex-1))
		if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
			return c.MaxDelay
		}
		return time.Duration(d)
	}
	return c.BaseDelay
}
