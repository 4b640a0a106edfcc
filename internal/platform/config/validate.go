package config

import (
	"fmt"
	"time"
)

// Validate performs rule validation on the loaded configuration and resolves
// derived values. Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Autosave.DebounceInterval <= 0 {
		return fmt.Errorf("autosave.debounce_interval must be > 0 (got %s)", c.Autosave.DebounceInterval)
	}
	if c.Autosave.ManualSaveThreshold < 1 {
		return fmt.Errorf("autosave.manual_save_threshold must be >= 1 (got %d)", c.Autosave.ManualSaveThreshold)
	}
	if err := c.Sweeper.validate(); err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive when enabled")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.NotificationTopic == "" {
		return fmt.Errorf("kafka.notification_topic is required when brokers are set")
	}
	return nil
}

func (s *SweeperConfig) validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 (got %s)", s.Interval)
	}
	if s.GracePeriod < 0 {
		return fmt.Errorf("grace_period must be >= 0 (got %s)", s.GracePeriod)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1 (got %d)", s.Concurrency)
	}
	for _, d := range s.WarningDays {
		if d < 1 {
			return fmt.Errorf("warning_days entries must be >= 1 (got %d)", d)
		}
	}
	if s.LedgerTTL < 24*time.Hour {
		return fmt.Errorf("ledger_ttl must cover at least one day (got %s)", s.LedgerTTL)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	s.Location = loc
	return nil
}
