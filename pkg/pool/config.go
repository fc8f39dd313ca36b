package pool

import (
	"errors"
	"time"
)

// Default pool settings.
const (
	DefaultMaxIdlePerHost = 32
	DefaultMaxLifetime    = 5 * time.Minute
	DefaultIdleTimeout    = 90 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultSweepInterval  = 30 * time.Second
)

// Config configures a Pool.
type Config struct {
	Enabled        bool          `yaml:"enabled" envconfig:"ENABLED"`
	MaxIdlePerHost int           `yaml:"maxIdlePerHost" envconfig:"MAX_IDLE_PER_HOST"`
	MaxLifetime    time.Duration `yaml:"maxLifetime" envconfig:"MAX_LIFETIME"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" envconfig:"IDLE_TIMEOUT"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" envconfig:"CONNECT_TIMEOUT"`
	SweepInterval  time.Duration `yaml:"sweepInterval" envconfig:"SWEEP_INTERVAL"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MaxIdlePerHost: DefaultMaxIdlePerHost,
		MaxLifetime:    DefaultMaxLifetime,
		IdleTimeout:    DefaultIdleTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		SweepInterval:  DefaultSweepInterval,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	var errs []error
	if c.MaxIdlePerHost < 0 {
		errs = append(errs, errors.New("maxIdlePerHost must not be negative"))
	}
	if c.MaxLifetime <= 0 {
		errs = append(errs, errors.New("maxLifetime must be positive"))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idleTimeout must be positive"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connectTimeout must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweepInterval must be positive"))
	}
	return errors.Join(errs...)
}
