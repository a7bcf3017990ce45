/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package retry

import (
	"fmt"
	"time"

	"github.com/bigschom/ss-portal/config"
)

// Backoff strategies.
const (
	StrategyExponential = "exponential"
	StrategyConstant    = "constant"
)

// Default values.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 200 * time.Millisecond
)

const (
	cfgKeyEnabled         = "enabled"
	cfgKeyMaxAttempts     = "maxAttempts"
	cfgKeyStrategy        = "strategy"
	cfgKeyInitialInterval = "initialInterval"
)

// Config is a retry section, it is embedded into configs of components that call remote services
// (e.g. "backend.retries").
type Config struct {
	Enabled         bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxAttempts     int                 `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	Strategy        string              `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	InitialInterval config.TimeDuration `mapstructure:"initialInterval" yaml:"initialInterval" json:"initialInterval"`
}

var _ config.Config = (*Config)(nil)

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, true)
	dp.SetDefault(cfgKeyMaxAttempts, DefaultMaxAttempts)
	dp.SetDefault(cfgKeyStrategy, StrategyExponential)
	dp.SetDefault(cfgKeyInitialInterval, DefaultInitialInterval.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.MaxAttempts, err = dp.GetInt(cfgKeyMaxAttempts); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyMaxAttempts, fmt.Errorf("should be >= 0"))
	}
	if c.Strategy, err = dp.GetStringFromSet(cfgKeyStrategy, []string{StrategyExponential, StrategyConstant}, false); err != nil {
		return err
	}
	interval, err := config.GetPositiveDuration(dp, cfgKeyInitialInterval)
	if err != nil {
		return err
	}
	c.InitialInterval = config.TimeDuration(interval)
	return nil
}

// Policy builds the backoff policy described by the config.
// Nil is returned when retries are disabled.
func (c *Config) Policy() Policy {
	if !c.Enabled {
		return nil
	}
	if c.Strategy == StrategyConstant {
		return NewConstantBackoffPolicy(c.InitialInterval.Duration(), c.MaxAttempts)
	}
	return NewExponentialBackoffPolicy(c.InitialInterval.Duration(), c.MaxAttempts)
}
