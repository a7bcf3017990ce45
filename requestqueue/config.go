/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package requestqueue

import (
	"fmt"
	"time"

	"github.com/bigschom/ss-portal/config"
)

const cfgDefaultKeyPrefix = "queue"

const (
	cfgKeyMaxConcurrent = "maxConcurrent"
	cfgKeyDrainDelay    = "drainDelay"
)

// Config is the "queue" section of the configuration.
type Config struct {
	MaxConcurrent int `mapstructure:"maxConcurrent" yaml:"maxConcurrent" json:"maxConcurrent"`

	// DrainDelay is a pause between a completion and the start of waiting operations.
	// Zero disables the pause.
	DrainDelay config.TimeDuration `mapstructure:"drainDelay" yaml:"drainDelay" json:"drainDelay"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config. An empty keyPrefix means "queue".
func NewConfig(keyPrefix string) *Config {
	if keyPrefix == "" {
		keyPrefix = cfgDefaultKeyPrefix
	}
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxConcurrent, DefaultMaxConcurrent)
	dp.SetDefault(cfgKeyDrainDelay, DefaultDrainDelay.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	maxConcurrent, err := dp.GetInt(cfgKeyMaxConcurrent)
	if err != nil {
		return err
	}
	if maxConcurrent < 1 {
		return dp.WrapKeyErr(cfgKeyMaxConcurrent, fmt.Errorf("should be >= 1"))
	}
	drainDelay, err := dp.GetDuration(cfgKeyDrainDelay)
	if err != nil {
		return err
	}
	if drainDelay < 0 {
		return dp.WrapKeyErr(cfgKeyDrainDelay, fmt.Errorf("should be >= 0"))
	}
	c.MaxConcurrent = maxConcurrent
	c.DrainDelay = config.TimeDuration(drainDelay)
	return nil
}

// Opts converts the config into queue options.
func (c *Config) Opts() Opts {
	drainDelay := time.Duration(c.DrainDelay)
	if drainDelay == 0 {
		drainDelay = NoDrainDelay
	}
	return Opts{MaxConcurrent: c.MaxConcurrent, DrainDelay: drainDelay}
}
