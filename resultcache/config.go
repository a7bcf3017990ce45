/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package resultcache

import (
	"fmt"
	"time"

	"github.com/bigschom/ss-portal/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyTTL         = "ttl"
	cfgKeyErrorWindow = "errorWindow"
	cfgKeyMaxEntries  = "maxEntries"
)

// Config is the "cache" section of the configuration.
type Config struct {
	TTL         config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	ErrorWindow config.TimeDuration `mapstructure:"errorWindow" yaml:"errorWindow" json:"errorWindow"`
	MaxEntries  int                 `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config. An empty keyPrefix means "cache".
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
	dp.SetDefault(cfgKeyTTL, DefaultTTL.String())
	dp.SetDefault(cfgKeyErrorWindow, DefaultErrorWindow.String())
	dp.SetDefault(cfgKeyMaxEntries, DefaultMaxEntries)
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	ttl, err := config.GetPositiveDuration(dp, cfgKeyTTL)
	if err != nil {
		return err
	}
	errorWindow, err := config.GetPositiveDuration(dp, cfgKeyErrorWindow)
	if err != nil {
		return err
	}
	if errorWindow > ttl {
		return dp.WrapKeyErr(cfgKeyErrorWindow, fmt.Errorf("should not exceed %s (%s), got %s",
			cfgKeyTTL, ttl, errorWindow))
	}
	maxEntries, err := dp.GetInt(cfgKeyMaxEntries)
	if err != nil {
		return err
	}
	if maxEntries < 1 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, fmt.Errorf("should be >= 1"))
	}
	c.TTL = config.TimeDuration(ttl)
	c.ErrorWindow = config.TimeDuration(errorWindow)
	c.MaxEntries = maxEntries
	return nil
}

// Opts converts the config into cache options.
func (c *Config) Opts() Opts {
	return Opts{TTL: time.Duration(c.TTL), ErrorWindow: time.Duration(c.ErrorWindow), MaxEntries: c.MaxEntries}
}
