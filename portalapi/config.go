/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package portalapi

import (
	"fmt"
	"net/url"
	"time"

	"github.com/bigschom/ss-portal/config"
	"github.com/bigschom/ss-portal/httpclient"
	"github.com/bigschom/ss-portal/retry"
)

const cfgDefaultKeyPrefix = "backend"

// DefaultAuditLogsTTL is a lifetime of cached audit log pages.
// Audit logs change often, so they are kept shorter than other resources.
const DefaultAuditLogsTTL = 30 * time.Second

const (
	cfgKeyBaseURL      = "baseURL"
	cfgKeyAPIKey       = "apiKey"
	cfgKeyAuditLogsTTL = "auditLogsTTL"
	cfgKeyRetries      = "retries"
)

// Config is the "backend" section of the configuration.
// Transport settings (timeout, rateLimits, log, metrics) are read from the same section.
type Config struct {
	BaseURL      string              `mapstructure:"baseURL" yaml:"baseURL" json:"baseURL"`
	APIKey       string              `mapstructure:"apiKey" yaml:"apiKey" json:"apiKey"`
	AuditLogsTTL config.TimeDuration `mapstructure:"auditLogsTTL" yaml:"auditLogsTTL" json:"auditLogsTTL"`
	Retries      retry.Config        `mapstructure:"retries" yaml:"retries" json:"retries"`

	HTTPClient httpclient.Config `mapstructure:",squash" yaml:",inline" json:",inline"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config. An empty keyPrefix means "backend".
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
	dp.SetDefault(cfgKeyAuditLogsTTL, DefaultAuditLogsTTL.String())
	c.HTTPClient.SetProviderDefaults(dp)
	c.Retries.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyRetries))
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	baseURL, err := dp.GetString(cfgKeyBaseURL)
	if err != nil {
		return err
	}
	if baseURL == "" {
		return dp.WrapKeyErr(cfgKeyBaseURL, fmt.Errorf("must not be empty"))
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return dp.WrapKeyErr(cfgKeyBaseURL, fmt.Errorf("scheme must be http or https, got %q", u.Scheme))
	}
	if c.APIKey, err = dp.GetString(cfgKeyAPIKey); err != nil {
		return err
	}
	auditLogsTTL, err := config.GetPositiveDuration(dp, cfgKeyAuditLogsTTL)
	if err != nil {
		return err
	}
	if err = c.HTTPClient.Set(dp); err != nil {
		return err
	}
	if err = c.Retries.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyRetries)); err != nil {
		return err
	}
	c.BaseURL = baseURL
	c.AuditLogsTTL = config.TimeDuration(auditLogsTTL)
	return nil
}
