/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/bigschom/ss-portal/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress = "address"

	cfgKeyTLSEnabled = "tls.enabled"
	cfgKeyTLSCert    = "tls.cert"
	cfgKeyTLSKey     = "tls.key"

	cfgKeyTimeoutsWrite      = "timeouts.write"
	cfgKeyTimeoutsRead       = "timeouts.read"
	cfgKeyTimeoutsReadHeader = "timeouts.readHeader"
	cfgKeyTimeoutsIdle       = "timeouts.idle"
	cfgKeyTimeoutsShutdown   = "timeouts.shutdown"

	cfgKeyLimitsMaxBodySize        = "limits.maxBodySize"
	cfgKeyLimitsMaxRequests        = "limits.maxRequests"
	cfgKeyLimitsMaxRequestsBacklog = "limits.maxRequestsBacklog"
	cfgKeyLimitsBacklogTimeout     = "limits.backlogTimeout"

	cfgKeyLogRequestStart         = "log.requestStart"
	cfgKeyLogRequestHeaders       = "log.requestHeaders"
	cfgKeyLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyLogSecretQueryParams    = "log.secretQueryParams" // nolint:gosec // false positive
	cfgKeyLogAddRequestInfo       = "log.addRequestInfo"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
)

// Default values of the "server" section.
const (
	DefaultAddress              = ":8080"
	DefaultMaxBodySize          = 64 * 1024
	DefaultBacklogTimeout       = 5 * time.Second
	DefaultSlowRequestThreshold = time.Second
)

var defaultTimeouts = TimeoutsConfig{
	Write:      config.TimeDuration(time.Minute),
	Read:       config.TimeDuration(15 * time.Second),
	ReadHeader: config.TimeDuration(10 * time.Second),
	Idle:       config.TimeDuration(time.Minute),
	Shutdown:   config.TimeDuration(5 * time.Second),
}

// Config is the "server" section of the gateway configuration.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	TLS      TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*Config)

// WithKeyPrefix sets the configuration section used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) {
		c.keyPrefix = keyPrefix
	}
}

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig(options ...ConfigOption) *Config {
	cfg := &Config{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// NewDefaultConfig creates a Config with the same values config.Loader sets for an empty section.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = DefaultAddress
	cfg.Timeouts = defaultTimeouts
	cfg.Limits = LimitsConfig{MaxBodySize: DefaultMaxBodySize, BacklogTimeout: config.TimeDuration(DefaultBacklogTimeout)}
	cfg.Log = LogConfig{SlowRequestThreshold: config.TimeDuration(DefaultSlowRequestThreshold)}
	return cfg
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
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyTimeoutsWrite, time.Duration(defaultTimeouts.Write).String())
	dp.SetDefault(cfgKeyTimeoutsRead, time.Duration(defaultTimeouts.Read).String())
	dp.SetDefault(cfgKeyTimeoutsReadHeader, time.Duration(defaultTimeouts.ReadHeader).String())
	dp.SetDefault(cfgKeyTimeoutsIdle, time.Duration(defaultTimeouts.Idle).String())
	dp.SetDefault(cfgKeyTimeoutsShutdown, time.Duration(defaultTimeouts.Shutdown).String())
	dp.SetDefault(cfgKeyLimitsMaxBodySize, "64K")
	dp.SetDefault(cfgKeyLimitsMaxRequests, 0)
	dp.SetDefault(cfgKeyLimitsMaxRequestsBacklog, 0)
	dp.SetDefault(cfgKeyLimitsBacklogTimeout, DefaultBacklogTimeout.String())
	dp.SetDefault(cfgKeyLogRequestStart, false)
	dp.SetDefault(cfgKeyLogAddRequestInfo, false)
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, DefaultSlowRequestThreshold.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("must not be empty"))
	}
	for _, s := range []interface{ set(config.DataProvider) error }{&c.TLS, &c.Timeouts, &c.Limits, &c.Log} {
		if err = s.set(dp); err != nil {
			return err
		}
	}
	return nil
}

// TimeoutsConfig holds the timeouts of http.Server and the graceful shutdown timeout.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

func (t *TimeoutsConfig) set(dp config.DataProvider) error {
	targets := map[string]*config.TimeDuration{
		cfgKeyTimeoutsWrite:      &t.Write,
		cfgKeyTimeoutsRead:       &t.Read,
		cfgKeyTimeoutsReadHeader: &t.ReadHeader,
		cfgKeyTimeoutsIdle:       &t.Idle,
		cfgKeyTimeoutsShutdown:   &t.Shutdown,
	}
	for _, key := range []string{
		cfgKeyTimeoutsWrite, cfgKeyTimeoutsRead, cfgKeyTimeoutsReadHeader, cfgKeyTimeoutsIdle, cfgKeyTimeoutsShutdown,
	} {
		if err := setNonNegativeDuration(dp, key, targets[key]); err != nil {
			return err
		}
	}
	return nil
}

// LimitsConfig limits the requests served by the gateway.
type LimitsConfig struct {
	// MaxBodySize is the maximum size of a request body. Status updates are the only requests with a body.
	MaxBodySize config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`

	// MaxRequests is the maximum number of API requests served at once, 0 means no limit.
	// Requests above the limit wait in a backlog of MaxRequestsBacklog places for at most BacklogTimeout
	// and are rejected with 429 otherwise.
	MaxRequests        int                 `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`
	MaxRequestsBacklog int                 `mapstructure:"maxRequestsBacklog" yaml:"maxRequestsBacklog" json:"maxRequestsBacklog"`
	BacklogTimeout     config.TimeDuration `mapstructure:"backlogTimeout" yaml:"backlogTimeout" json:"backlogTimeout"`
}

func (l *LimitsConfig) set(dp config.DataProvider) error {
	maxBodySize, err := dp.GetByteSize(cfgKeyLimitsMaxBodySize)
	if err != nil {
		return err
	}
	if maxBodySize == 0 {
		return dp.WrapKeyErr(cfgKeyLimitsMaxBodySize, fmt.Errorf("must be positive"))
	}
	l.MaxBodySize = maxBodySize

	for key, dst := range map[string]*int{
		cfgKeyLimitsMaxRequests:        &l.MaxRequests,
		cfgKeyLimitsMaxRequestsBacklog: &l.MaxRequestsBacklog,
	} {
		if *dst, err = dp.GetInt(key); err != nil {
			return err
		}
		if *dst < 0 {
			return dp.WrapKeyErr(key, fmt.Errorf("must not be negative, got %d", *dst))
		}
	}
	return setNonNegativeDuration(dp, cfgKeyLimitsBacklogTimeout, &l.BacklogTimeout)
}

// LogConfig configures the request logging.
type LogConfig struct {
	RequestStart           bool                `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	RequestHeaders         []string            `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints      []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SecretQueryParams      []string            `mapstructure:"secretQueryParams" yaml:"secretQueryParams" json:"secretQueryParams"`
	AddRequestInfoToLogger bool                `mapstructure:"addRequestInfo" yaml:"addRequestInfo" json:"addRequestInfo"`
	SlowRequestThreshold   config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

func (l *LogConfig) set(dp config.DataProvider) error {
	var err error
	for key, dst := range map[string]*bool{
		cfgKeyLogRequestStart:   &l.RequestStart,
		cfgKeyLogAddRequestInfo: &l.AddRequestInfoToLogger,
	} {
		if *dst, err = dp.GetBool(key); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*[]string{
		cfgKeyLogRequestHeaders:    &l.RequestHeaders,
		cfgKeyLogExcludedEndpoints: &l.ExcludedEndpoints,
		cfgKeyLogSecretQueryParams: &l.SecretQueryParams,
	} {
		if *dst, err = dp.GetStringSlice(key); err != nil {
			return err
		}
	}
	return setNonNegativeDuration(dp, cfgKeyLogSlowRequestThreshold, &l.SlowRequestThreshold)
}

// TLSConfig enables HTTPS. Both the certificate and the key are paths to PEM files.
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Certificate string `mapstructure:"cert" yaml:"cert" json:"cert"`
	Key         string `mapstructure:"key" yaml:"key" json:"key"`
}

func (s *TLSConfig) set(dp config.DataProvider) error {
	var err error
	if s.Enabled, err = dp.GetBool(cfgKeyTLSEnabled); err != nil {
		return err
	}
	if s.Certificate, err = dp.GetString(cfgKeyTLSCert); err != nil {
		return err
	}
	if s.Key, err = dp.GetString(cfgKeyTLSKey); err != nil {
		return err
	}
	if s.Enabled && (s.Certificate == "" || s.Key == "") {
		return dp.WrapKeyErr(cfgKeyTLSKey, fmt.Errorf("both cert and key should be set"))
	}
	return nil
}

func setNonNegativeDuration(dp config.DataProvider, key string, dst *config.TimeDuration) error {
	dur, err := dp.GetDuration(key)
	if err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(key, fmt.Errorf("must not be negative, got %s", dur))
	}
	*dst = config.TimeDuration(dur)
	return nil
}
