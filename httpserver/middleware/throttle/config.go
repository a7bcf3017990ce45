/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package throttle

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bigschom/ss-portal/config"
)

const cfgDefaultKeyPrefix = "throttle"

const (
	cfgKeyRateLimitZones = "rateLimitZones"
	cfgKeyRules          = "rules"
)

// Rate-limiting algorithms.
const (
	RateLimitAlgLeakyBucket   = "leaky_bucket"
	RateLimitAlgSlidingWindow = "sliding_window"
)

// Config is the "throttle" section of the configuration.
// Rules bind routes to named rate-limiting zones.
type Config struct {
	// RateLimitZones maps a zone name to its configuration.
	// Zone names are case-insensitive since viper lower-cases map keys.
	RateLimitZones map[string]RateLimitZoneConfig `mapstructure:"rateLimitZones" yaml:"rateLimitZones" json:"rateLimitZones"`

	// Rules are checked in order, the first rule matching the request is applied.
	Rules []RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config. An empty keyPrefix means "throttle".
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

// SetProviderDefaults implements config.Config. Throttling is off unless rules are configured.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var zones map[string]RateLimitZoneConfig
	if err := dp.UnmarshalKey(cfgKeyRateLimitZones, &zones, config.WithCustomTypesDecoding()); err != nil {
		return err
	}
	var rules []RuleConfig
	if err := dp.UnmarshalKey(cfgKeyRules, &rules, config.WithCustomTypesDecoding()); err != nil {
		return err
	}
	c.RateLimitZones = make(map[string]RateLimitZoneConfig, len(zones))
	for name, zone := range zones {
		c.RateLimitZones[strings.ToLower(name)] = zone
	}
	c.Rules = rules
	return c.Validate()
}

// Validate checks zones and rules, including that every zone referenced by a rule is defined.
func (c *Config) Validate() error {
	for name, zone := range c.RateLimitZones {
		if err := zone.Validate(); err != nil {
			return fmt.Errorf("validate rate limit zone %q: %w", name, err)
		}
	}
	for i := range c.Rules {
		if err := c.Rules[i].Validate(c.RateLimitZones); err != nil {
			return fmt.Errorf("validate rule %q: %w", c.Rules[i].Name(), err)
		}
	}
	return nil
}

func (c *Config) zone(name string) (RateLimitZoneConfig, bool) {
	if zone, ok := c.RateLimitZones[name]; ok {
		return zone, true
	}
	zone, ok := c.RateLimitZones[strings.ToLower(name)]
	return zone, ok
}

// RateLimitZoneConfig configures a rate-limiting zone.
type RateLimitZoneConfig struct {
	Alg        string         `mapstructure:"alg" yaml:"alg" json:"alg"`
	RateLimit  RateLimitValue `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	BurstLimit int            `mapstructure:"burstLimit" yaml:"burstLimit" json:"burstLimit"`
	Key        ZoneKeyConfig  `mapstructure:"key" yaml:"key" json:"key"`

	// MaxKeys bounds the number of keys the zone tracks, the least recently seen keys are forgotten.
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`

	// ExcludedKeys are glob patterns of keys that are never limited.
	ExcludedKeys []string `mapstructure:"excludedKeys" yaml:"excludedKeys" json:"excludedKeys"`

	ResponseStatusCode int `mapstructure:"responseStatusCode" yaml:"responseStatusCode" json:"responseStatusCode"`

	// ResponseRetryAfter overrides the Retry-After value computed by the limiter.
	ResponseRetryAfter config.TimeDuration `mapstructure:"responseRetryAfter" yaml:"responseRetryAfter" json:"responseRetryAfter"`

	// DryRun zones only log and count rejects.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
}

// Validate validates zone configuration.
func (c *RateLimitZoneConfig) Validate() error {
	if err := c.Key.Validate(); err != nil {
		return err
	}
	if c.Alg != "" && c.Alg != RateLimitAlgLeakyBucket && c.Alg != RateLimitAlgSlidingWindow {
		return fmt.Errorf("unknown rate limit alg %q", c.Alg)
	}
	if c.RateLimit.Count < 1 {
		return fmt.Errorf("rate limit should be >= 1, got %d", c.RateLimit.Count)
	}
	if c.BurstLimit < 0 {
		return fmt.Errorf("burst limit should be >= 0, got %d", c.BurstLimit)
	}
	if c.MaxKeys < 0 {
		return fmt.Errorf("maximum keys should be >= 0, got %d", c.MaxKeys)
	}
	if c.ResponseStatusCode < 0 {
		return fmt.Errorf("response status code should be >= 0, got %d", c.ResponseStatusCode)
	}
	if c.ResponseRetryAfter < 0 {
		return fmt.Errorf("response retry after should be >= 0, got %s", c.ResponseRetryAfter)
	}
	return nil
}

func (c *RateLimitZoneConfig) responseStatusCode() int {
	if c.ResponseStatusCode != 0 {
		return c.ResponseStatusCode
	}
	return http.StatusTooManyRequests
}

// RateLimitValue is a rate written as "<count>/<s|m|h>", e.g. "10/s" or "100/m".
type RateLimitValue struct {
	Count    int
	Duration time.Duration
}

// UnmarshalText allows the value to be decoded from configuration strings.
func (v *RateLimitValue) UnmarshalText(text []byte) error {
	parsed, err := parseRateLimitValue(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String implements fmt.Stringer.
func (v RateLimitValue) String() string {
	if v.Count == 0 {
		return ""
	}
	unit := "s"
	switch v.Duration {
	case time.Minute:
		unit = "m"
	case time.Hour:
		unit = "h"
	}
	return strconv.Itoa(v.Count) + "/" + unit
}

func parseRateLimitValue(s string) (RateLimitValue, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RateLimitValue{}, nil
	}
	countStr, unit, ok := strings.Cut(s, "/")
	if !ok {
		return RateLimitValue{}, fmt.Errorf("incorrect format for rate %q, should be N/(s|m|h), for example 10/s", s)
	}
	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil || count < 1 {
		return RateLimitValue{}, fmt.Errorf("incorrect count in rate %q, should be a positive integer", s)
	}
	var dur time.Duration
	switch strings.TrimSpace(unit) {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		return RateLimitValue{}, fmt.Errorf("incorrect unit in rate %q, should be s, m or h", s)
	}
	return RateLimitValue{Count: count, Duration: dur}, nil
}

// ZoneKeyType is a type of keys zone.
type ZoneKeyType string

// Zone key types.
const (
	// ZoneKeyTypeNoKey limits all matched requests together.
	ZoneKeyTypeNoKey      ZoneKeyType = ""
	ZoneKeyTypeHTTPHeader ZoneKeyType = "header"
	ZoneKeyTypeRemoteAddr ZoneKeyType = "remote_addr"
)

// ZoneKeyConfig represents a configuration of zone's key.
type ZoneKeyConfig struct {
	Type ZoneKeyType `mapstructure:"type" yaml:"type" json:"type"`

	// HeaderName matters only when Type is "header".
	HeaderName string `mapstructure:"headerName" yaml:"headerName" json:"headerName"`

	// NoBypassEmpty makes requests with an empty key limited under the empty key instead of passing through.
	NoBypassEmpty bool `mapstructure:"noBypassEmpty" yaml:"noBypassEmpty" json:"noBypassEmpty"`
}

// Validate validates keys zone configuration.
func (c *ZoneKeyConfig) Validate() error {
	switch c.Type {
	case ZoneKeyTypeNoKey, ZoneKeyTypeRemoteAddr:
	case ZoneKeyTypeHTTPHeader:
		if c.HeaderName == "" {
			return fmt.Errorf("header name should be specified for %q key zone type", ZoneKeyTypeHTTPHeader)
		}
	default:
		return fmt.Errorf("unknown key zone type %q", c.Type)
	}
	return nil
}

// RouteConfig is an HTTP route. Path is a glob pattern matched against the whole URL path.
// No methods means any method.
type RouteConfig struct {
	Methods []string `mapstructure:"methods" yaml:"methods" json:"methods"`
	Path    string   `mapstructure:"path" yaml:"path" json:"path"`
}

// Validate validates the route.
func (c *RouteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is missing")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path %q should start with \"/\"", c.Path)
	}
	return nil
}

func (c *RouteConfig) String() string {
	return strings.TrimSpace(strings.Join(c.Methods, "|") + " " + c.Path)
}

// RuleRateLimit references a rate-limiting zone from a rule.
type RuleRateLimit struct {
	Zone string `mapstructure:"zone" yaml:"zone" json:"zone"`
}

// RuleConfig represents configuration for throttling rule.
type RuleConfig struct {
	// Alias is used as the "rule" label of metrics.
	Alias          string          `mapstructure:"alias" yaml:"alias" json:"alias"`
	Routes         []RouteConfig   `mapstructure:"routes" yaml:"routes" json:"routes"`
	ExcludedRoutes []RouteConfig   `mapstructure:"excludedRoutes" yaml:"excludedRoutes" json:"excludedRoutes"`
	RateLimits     []RuleRateLimit `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
}

// Name returns throttling rule name.
func (c *RuleConfig) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	parts := make([]string, 0, len(c.Routes))
	for i := range c.Routes {
		parts = append(parts, c.Routes[i].String())
	}
	return strings.Join(parts, "; ")
}

// Validate validates throttling rule configuration.
func (c *RuleConfig) Validate(rateLimitZones map[string]RateLimitZoneConfig) error {
	cfg := Config{RateLimitZones: rateLimitZones}
	for _, zone := range c.RateLimits {
		if _, ok := cfg.zone(zone.Zone); !ok {
			return fmt.Errorf("rate limit zone %q is undefined", zone.Zone)
		}
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("routes is missing")
	}
	for i := range c.Routes {
		if err := c.Routes[i].Validate(); err != nil {
			return fmt.Errorf("validate route #%d: %w", i+1, err)
		}
	}
	for i := range c.ExcludedRoutes {
		if err := c.ExcludedRoutes[i].Validate(); err != nil {
			return fmt.Errorf("validate excluded route #%d: %w", i+1, err)
		}
	}
	return nil
}
