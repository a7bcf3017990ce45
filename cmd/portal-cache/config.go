/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package main

import (
	"fmt"
	"time"

	"github.com/bigschom/ss-portal/config"
	"github.com/bigschom/ss-portal/httpserver"
	"github.com/bigschom/ss-portal/httpserver/middleware/throttle"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/portalapi"
	"github.com/bigschom/ss-portal/profserver"
	"github.com/bigschom/ss-portal/requestqueue"
	"github.com/bigschom/ss-portal/resultcache"
)

const envVarsPrefix = "PORTAL"

const (
	cfgKeyGatewayMetricsNamespace      = "metricsNamespace"
	cfgKeyGatewayStatsInterval         = "statsInterval"
	cfgKeyGatewayWarmupServiceRequests = "warmupServiceRequests"
	cfgKeyGatewayWarmupTimeout         = "warmupTimeout"
)

const (
	defaultMetricsNamespace = "portal_cache"
	defaultStatsInterval    = time.Minute
	defaultWarmupTimeout    = 30 * time.Second
)

// GatewayConfig holds settings of the gateway process itself.
type GatewayConfig struct {
	MetricsNamespace      string
	StatsInterval         time.Duration
	WarmupServiceRequests []string
	WarmupTimeout         time.Duration
}

var _ config.Config = (*GatewayConfig)(nil)
var _ config.KeyPrefixProvider = (*GatewayConfig)(nil)

// KeyPrefix returns the section of the gateway settings.
func (c *GatewayConfig) KeyPrefix() string {
	return "gateway"
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *GatewayConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyGatewayMetricsNamespace, defaultMetricsNamespace)
	dp.SetDefault(cfgKeyGatewayStatsInterval, defaultStatsInterval.String())
	dp.SetDefault(cfgKeyGatewayWarmupServiceRequests, []string{})
	dp.SetDefault(cfgKeyGatewayWarmupTimeout, defaultWarmupTimeout.String())
}

// Set sets the gateway configuration values from config.DataProvider.
func (c *GatewayConfig) Set(dp config.DataProvider) error {
	var err error
	if c.MetricsNamespace, err = dp.GetString(cfgKeyGatewayMetricsNamespace); err != nil {
		return err
	}
	if c.StatsInterval, err = config.GetPositiveDuration(dp, cfgKeyGatewayStatsInterval); err != nil {
		return err
	}
	if c.WarmupServiceRequests, err = dp.GetStringSlice(cfgKeyGatewayWarmupServiceRequests); err != nil {
		return err
	}
	if c.WarmupTimeout, err = config.GetPositiveDuration(dp, cfgKeyGatewayWarmupTimeout); err != nil {
		return err
	}
	return nil
}

// AppConfig is the configuration of the portal-cache process.
type AppConfig struct {
	Log        *log.Config
	Server     *httpserver.Config
	Throttle   *throttle.Config
	Queue      *requestqueue.Config
	Cache      *resultcache.Config
	Backend    *portalapi.Config
	Gateway    *GatewayConfig
	ProfServer *profserver.Config
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new AppConfig with all sections under their default prefixes.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:        log.NewConfig(),
		Server:     httpserver.NewConfig(),
		Throttle:   throttle.NewConfig(""),
		Queue:      requestqueue.NewConfig(""),
		Cache:      resultcache.NewConfig(""),
		Backend:    portalapi.NewConfig(""),
		Gateway:    &GatewayConfig{},
		ProfServer: profserver.NewConfig(""),
	}
}

// SetProviderDefaults sets default values of all sections.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set fills all sections and checks that they agree with each other.
func (c *AppConfig) Set(dp config.DataProvider) error {
	if err := config.CallSetForFields(c, dp); err != nil {
		return err
	}
	if c.Backend.AuditLogsTTL.Duration() > c.Cache.TTL.Duration() {
		return fmt.Errorf("%s.auditLogsTTL (%s) must not exceed %s.ttl (%s)",
			c.Backend.KeyPrefix(), c.Backend.AuditLogsTTL, c.Cache.KeyPrefix(), c.Cache.TTL)
	}
	return nil
}
