/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Command portal-cache is a caching gateway in front of the security services portal backend.
//
// Identical reads arriving at the same time are merged into one backend request, results are kept
// for a configurable TTL and failed backend responses are remembered for a short error window.
//
// Usage:
//
//	portal-cache --config config.yml
//	portal-cache -c /etc/portal-cache/config.yml
//
// Every configuration key may be overridden by an environment variable with the PORTAL_ prefix
// (e.g. PORTAL_BACKEND_APIKEY).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bigschom/ss-portal/config"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/service"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yml", "path to the YAML configuration file")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := NewAppConfig()
	if err := config.NewDefaultLoader(envVarsPrefix).LoadFromFile(configPath, config.DataTypeYAML, cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	a, err := newApp(cfg, logger, appOpts{})
	if err != nil {
		return err
	}
	a.warmup(context.Background())

	logger.Info("starting portal cache gateway", log.String("address", cfg.Server.Address),
		log.String("backend", cfg.Backend.BaseURL))
	return service.New(logger, a.unit()).Start()
}
