/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package config

import (
	"io"
)

// Loader fills configuration objects from a DataProvider.
// Defaults of all objects are registered before any object is set,
// so sections that share keys see each other's defaults.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a Loader backed by viper that also looks for environment variables
// with the given prefix (e.g. PORTAL_CACHE_TTL for the "cache.ttl" key and "PORTAL" prefix).
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a Loader for the given DataProvider.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// LoadFromFile reads the file and fills cfgs.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.loadFrom(func() error { return l.DataProvider.SetFromFile(path, dataType) }, cfg, cfgs)
}

// LoadFromReader reads the data from reader and fills cfgs.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.loadFrom(func() error { return l.DataProvider.SetFromReader(reader, dataType) }, cfg, cfgs)
}

func (l *Loader) loadFrom(readSource func() error, cfg Config, rest []Config) error {
	if err := readSource(); err != nil {
		return err
	}
	all := append([]Config{cfg}, rest...)
	providers := make([]DataProvider, len(all))
	for i, c := range all {
		providers[i] = dataProviderFor(c, l.DataProvider)
		c.SetProviderDefaults(providers[i])
	}
	for i, c := range all {
		if err := c.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}
