/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package config loads application settings from YAML/JSON files and environment variables.
// Each component of the portal gateway (logger, request queue, result cache, backend client,
// HTTP server) describes its own settings with a type implementing Config, and the Loader
// fills all of them from one DataProvider.
package config

import "reflect"

// Config is implemented by every configuration object that may be filled by Loader.
// SetProviderDefaults registers default values, Set reads the final values and validates them.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration objects that live under their own section
// (e.g. "cache" or "backend") of the configuration file.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults for every exported non-nil field
// of the struct pointed by obj that implements Config.
// It allows composing an application config from the configs of its components.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	forEachConfigField(obj, dp, func(c Config, cDp DataProvider) error {
		c.SetProviderDefaults(cDp)
		return nil
	})
}

// CallSetForFields calls Set for every exported non-nil field of the struct pointed by obj
// that implements Config. The first error is returned.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return forEachConfigField(obj, dp, func(c Config, cDp DataProvider) error {
		return c.Set(cDp)
	})
}

func forEachConfigField(obj interface{}, dp DataProvider, fn func(c Config, cDp DataProvider) error) error {
	el := reflect.ValueOf(obj).Elem()
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		fieldVal := el.Field(i)
		if (fieldVal.Kind() == reflect.Ptr || fieldVal.Kind() == reflect.Interface) && fieldVal.IsNil() {
			continue
		}
		c, ok := fieldVal.Interface().(Config)
		if !ok {
			continue
		}
		if err := fn(c, dataProviderFor(c, dp)); err != nil {
			return err
		}
	}
	return nil
}

func dataProviderFor(cfg Config, dp DataProvider) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}
