/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package config

import (
	"strings"
	"time"
)

// KeyPrefixedDataProvider looks up every key inside one section of the embedded DataProvider,
// so "ttl" means "cache.ttl" for the "cache" prefix. Source methods (SetFromFile, SetFromReader,
// UseEnvVars) are not affected by the prefix and are promoted from the embedded provider.
type KeyPrefixedDataProvider struct {
	DataProvider
	prefix string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider creates a new KeyPrefixedDataProvider.
// Prefixed providers may be nested: ("log", "rotation") resolves "maxSize" as "log.rotation.maxSize".
func NewKeyPrefixedDataProvider(delegate DataProvider, keyPrefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{DataProvider: delegate, prefix: keyPrefix}
}

func (p *KeyPrefixedDataProvider) key(k string) string {
	switch {
	case p.prefix == "":
		return k
	case k == "":
		return p.prefix
	}
	return strings.TrimSuffix(p.prefix, ".") + "." + k
}

func (p *KeyPrefixedDataProvider) Set(key string, value interface{}) {
	p.DataProvider.Set(p.key(key), value)
}

func (p *KeyPrefixedDataProvider) SetDefault(key string, value interface{}) {
	p.DataProvider.SetDefault(p.key(key), value)
}

func (p *KeyPrefixedDataProvider) IsSet(key string) bool { return p.DataProvider.IsSet(p.key(key)) }

func (p *KeyPrefixedDataProvider) Get(key string) interface{} { return p.DataProvider.Get(p.key(key)) }

func (p *KeyPrefixedDataProvider) GetInt(key string) (int, error) {
	return p.DataProvider.GetInt(p.key(key))
}

func (p *KeyPrefixedDataProvider) GetFloat64(key string) (float64, error) {
	return p.DataProvider.GetFloat64(p.key(key))
}

func (p *KeyPrefixedDataProvider) GetString(key string) (string, error) {
	return p.DataProvider.GetString(p.key(key))
}

func (p *KeyPrefixedDataProvider) GetBool(key string) (bool, error) {
	return p.DataProvider.GetBool(p.key(key))
}

func (p *KeyPrefixedDataProvider) GetStringSlice(key string) ([]string, error) {
	return p.DataProvider.GetStringSlice(p.key(key))
}

func (p *KeyPrefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return p.DataProvider.GetStringFromSet(p.key(key), set, ignoreCase)
}

func (p *KeyPrefixedDataProvider) GetDuration(key string) (time.Duration, error) {
	return p.DataProvider.GetDuration(p.key(key))
}

func (p *KeyPrefixedDataProvider) GetByteSize(key string) (ByteSize, error) {
	return p.DataProvider.GetByteSize(p.key(key))
}

func (p *KeyPrefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.DataProvider.UnmarshalKey(p.key(key), rawVal, opts...)
}

// WrapKeyErr reports the full key, so errors of nested sections read "cache.ttl: ...".
func (p *KeyPrefixedDataProvider) WrapKeyErr(key string, err error) error {
	return p.DataProvider.WrapKeyErr(p.key(key), err)
}
