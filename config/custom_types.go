/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes for configuration structures.
// It is decoded from plain integers and from human-readable strings ("10MB", "512Ki").
type ByteSize uint64

// TimeDuration is a duration for configuration structures.
// It is decoded from integers (nanoseconds) and from strings accepted by time.ParseDuration.
type TimeDuration time.Duration

// scalarFromJSON returns the raw text of a JSON number or string.
func scalarFromJSON(data []byte) (string, error) {
	if len(data) == 0 || data[0] != '"' {
		return string(data), nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}
	return s, nil
}

func scalarFromYAML(node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("scalar value is expected at line %d", node.Line)
	}
	return node.Value, nil
}

// parseNonNegativeInt reports ok=false if s is not an integer at all.
func parseNonNegativeInt(s string) (n int64, ok bool, err error) {
	n, parseErr := strconv.ParseInt(s, 10, 64)
	if parseErr != nil {
		return 0, false, nil
	}
	if n < 0 {
		return 0, true, fmt.Errorf("negative value is not allowed: %d", n)
	}
	return n, true, nil
}

func parseByteSize(raw string) (ByteSize, error) {
	s := strings.TrimSpace(raw)
	if n, ok, err := parseNonNegativeInt(s); ok {
		return ByteSize(n), err
	}
	// "Mi" and friends are the Kubernetes notation of the same powers of two.
	if len(s) > 2 && s[len(s)-1] == 'i' && strings.ContainsRune("KMGTPE", rune(s[len(s)-2])) {
		s = s[:len(s)-1]
	}
	n, err := bytefmt.ToBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", raw, err)
	}
	return ByteSize(n), nil
}

func parseTimeDuration(raw string) (TimeDuration, error) {
	s := strings.TrimSpace(raw)
	if n, ok, err := parseNonNegativeInt(s); ok {
		return TimeDuration(n), err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time duration format (%s): %w", raw, err)
	}
	return TimeDuration(d), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) (err error) {
	s, err := scalarFromJSON(data)
	if err != nil {
		return err
	}
	*b, err = parseByteSize(s)
	return err
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) (err error) {
	s, err := scalarFromYAML(node)
	if err != nil {
		return err
	}
	*b, err = parseByteSize(s)
	return err
}

// UnmarshalText is used by mapstructure.TextUnmarshallerHookFunc.
func (b *ByteSize) UnmarshalText(text []byte) (err error) {
	*b, err = parseByteSize(string(text))
	return err
}

// String returns the human-readable form, e.g. "10M".
func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

func (b ByteSize) MarshalJSON() ([]byte, error) { return json.Marshal(b.String()) }

func (b ByteSize) MarshalYAML() (interface{}, error) { return b.String(), nil }

// UnmarshalJSON implements json.Unmarshaler.
func (d *TimeDuration) UnmarshalJSON(data []byte) (err error) {
	s, err := scalarFromJSON(data)
	if err != nil {
		return err
	}
	*d, err = parseTimeDuration(s)
	return err
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(node *yaml.Node) (err error) {
	s, err := scalarFromYAML(node)
	if err != nil {
		return err
	}
	*d, err = parseTimeDuration(s)
	return err
}

// UnmarshalText is used by mapstructure.TextUnmarshallerHookFunc.
func (d *TimeDuration) UnmarshalText(text []byte) (err error) {
	*d, err = parseTimeDuration(string(text))
	return err
}

// Duration converts the value to time.Duration.
func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string { return time.Duration(d).String() }

func (d TimeDuration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d TimeDuration) MarshalYAML() (interface{}, error) { return d.String(), nil }
