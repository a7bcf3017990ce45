/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"github.com/bigschom/ss-portal/config"
)

const cfgDefaultKeyPrefix = "log"

// Keys of the top level of the section.
const (
	cfgKeyLevel     = "level"
	cfgKeyFormat    = "format"
	cfgKeyOutput    = "output"
	cfgKeyNoColor   = "nocolor"
	cfgKeyAddCaller = "addCaller"
	cfgKeyFile      = "file"
	cfgKeyError     = "error"
	cfgKeyMasking   = "masking"
)

// Keys of the nested sections.
const (
	cfgKeyPath             = "path"
	cfgKeyRotation         = "rotation"
	cfgKeyCompress         = "compress"
	cfgKeyMaxSize          = "maxSize"
	cfgKeyMaxBackups       = "maxBackups"
	cfgKeyMaxAgeDays       = "maxAgeDays"
	cfgKeyLocalTimeInNames = "localTimeInNames"
	cfgKeyNoVerbose        = "noVerbose"
	cfgKeyVerboseSuffix    = "verboseSuffix"
	cfgKeyEnabled          = "enabled"
	cfgKeyUseDefaultRules  = "useDefaultRules"
	cfgKeyRules            = "rules"
)

// Default and restriction values.
const (
	DefaultFileRotationMaxSize config.ByteSize = 1024 * 1024 * 250
	MinFileRotationMaxSize     config.ByteSize = 1024 * 1024

	DefaultFileRotationMaxBackups = 10
	MinFileRotationMaxBackups     = 1

	defaultErrorVerboseSuffix = "_verbose"
)

// Level is a logging level.
type Level string

// Logging levels.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format is a format of log entries.
type Format string

// Logging formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is a destination of log entries.
type Output string

// Logging outputs.
const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
)

// Config is the logging section of the gateway configuration.
type Config struct {
	Level   Level            `mapstructure:"level" yaml:"level" json:"level"`
	Format  Format           `mapstructure:"format" yaml:"format" json:"format"`
	Output  Output           `mapstructure:"output" yaml:"output" json:"output"`
	NoColor bool             `mapstructure:"nocolor" yaml:"nocolor" json:"nocolor"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file" json:"file"`
	Error   ErrorConfig      `mapstructure:"error" yaml:"error" json:"error"`

	// AddCaller adds the "caller" field (package/file:line) to every entry.
	AddCaller bool `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`

	Masking MaskingConfig `mapstructure:"masking" yaml:"masking" json:"masking"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// FileOutputConfig configures the "file" output.
// The path may contain {{starttime}} and {{pid}} placeholders.
type FileOutputConfig struct {
	Path     string             `mapstructure:"path" yaml:"path" json:"path"`
	Rotation FileRotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// FileRotationConfig configures rotation of the log file.
type FileRotationConfig struct {
	Compress         bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize          config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups       int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays       int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	LocalTimeInNames bool            `mapstructure:"localTimeInNames" yaml:"localTimeInNames" json:"localTimeInNames"`
}

// ErrorConfig configures how error fields are written.
// Unless NoVerbose is set, errors implementing fmt.Formatter get an additional
// "<key><VerboseSuffix>" field with their "%+v" representation.
type ErrorConfig struct {
	NoVerbose     bool   `mapstructure:"noVerbose" yaml:"noVerbose" json:"noVerbose"`
	VerboseSuffix string `mapstructure:"verboseSuffix" yaml:"verboseSuffix" json:"verboseSuffix"`
}

// MaskingConfig configures masking of secrets and personal data in log entries.
type MaskingConfig struct {
	Enabled         bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	UseDefaultRules bool                `mapstructure:"useDefaultRules" yaml:"useDefaultRules" json:"useDefaultRules"`
	Rules           []MaskingRuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`
}

// MaskingRuleConfig describes how one field is masked.
type MaskingRuleConfig struct {
	Field   string            `mapstructure:"field" yaml:"field" json:"field"`
	Formats []FieldMaskFormat `mapstructure:"formats" yaml:"formats" json:"formats"`
	Masks   []MaskConfig      `mapstructure:"masks" yaml:"masks" json:"masks"`
}

// MaskConfig is a custom regular expression and its replacement.
type MaskConfig struct {
	RegExp string `mapstructure:"regexp" yaml:"regexp" json:"regexp"`
	Mask   string `mapstructure:"mask" yaml:"mask" json:"mask"`
}

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix sets the configuration section used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a Config with default values, ready to be passed to NewLogger.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Level = LevelInfo
	cfg.Format = FormatJSON
	cfg.Output = OutputStdout
	cfg.File.Rotation = FileRotationConfig{MaxSize: DefaultFileRotationMaxSize, MaxBackups: DefaultFileRotationMaxBackups}
	cfg.Error.VerboseSuffix = defaultErrorVerboseSuffix
	cfg.Masking = MaskingConfig{Enabled: true, UseDefaultRules: true}
	return cfg
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

func section(dp config.DataProvider, keys ...string) config.DataProvider {
	for _, key := range keys {
		dp = config.NewKeyPrefixedDataProvider(dp, key)
	}
	return dp
}

// SetProviderDefaults implements config.Config.
// Masking is on by default because entries may contain requester phone numbers and backend keys.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLevel, string(LevelInfo))
	dp.SetDefault(cfgKeyFormat, string(FormatJSON))
	dp.SetDefault(cfgKeyOutput, string(OutputStdout))

	rotationDP := section(dp, cfgKeyFile, cfgKeyRotation)
	rotationDP.SetDefault(cfgKeyMaxSize, DefaultFileRotationMaxSize.String())
	rotationDP.SetDefault(cfgKeyMaxBackups, DefaultFileRotationMaxBackups)

	section(dp, cfgKeyError).SetDefault(cfgKeyVerboseSuffix, defaultErrorVerboseSuffix)

	maskingDP := section(dp, cfgKeyMasking)
	maskingDP.SetDefault(cfgKeyEnabled, true)
	maskingDP.SetDefault(cfgKeyUseDefaultRules, true)
}

// getEnum reads a case-insensitive value from the list of allowed ones.
func getEnum[T ~string](dp config.DataProvider, key string, allowed ...T) (T, error) {
	set := make([]string, len(allowed))
	for i := range allowed {
		set[i] = string(allowed[i])
	}
	val, err := dp.GetStringFromSet(key, set, true)
	return T(strings.ToLower(val)), err
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Level, err = getEnum(dp, cfgKeyLevel, LevelError, LevelWarn, LevelInfo, LevelDebug); err != nil {
		return err
	}
	if c.Format, err = getEnum(dp, cfgKeyFormat, FormatJSON, FormatText); err != nil {
		return err
	}
	if c.Output, err = getEnum(dp, cfgKeyOutput, OutputStdout, OutputStderr, OutputFile); err != nil {
		return err
	}
	if c.NoColor, err = dp.GetBool(cfgKeyNoColor); err != nil {
		return err
	}
	if c.AddCaller, err = dp.GetBool(cfgKeyAddCaller); err != nil {
		return err
	}
	if err = c.File.set(section(dp, cfgKeyFile), c.Output == OutputFile); err != nil {
		return err
	}
	if err = c.Error.set(section(dp, cfgKeyError)); err != nil {
		return err
	}
	return c.Masking.set(section(dp, cfgKeyMasking))
}

func (fc *FileOutputConfig) set(dp config.DataProvider, required bool) (err error) {
	if fc.Path, err = dp.GetString(cfgKeyPath); err != nil {
		return err
	}
	if required && fc.Path == "" {
		return dp.WrapKeyErr(cfgKeyPath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}
	return fc.Rotation.set(section(dp, cfgKeyRotation))
}

func (rc *FileRotationConfig) set(dp config.DataProvider) (err error) {
	if rc.Compress, err = dp.GetBool(cfgKeyCompress); err != nil {
		return err
	}
	if rc.LocalTimeInNames, err = dp.GetBool(cfgKeyLocalTimeInNames); err != nil {
		return err
	}
	if rc.MaxSize, err = dp.GetByteSize(cfgKeyMaxSize); err != nil {
		return err
	}
	if rc.MaxSize < MinFileRotationMaxSize {
		return dp.WrapKeyErr(cfgKeyMaxSize, fmt.Errorf("should be >= %s", MinFileRotationMaxSize))
	}
	if rc.MaxBackups, err = dp.GetInt(cfgKeyMaxBackups); err != nil {
		return err
	}
	if rc.MaxBackups < MinFileRotationMaxBackups {
		return dp.WrapKeyErr(cfgKeyMaxBackups, fmt.Errorf("should be >= %d", MinFileRotationMaxBackups))
	}
	if rc.MaxAgeDays, err = dp.GetInt(cfgKeyMaxAgeDays); err != nil {
		return err
	}
	if rc.MaxAgeDays < 0 {
		return dp.WrapKeyErr(cfgKeyMaxAgeDays, fmt.Errorf("should be >= 0"))
	}
	return nil
}

func (ec *ErrorConfig) set(dp config.DataProvider) (err error) {
	if ec.NoVerbose, err = dp.GetBool(cfgKeyNoVerbose); err != nil {
		return err
	}
	ec.VerboseSuffix, err = dp.GetString(cfgKeyVerboseSuffix)
	return err
}

func (mc *MaskingConfig) set(dp config.DataProvider) (err error) {
	if mc.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if mc.UseDefaultRules, err = dp.GetBool(cfgKeyUseDefaultRules); err != nil {
		return err
	}
	if err = dp.UnmarshalKey(cfgKeyRules, &mc.Rules); err != nil {
		return err
	}
	for i, rule := range mc.Rules {
		ruleKey := fmt.Sprintf("%s[%d]", cfgKeyRules, i)
		if rule.Field == "" {
			return dp.WrapKeyErr(ruleKey+".field", fmt.Errorf("cannot be empty"))
		}
		for _, format := range rule.Formats {
			if !format.valid() {
				return dp.WrapKeyErr(ruleKey+".formats", fmt.Errorf("unknown format %q", format))
			}
		}
	}
	return nil
}
