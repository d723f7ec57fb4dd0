// Package config resolves CLI settings from flags, STOREMIGRATE_* environment
// variables and an optional storemigrate.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "STOREMIGRATE"
	configFileName = "storemigrate"
	configFileType = "yaml"

	EngineSQLite = "sqlite"
	EngineBolt   = "bolt"

	DefaultUpgradeTimeout = 30 * time.Second
)

const (
	keyEngine         = "engine"
	keyDB             = "db"
	keySchema         = "schema"
	keyTargetVersion  = "target_version"
	keyUpgradeTimeout = "upgrade_timeout"
	keyLogLevel       = "log_level"
	keyLogFormat      = "log_format"
	keyMetricsFile    = "metrics_file"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrDBRequired     = errors.New("database path is required (--db or STOREMIGRATE_DB)")
	ErrSchemaRequired = errors.New("schema path is required (--schema or STOREMIGRATE_SCHEMA)")
)

type Config struct {
	Engine         string        `mapstructure:"engine" validate:"oneof=sqlite bolt"`
	DBPath         string        `mapstructure:"db"`
	SchemaPath     string        `mapstructure:"schema"`
	TargetVersion  int64         `mapstructure:"target_version" validate:"gte=0"`
	UpgradeTimeout time.Duration `mapstructure:"upgrade_timeout" validate:"gt=0"`
	LogLevel       string        `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat      string        `mapstructure:"log_format" validate:"oneof=text json"`
	MetricsFile    string        `mapstructure:"metrics_file"`
}

type LoadOptions struct {
	// File is an explicit config file. When empty, storemigrate.yaml is
	// looked up in Dir and its absence is not an error.
	File  string
	Dir   string
	Flags *pflag.FlagSet
}

func Default() Config {
	return Config{
		Engine:         EngineSQLite,
		UpgradeTimeout: DefaultUpgradeTimeout,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault(keyEngine, def.Engine)
	v.SetDefault(keyDB, "")
	v.SetDefault(keySchema, "")
	v.SetDefault(keyTargetVersion, 0)
	v.SetDefault(keyUpgradeTimeout, def.UpgradeTimeout)
	v.SetDefault(keyLogLevel, def.LogLevel)
	v.SetDefault(keyLogFormat, def.LogFormat)
	v.SetDefault(keyMetricsFile, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readFile(v, opts); err != nil {
		return Config{}, err
	}
	if err := bindFlags(v, opts.Flags); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Engine = strings.ToLower(strings.TrimSpace(cfg.Engine))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(v *viper.Viper, opts LoadOptions) error {
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindFlags binds every known flag by its dashed name, so --upgrade-timeout
// feeds upgrade_timeout. Flags the command does not define are skipped.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for _, key := range []string{
		keyEngine, keyDB, keySchema, keyTargetVersion,
		keyUpgradeTimeout, keyLogLevel, keyLogFormat, keyMetricsFile,
	} {
		flag := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, ferr := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s (got %v)", ferr.Field(), ferr.Tag(), ferr.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func (c Config) RequireDB() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return ErrDBRequired
	}
	return nil
}

func (c Config) RequireSchema() error {
	if strings.TrimSpace(c.SchemaPath) == "" {
		return ErrSchemaRequired
	}
	return nil
}
