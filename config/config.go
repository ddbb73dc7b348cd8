// Package config loads the connection, execution and logging settings of the hal-dmr tools from
// an optional config file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/hal-console/dmr-framework/mgmt"
	"github.com/hal-console/dmr-framework/operations"
	"github.com/hal-console/dmr-framework/pkg/logger"
)

type ManagementConfig struct {
	URL        string        `mapstructure:"url" yaml:"url"`                 // Base URL of the HTTP management interface
	Username   string        `mapstructure:"username" yaml:"username"`       // Secret: management user
	Password   string        `mapstructure:"password" yaml:"password"`       // Secret: password of the management user
	AuthScheme string        `mapstructure:"auth_scheme" yaml:"auth_scheme"` // digest, basic or none
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`         // Timeout of a single HTTP exchange
}

type ExecuteConfig struct {
	RetryAttempts uint          `mapstructure:"retry_attempts" yaml:"retry_attempts"` // Attempts per request when retry is enabled
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`       // Initial delay between attempts
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or console
}

type ReportsConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // database/sql driver name
	DSN    string `mapstructure:"dsn" yaml:"dsn"`       // Secret: reports are kept in memory when empty
}

type Config struct {
	Management ManagementConfig `mapstructure:"management" yaml:"management"`
	Execute    ExecuteConfig    `mapstructure:"execute" yaml:"execute"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Reports    ReportsConfig    `mapstructure:"reports" yaml:"reports"`
}

var defaults = map[string]any{
	"management.url":         "http://localhost:9990",
	"management.auth_scheme": mgmt.AuthDigest,
	"management.timeout":     30 * time.Second,
	"execute.retry_attempts": 3,
	"execute.retry_delay":    100 * time.Millisecond,
	"log.level":              "info",
	"log.format":             logger.FormatConsole,
	"reports.driver":         "postgres",
}

var envBindings = map[string][]string{
	"management.url":         {"HAL_MANAGEMENT_URL", "JBOSS_MANAGEMENT_URL"},
	"management.username":    {"HAL_MANAGEMENT_USERNAME", "JBOSS_MANAGEMENT_USERNAME"},
	"management.password":    {"HAL_MANAGEMENT_PASSWORD", "JBOSS_MANAGEMENT_PASSWORD"},
	"management.auth_scheme": {"HAL_MANAGEMENT_AUTH_SCHEME"},
	"management.timeout":     {"HAL_MANAGEMENT_TIMEOUT"},
	"execute.retry_attempts": {"HAL_EXECUTE_RETRY_ATTEMPTS"},
	"execute.retry_delay":    {"HAL_EXECUTE_RETRY_DELAY"},
	"log.level":              {"HAL_LOG_LEVEL"},
	"log.format":             {"HAL_LOG_FORMAT"},
	"reports.driver":         {"HAL_REPORTS_DRIVER"},
	"reports.dsn":            {"HAL_REPORTS_DSN"},
}

// Load reads the config file at filePath when it exists and applies environment overrides.
func Load(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadEnv builds the config from defaults and environment variables only.
func LoadEnv() (*Config, error) {
	v := newViper()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

// LoadFile reads the config file at filePath without environment overrides. The file must exist.
func LoadFile(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

// Command line flags registered by AddFlags.
const (
	FlagConfig   = "config"
	FlagURL      = "url"
	FlagUsername = "username"
	FlagPassword = "password"
	FlagLogLevel = "log-level"
)

var flagBindings = map[string]string{
	"management.url":      FlagURL,
	"management.username": FlagUsername,
	"management.password": FlagPassword,
	"log.level":           FlagLogLevel,
}

// AddFlags registers the config flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "Path of the config file (yaml, json or toml)")
	fs.String(FlagURL, "", "Base URL of the management interface")
	fs.StringP(FlagUsername, "u", "", "Management user")
	fs.StringP(FlagPassword, "p", "", "Password of the management user")
	fs.String(FlagLogLevel, "", "Log level (debug, info, warn, error)")
}

// LoadFlags is Load for the file named by the config flag of fs. Flags that were set take
// precedence over the environment and the file.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}
	for key, name := range flagBindings {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if f := fs.Lookup(FlagConfig); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Management.URL)
	switch {
	case c.Management.URL == "":
		errs = append(errs, errors.New("management.url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("management.url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("management.url %q must use http or https", c.Management.URL))
	}

	switch c.Management.AuthScheme {
	case "", mgmt.AuthDigest, mgmt.AuthBasic, mgmt.AuthNone:
	default:
		errs = append(errs, fmt.Errorf("management.auth_scheme %q is not one of digest, basic, none", c.Management.AuthScheme))
	}

	if c.Management.Timeout < 0 {
		errs = append(errs, fmt.Errorf("management.timeout %s is negative", c.Management.Timeout))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch c.Log.Format {
	case "", logger.FormatJSON, logger.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, console", c.Log.Format))
	}

	if c.Reports.DSN != "" && c.Reports.Driver == "" {
		errs = append(errs, errors.New("reports.driver is required with reports.dsn"))
	}

	return errors.Join(errs...)
}

// ManagementClient returns the settings of the management HTTP client.
func (c *Config) ManagementClient() mgmt.Config {
	return mgmt.Config{
		URL:        c.Management.URL,
		Username:   c.Management.Username,
		Password:   c.Management.Password,
		AuthScheme: c.Management.AuthScheme,
		Timeout:    c.Management.Timeout,
	}
}

// Logger returns the logger settings. An empty level is info.
func (c *Config) Logger() (logger.Config, error) {
	lvl, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return logger.Config{}, fmt.Errorf("log.level: %w", err)
	}

	return logger.Config{Level: lvl, Format: c.Log.Format}, nil
}

// RetryPolicy returns the retry settings of request execution.
func (c *Config) RetryPolicy() operations.RetryPolicy {
	return operations.RetryPolicy{
		MaxAttempts: c.Execute.RetryAttempts,
		Delay:       c.Execute.RetryDelay,
	}
}
