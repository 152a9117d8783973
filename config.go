package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultGitHubAPIURL is the base URL of the public GitHub REST API.
const DefaultGitHubAPIURL = "https://api.github.com"

// Config holds the process configuration. It is built once at startup and
// passed to the components that need it.
type Config struct {
	GitHubToken  string `mapstructure:"github_token" validate:"required"`
	GitHubUser   string `mapstructure:"github_user" validate:"required"`
	GitHubRepo   string `mapstructure:"github_repo" validate:"required"`
	GitHubAPIURL string `mapstructure:"github_api_url" validate:"required,url"`
	Port         string `mapstructure:"port" validate:"required,numeric"`

	LogLevel      string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat     string `mapstructure:"log_format" validate:"oneof=console json"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" validate:"gte=1"`
	LogMaxBackups int    `mapstructure:"log_max_backups" validate:"gte=0"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days" validate:"gte=0"`

	APIKeys string `mapstructure:"review_api_keys"`

	RedisAddr  string        `mapstructure:"redis_addr"`
	RateLimit  int           `mapstructure:"rate_limit" validate:"gte=1"`
	RateWindow time.Duration `mapstructure:"rate_window" validate:"gte=1s"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

var configDefaults = map[string]interface{}{
	"github_token":     "",
	"github_user":      "",
	"github_repo":      "",
	"github_api_url":   DefaultGitHubAPIURL,
	"port":             "3000",
	"log_level":        "info",
	"log_format":       "console",
	"log_file":         "",
	"log_max_size_mb":  100,
	"log_max_backups":  3,
	"log_max_age_days": 28,
	"review_api_keys":  "",
	"redis_addr":       "",
	"rate_limit":       60,
	"rate_window":      time.Minute,
	"read_timeout":     5 * time.Second,
	"write_timeout":    30 * time.Second,
	"idle_timeout":     120 * time.Second,
	"shutdown_timeout": 5 * time.Second,
}

// LoadConfig reads the configuration from the environment, an optional
// dotenv file and, when non-nil, command line flags. A missing env file is
// not an error.
func LoadConfig(envFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range configDefaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", envFile, err)
		}
	}

	if flags != nil {
		if f := flags.Lookup("port"); f != nil && f.Changed {
			v.Set("port", f.Value.String())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Redacted returns a copy that is safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.GitHubToken != "" {
		out.GitHubToken = "********"
	}
	if out.APIKeys != "" {
		out.APIKeys = "********"
	}
	return out
}

// ConfigError lists the environment variables that are missing or invalid.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid environment variables: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

func (c *Config) validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.ToUpper(f.Tag.Get("mapstructure"))
	})
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	cerr := &ConfigError{}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			cerr.Missing = append(cerr.Missing, fe.Field())
		} else {
			cerr.Invalid = append(cerr.Invalid, fe.Field())
		}
	}
	return cerr
}
