package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultServer  = "http://localhost:8000"
	defaultTimeout = 5 * time.Minute
)

// Config holds retentionctl settings.
type Config struct {
	Server  string        `mapstructure:"server"`
	Thread  string        `mapstructure:"thread"`
	Timeout time.Duration `mapstructure:"timeout"`
	NoColor bool          `mapstructure:"no_color"`
}

// LoadConfig merges defaults, an optional YAML file, RETENTIONCTL_* env vars
// and command-line flags, in increasing precedence.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("server", defaultServer)
	v.SetDefault("thread", "")
	v.SetDefault("timeout", defaultTimeout)
	v.SetDefault("no_color", false)

	v.SetEnvPrefix("RETENTIONCTL")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".retentionctl")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for key, name := range map[string]string{
			"server":   "server",
			"thread":   "thread",
			"timeout":  "timeout",
			"no_color": "no-color",
		} {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Server == "" {
		return nil, errors.New("server URL is required")
	}
	if cfg.NoColor {
		color.NoColor = true
	}
	return &cfg, nil
}
