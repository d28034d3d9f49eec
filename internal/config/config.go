// Package config loads CLI defaults through Viper, mirroring the pattern
// internal/device.LoadDMGConfig already uses for device-layer settings:
// same config name, same search path list, same env-var prefix.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the defaults the check command falls back to when a flag
// isn't given explicitly on the command line. DevicePath is loaded but not
// used: check always takes the device as its command-line argument.
type Config struct {
	DevicePath      string `mapstructure:"device_path"`
	OutputFormat    string `mapstructure:"output_format"`
	Verbose         bool   `mapstructure:"verbose"`
	CaseInsensitive bool   `mapstructure:"case_insensitive"`
}

// Load reads apfs-config.yaml from the same search path internal/device
// uses, falling back to built-in defaults when no file is present.
func Load() (*Config, error) {
	viper.SetConfigName("apfs-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("../..")
	viper.AddConfigPath("$HOME/.apfs")
	viper.AddConfigPath("/etc/apfs")

	viper.SetDefault("device_path", "")
	viper.SetDefault("output_format", "text")
	viper.SetDefault("verbose", false)
	viper.SetDefault("case_insensitive", false)

	viper.SetEnvPrefix("APFS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}
