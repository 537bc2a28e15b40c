package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Ning0612/mirrorsync/internal/core/checksum"
	"github.com/Ning0612/mirrorsync/internal/domain"
)

// EnvPrefix is the prefix of environment variables overriding settings,
// e.g. MIRRORSYNC_WORKERS or MIRRORSYNC_LOG_LEVEL
const EnvPrefix = "MIRRORSYNC"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
	}

	// Add user config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "mirrorsync"))
	}

	// Add home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".mirrorsync"))
	}

	return paths
}

// NewViper returns a viper instance carrying the defaults and the
// environment binding. Callers bind their flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("workers", 1)
	v.SetDefault("algorithm", string(checksum.MD5))
	v.SetDefault("watch", false)
	v.SetDefault("debounce", 500*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Load merges the config file (if any) into v and decodes the result.
// An explicit path must exist; without one the default locations are
// searched and a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		// Use specific file
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	} else {
		// Search default paths
		v.SetConfigName("mirrorsync")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
			}
		}
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string on top of the
// defaults
func LoadFromString(yamlContent string) (*Config, error) {
	v := NewViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	// A bare number means seconds, matching the command line
	if cfg.Interval > 0 && cfg.Interval < time.Second && v.GetInt64("interval") == int64(cfg.Interval) {
		cfg.Interval *= time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
