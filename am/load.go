package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/vsbatch/errors"
)

// ProjectConfigNames are searched, in order, in the working directory and its parents
var ProjectConfigNames = []string{"vsbatch.toml", "am.toml"}

// Load reads the configuration from defaults, the user config, the nearest
// project config and VSBATCH_* environment variables.
// When configPath is non-empty only that file (plus defaults and env vars) is used.
//
// The returned Config is built once at startup and passed into each component;
// nothing here is cached process-wide.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v, err := NewViper(configPath)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path without environment overrides
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}
	return config, nil
}

// NewViper initializes Viper with configuration sources and defaults
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Environment variables override every file
	v.SetEnvPrefix("VSBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithHint(
				errors.Wrapf(err, "failed to read config file %s", configPath),
				"pass an existing TOML file to --config, or omit it to use vsbatch.toml")
		}
		return v, nil
	}

	if err := mergeConfigFiles(v, SearchPaths()); err != nil {
		return nil, err
	}
	return v, nil
}

// SearchPaths returns the config files consulted in precedence order (lowest first)
func SearchPaths() []string {
	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".vsbatch", "am.toml"))
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	return paths
}

// findProjectConfig walks up the directory tree looking for a project config.
// Returns the first match, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		for _, name := range ProjectConfigNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges existing files into v; later paths override earlier ones.
// A file that exists but does not parse is an error, a missing file is skipped.
func mergeConfigFiles(v *viper.Viper, paths []string) error {
	for _, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.MergeInConfig(); err != nil {
			return errors.Wrapf(err, "failed to merge config file %s", configPath)
		}
	}
	return nil
}
