package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oy3o/jsonmap"
	"github.com/spf13/viper"
)

// loadConfig merges defaults, the optional config file, JSONMAP_* environment
// variables and bound flags into a jsonmap.Config.
func loadConfig(v *viper.Viper, file string) (jsonmap.Config, error) {
	v.SetDefault("buffer_size", jsonmap.BUFFER_SIZE)
	v.SetDefault("max_depth", jsonmap.DefaultMaxDepth)
	v.SetDefault("log_level", "")
	v.SetDefault("require_exclusion_marker", false)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("jsonmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("JSONMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return jsonmap.Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg jsonmap.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return jsonmap.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
