package cli

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config keys read from config.yaml and overridable by flags.
const (
	cfgKeyDBPath         = "db_path"
	cfgKeyAPIURL         = "api_url"
	cfgKeyMaxAttempts    = "sync.max_attempts"
	cfgKeyBackoffBase    = "sync.backoff_base"
	cfgKeyDebounceWindow = "sync.debounce_window"
)

// Config carries the resolved runtime configuration.
type Config struct {
	DBPath         string
	APIURL         string
	MaxAttempts    int
	BackoffBase    time.Duration
	DebounceWindow time.Duration
}

// loadConfig reads config.yaml from the given directory, falling back to
// defaults. A missing config file is not an error; missing directory
// lookups fall back to the working directory.
func loadConfig(configDir string) (Config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDBPath, "stockroom.db")
	v.SetDefault(cfgKeyAPIURL, "http://localhost:8080")
	v.SetDefault(cfgKeyMaxAttempts, 3)
	v.SetDefault(cfgKeyBackoffBase, "500ms")
	v.SetDefault(cfgKeyDebounceWindow, "2s")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	} else {
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		DBPath:      v.GetString(cfgKeyDBPath),
		APIURL:      v.GetString(cfgKeyAPIURL),
		MaxAttempts: v.GetInt(cfgKeyMaxAttempts),
	}

	var err error
	if cfg.BackoffBase, err = time.ParseDuration(v.GetString(cfgKeyBackoffBase)); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", cfgKeyBackoffBase, err)
	}
	if cfg.DebounceWindow, err = time.ParseDuration(v.GetString(cfgKeyDebounceWindow)); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", cfgKeyDebounceWindow, err)
	}
	if cfg.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("config %s: must be at least 1", cfgKeyMaxAttempts)
	}

	return cfg, nil
}
