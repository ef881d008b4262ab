// Package config loads application configuration via viper from a yaml file
// or environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	internal "github.com/hpolasek/tabletalk/tabletalk"
)

// Config stores all configuration of the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Harness  HarnessConfig  `mapstructure:"harness"`
}

// ServerConfig stores HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig stores the embedded libsql database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig stores reasoning-engine client settings. APIKey is the
// process-wide default credential; conversations may carry an override.
type EngineConfig struct {
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// HarnessConfig stores response-cycle orchestration settings.
type HarnessConfig struct {
	MaxRounds     int           `mapstructure:"max_rounds"`     // engine round-trips per cycle
	EnforceSafety bool          `mapstructure:"enforce_safety"` // run the pre-flight classifier
	EngineTimeout time.Duration `mapstructure:"engine_timeout"` // per engine call
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`   // per tool dispatch
	CycleTimeout  time.Duration `mapstructure:"cycle_timeout"`  // whole response cycle
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(fmt.Sprintf("/etc/%s", internal.DefaultAppName))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("server.addr", internal.DefaultServerAddr)
	viper.SetDefault("database.path", internal.DefaultDatabasePath)

	viper.SetDefault("engine.model", internal.DefaultEngineModel)
	viper.SetDefault("engine.api_key", "")
	viper.SetDefault("engine.base_url", "")

	viper.SetDefault("harness.max_rounds", internal.DefaultMaxRounds)
	viper.SetDefault("harness.enforce_safety", false)
	viper.SetDefault("harness.engine_timeout", internal.DefaultEngineTimeout)
	viper.SetDefault("harness.tool_timeout", 30*time.Second)
	viper.SetDefault("harness.cycle_timeout", internal.DefaultCycleTimeout)

	// The conventional env var still works without any config file.
	_ = viper.BindEnv("engine.api_key", "TABLETALK_ENGINE_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("engine.model", "TABLETALK_ENGINE_MODEL")
	_ = viper.BindEnv("database.path", "TABLETALK_DATABASE_PATH")
	_ = viper.BindEnv("server.addr", "TABLETALK_SERVER_ADDR")

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Watch re-reads the config file on change and hands the fresh Config to
// onChange. Reload failures keep the previous configuration.
func Watch(onChange func(Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}
