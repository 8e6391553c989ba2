// Package config loads daemon configuration from an optional YAML file,
// a .env file, and environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server Server `mapstructure:"server"`
	Log    Log    `mapstructure:"log"`
	Engine Engine `mapstructure:"engine"`
}

type Server struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Engine struct {
	ChunkSize       int           `mapstructure:"chunk_size"`
	MemoryThreshold int64         `mapstructure:"memory_threshold"`
	SpoolDir        string        `mapstructure:"spool_dir"`
	MinDelay        time.Duration `mapstructure:"min_delay"`
	OTPTimeout      time.Duration `mapstructure:"otp_timeout"`
	OTPRetries      int           `mapstructure:"otp_retries"`
	ScanPageSize    int           `mapstructure:"scan_page_size"`
	ScanRetries     int           `mapstructure:"scan_retries"`
}

// Load reads configuration. A .env file in the working directory is
// applied first so its variables participate in the env overrides.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("engine.chunk_size", 512*1024)
	v.SetDefault("engine.memory_threshold", int64(400)*1024*1024)
	v.SetDefault("engine.spool_dir", "")
	v.SetDefault("engine.min_delay", "2s")
	v.SetDefault("engine.otp_timeout", "5m")
	v.SetDefault("engine.otp_retries", 3)
	v.SetDefault("engine.scan_page_size", 100)
	v.SetDefault("engine.scan_retries", 3)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.mode", "GIN_MODE")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("engine.spool_dir", "SPOOL_DIR")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	return &cfg, nil
}
