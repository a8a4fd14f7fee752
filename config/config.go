// Package config loads relay configuration with viper: built-in defaults, an
// optional YAML file, and CHATRELAY_* environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the relay needs to start.
type Config struct {
	TCPPort      int      `mapstructure:"tcp_port"`
	AudioPort    int      `mapstructure:"audio_port"`
	VideoPort    int      `mapstructure:"video_port"`
	LogLevel     string   `mapstructure:"log_level"`
	HistoryLimit int      `mapstructure:"history_limit"`
	Channels     []string `mapstructure:"channels"`
}

// Load reads configuration from path (optional; empty means defaults plus
// environment only).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("tcp_port", 5555)
	v.SetDefault("audio_port", 5556)
	v.SetDefault("video_port", 5557)
	v.SetDefault("log_level", "info")
	v.SetDefault("history_limit", 100)
	v.SetDefault("channels", []string{"general"})

	v.SetEnvPrefix("chatrelay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
