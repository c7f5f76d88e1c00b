package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigName     = "reactor"
	defaultConfigTemplate = `# Configuration file for reactor
[loop]
capacity = 1024
backend = ""  # "epoll", "kqueue", "select"; empty picks the platform default

[server]
addr = "tcp://127.0.0.1:7000"  # tcp://host:port or unix:///path
read_buffer = 4096   # bytes per read
write_buffer = 65536  # send queue limit per connection, 0 = unbounded

[timer]
interval = "1s"
count = 5  # 0 = tick until interrupted

[metrics]
enabled = false
addr = ":2112"

[logging]
log_level = "info"  # possible values: "debug", "info", "warn", "error" (default=info)
log_format = "console"  # possible values: "json", "console" (default=console)
`
)

type LoopConfig struct {
	Capacity int    `mapstructure:"capacity"`
	Backend  string `mapstructure:"backend"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	ReadBuffer  int    `mapstructure:"read_buffer"`
	WriteBuffer int    `mapstructure:"write_buffer"`
}

type TimerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Count    int           `mapstructure:"count"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LoggingConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type Config struct {
	Loop    LoopConfig    `mapstructure:"loop"`
	Server  ServerConfig  `mapstructure:"server"`
	Timer   TimerConfig   `mapstructure:"timer"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoadConfig reads the built-in defaults and merges customConfigPath over
// them when it is set.
func LoadConfig(customConfigPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewBufferString(defaultConfigTemplate)); err != nil {
		return nil, fmt.Errorf("failed to load default configuration: %w", err)
	}

	if customConfigPath != "" {
		v.SetConfigFile(customConfigPath)
		slog.Debug("using custom configuration file", "path", customConfigPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading configuration file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Loop.Capacity < 1 {
		return errors.New("loop.capacity must be positive")
	}
	if c.Timer.Interval <= 0 {
		return errors.New("timer.interval must be positive")
	}
	if c.Timer.Count < 0 {
		return errors.New("timer.count must not be negative")
	}
	if c.Server.ReadBuffer < 1 {
		return errors.New("server.read_buffer must be positive")
	}
	return nil
}
