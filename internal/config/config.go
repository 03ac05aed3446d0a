package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	PathCPUTemperature = "environment.rpi.cpu.temperature"
	PathCPUUsage       = "environment.rpi.cpu.usage"
	PathUptime         = "environment.rpi.uptime"
	PathLTESignal      = "environment.lte.signal.strength"
	PathShutdownFlag   = "environment.rpi.shutdown"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"prod"`
	Hub      HubConfig      `yaml:"hub"`
	Stream   StreamConfig   `yaml:"stream"`
	Publish  PublishConfig  `yaml:"publish"`
	Poller   PollerConfig   `yaml:"poller"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Control  ControlConfig  `yaml:"control"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

type HubConfig struct {
	URL        string        `yaml:"url" env:"HUB_URL" env-default:"localhost:3000"`
	BasePath   string        `yaml:"base_path" env-default:"/signalk/v1"`
	Username   string        `yaml:"username" env:"HUB_USERNAME"`
	Password   string        `yaml:"password" env:"HUB_PASSWORD"`
	ClientName string        `yaml:"client_name" env-default:"marine_system"`
	Timeout    time.Duration `yaml:"timeout" env-default:"10s"`
}

type StreamConfig struct {
	ReconnectDelay      time.Duration `yaml:"reconnect_delay" env-default:"5s"`
	ReconnectMultiplier float64       `yaml:"reconnect_multiplier" env-default:"1"`
	ReconnectMaxDelay   time.Duration `yaml:"reconnect_max_delay" env-default:"1m"`
	ReconnectJitter     float64       `yaml:"reconnect_jitter" env-default:"0"`
	WriteTimeout        time.Duration `yaml:"write_timeout" env-default:"5s"`
	ReadyTimeout        time.Duration `yaml:"ready_timeout" env-default:"15s"`
}

type PublishConfig struct {
	Interval    time.Duration `yaml:"interval" env-default:"10s"`
	CPUWindow   time.Duration `yaml:"cpu_window" env-default:"1s"`
	ReadTimeout time.Duration `yaml:"read_timeout" env-default:"5s"`
	ModemIndex  int           `yaml:"modem_index" env-default:"0"`
}

type PollerConfig struct {
	Enabled      bool          `yaml:"enabled" env:"POLLER_ENABLED" env-default:"true"`
	Interval     time.Duration `yaml:"interval" env-default:"1s"`
	ShutdownPath string        `yaml:"shutdown_path" env-default:"environment.rpi.shutdown"`
}

type ShutdownConfig struct {
	Command []string `yaml:"command" env-default:"sudo,shutdown,-h,now"`
}

type ControlConfig struct {
	Address string `yaml:"address" env:"CONTROL_ADDRESS" env-default:":8080"`
}

type AuditConfig struct {
	Enabled bool          `yaml:"enabled" env:"AUDIT_ENABLED" env-default:"true"`
	Path    string        `yaml:"path" env-default:"/var/lib/skbridge/audit.db"`
	MaxAge  time.Duration `yaml:"max_age" env-default:"720h"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format     string `yaml:"format" env-default:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env-default:"14"`
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(configPath), ".properties") {
		if err := readProperties(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Hub.URL == "" {
		errs = append(errs, errors.New("hub.url is required"))
	}
	if c.Hub.Username == "" {
		errs = append(errs, errors.New("hub.username is required"))
	}
	if c.Publish.Interval <= 0 {
		errs = append(errs, errors.New("publish.interval must be positive"))
	}
	if c.Publish.CPUWindow < 0 || c.Publish.CPUWindow >= c.Publish.Interval {
		errs = append(errs, errors.New("publish.cpu_window must be shorter than publish.interval"))
	}
	if c.Publish.ReadTimeout <= c.Publish.CPUWindow {
		errs = append(errs, errors.New("publish.read_timeout must be longer than publish.cpu_window"))
	}
	if c.Stream.ReconnectJitter < 0 || c.Stream.ReconnectJitter >= 1 {
		errs = append(errs, errors.New("stream.reconnect_jitter must be in [0, 1)"))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("poller.interval must be positive"))
	}
	if c.Stream.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("stream.reconnect_delay must be positive"))
	}
	if len(c.Shutdown.Command) == 0 {
		errs = append(errs, errors.New("shutdown.command is required"))
	}
	return errors.Join(errs...)
}
