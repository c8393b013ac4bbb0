package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type CarConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Transport   string        `mapstructure:"transport"` // "http" or "mqtt"
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type MQTTConfig struct {
	BrokerURL string `mapstructure:"broker_url"`
	ClientID  string `mapstructure:"client_id"`
	Topic     string `mapstructure:"topic"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	RPS     int  `mapstructure:"rps"`
	Burst   int  `mapstructure:"burst"`
}

type JournalConfig struct {
	Driver        string        `mapstructure:"driver"` // "sqlite", "postgres" or "none"
	DSN           string        `mapstructure:"dsn"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
	Buffer        int           `mapstructure:"buffer"`
}

type Config struct {
	ListenAddr  string          `mapstructure:"listen_addr"`
	LogLevel    string          `mapstructure:"log_level"`
	LogFormat   string          `mapstructure:"log_format"`
	LayoutPath  string          `mapstructure:"layout_path"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	Car         CarConfig       `mapstructure:"car"`
	MQTT        MQTTConfig      `mapstructure:"mqtt"`
	Redis       RedisConfig     `mapstructure:"redis"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Journal     JournalConfig   `mapstructure:"journal"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("layout_path", "")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("car.base_url", "http://192.168.4.1")
	v.SetDefault("car.transport", "http")
	v.SetDefault("car.send_timeout", 2*time.Second)
	v.SetDefault("mqtt.broker_url", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic", "car")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.dsn", "file:car-remote.db?cache=shared")
	v.SetDefault("journal.retention", 24*time.Hour)
	v.SetDefault("journal.prune_schedule", "@every 1h")
	v.SetDefault("journal.buffer", 256)
}

// Load reads the optional YAML file at path, then layers CAR_REMOTE_* env
// vars and the plain env names shared with the other homenavi services.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CAR_REMOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	overrideEnv(&cfg.LogLevel, "LOG_LEVEL")
	overrideEnv(&cfg.LogFormat, "LOG_FORMAT")
	overrideEnv(&cfg.Car.BaseURL, "CAR_BASE_URL")
	overrideEnv(&cfg.MQTT.BrokerURL, "MQTT_BROKER_URL")
	overrideEnv(&cfg.Redis.Addr, "REDIS_ADDR")
	overrideEnv(&cfg.Redis.Password, "REDIS_PASSWORD")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	slog.Info("car-remote config loaded", "listen", cfg.ListenAddr, "car", cfg.Car.BaseURL, "transport", cfg.Car.Transport, "journal", cfg.Journal.Driver)
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Car.Transport = strings.ToLower(strings.TrimSpace(c.Car.Transport))
	switch c.Car.Transport {
	case "http":
		if strings.TrimSpace(c.Car.BaseURL) == "" {
			return errors.New("car.base_url is required for http transport")
		}
	case "mqtt":
		if strings.TrimSpace(c.MQTT.BrokerURL) == "" {
			return errors.New("mqtt.broker_url is required for mqtt transport")
		}
	default:
		return fmt.Errorf("unknown car.transport %q", c.Car.Transport)
	}
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	switch c.Journal.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown journal.driver %q", c.Journal.Driver)
	}
	if c.Car.SendTimeout <= 0 {
		c.Car.SendTimeout = 2 * time.Second
	}
	return nil
}

// RateLimitActive reports whether the REST control API should be throttled.
func (c *Config) RateLimitActive() bool {
	return c.RateLimit.Enabled && c.Redis.Addr != "" && c.RateLimit.RPS > 0 && c.RateLimit.Burst > 0
}

func overrideEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
