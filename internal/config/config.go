package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig       `mapstructure:"log"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	Store      StoreConfig     `mapstructure:"store"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Broadcast  BroadcastConfig `mapstructure:"broadcast"`
	Trigger    TriggerConfig   `mapstructure:"trigger"`
	Scheduler  SchedulerConfig `mapstructure:"scheduler"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	RedisKey string `mapstructure:"redis_key"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
	Workers        int      `mapstructure:"workers"`
}

type BroadcastConfig struct {
	Messages             []string      `mapstructure:"messages"`
	Title                string        `mapstructure:"title"`
	TargetURL            string        `mapstructure:"target_url"`
	NotificationIDPrefix string        `mapstructure:"notification_id_prefix"`
	Interval             time.Duration `mapstructure:"interval"` // min gap between deliveries
	Workers              int           `mapstructure:"workers"`
	Timeout              time.Duration `mapstructure:"timeout"` // per delivery request
}

type TriggerConfig struct {
	APIKey          string `mapstructure:"api_key"`
	UserAgentMarker string `mapstructure:"user_agent_marker"`
}

type SchedulerConfig struct {
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (NOTIFYGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return Config{}, fmt.Errorf("merge %s: %w", path, err)
			}
		}
	}

	// env override (NOTIFYGW_BROADCAST_INTERVAL etc.)
	v.SetEnvPrefix("NOTIFYGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks what is needed to accept events and attempt a broadcast run.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Store),
		validation.Field(&c.Broadcast),
	)
}

func (s StoreConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(StoreFile, StoreRedis, StoreMySQL, StoreMemory)),
		validation.Field(&s.Path, validation.When(s.Driver == StoreFile, validation.Required)),
		validation.Field(&s.RedisKey, validation.When(s.Driver == StoreRedis, validation.Required)),
	)
}

func (b BroadcastConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Messages, validation.Required, validation.Each(validation.Required)),
		validation.Field(&b.Title, validation.Required),
		validation.Field(&b.TargetURL, validation.Required),
		validation.Field(&b.NotificationIDPrefix, validation.Required),
		validation.Field(&b.Workers, validation.Min(0)),
	)
}
