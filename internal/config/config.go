package config

import (
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type WSConfig struct {
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	SendRatePerSecond    float64 `mapstructure:"send_rate_per_second"`
	SendBurst            int     `mapstructure:"send_burst"`
}

type PresenceConfig struct {
	Backend           string `mapstructure:"backend"` // "memory" or "redis"
	StaleAfterSeconds int    `mapstructure:"stale_after_seconds"`
	TypingTTLSeconds  int    `mapstructure:"typing_ttl_seconds"`
}

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	WS       WSConfig       `mapstructure:"ws"`
	Presence PresenceConfig `mapstructure:"presence"`

	MetricsPort string `mapstructure:"metrics_port"`

	// derived
	PingInterval       time.Duration
	WriteDeadline      time.Duration
	PresenceStaleAfter time.Duration
	TypingTTL          time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	if c.App.Port == "" {
		c.App.Port = "8080"
	}
	if c.MetricsPort == "" {
		c.MetricsPort = "9090"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "messaging"
	}
	if c.WS.PingIntervalSeconds == 0 {
		c.WS.PingIntervalSeconds = 25
	}
	if c.WS.WriteDeadlineSeconds == 0 {
		c.WS.WriteDeadlineSeconds = 10
	}
	if c.WS.MaxMessageSizeBytes == 0 {
		c.WS.MaxMessageSizeBytes = 65536
	}
	if c.WS.SendRatePerSecond == 0 {
		c.WS.SendRatePerSecond = 10
	}
	if c.WS.SendBurst == 0 {
		c.WS.SendBurst = 20
	}
	if c.Presence.Backend == "" {
		c.Presence.Backend = "memory"
	}
	if c.Presence.StaleAfterSeconds == 0 {
		c.Presence.StaleAfterSeconds = 300
	}
	if c.Presence.TypingTTLSeconds == 0 {
		c.Presence.TypingTTLSeconds = 10
	}

	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.PresenceStaleAfter = time.Duration(c.Presence.StaleAfterSeconds) * time.Second
	c.TypingTTL = time.Duration(c.Presence.TypingTTLSeconds) * time.Second
	return &c, nil
}
