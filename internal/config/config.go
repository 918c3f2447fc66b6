package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is built once in main and injected everywhere; nothing reads the
// environment after Load returns.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Szamlazz  SzamlazzConfig  `yaml:"szamlazz"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

type AuthConfig struct {
	Token string `yaml:"token" env:"API_TOKEN"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" (default, single embedded file) or "postgres".
	Driver string `yaml:"driver" env:"DB_DRIVER"`
	Path   string `yaml:"path" env:"DB_PATH"`
	DSN    string `yaml:"dsn" env:"POSTGRES_DSN"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
}

type SzamlazzConfig struct {
	BaseURL  string `yaml:"base_url" env:"SZAMLAZZ_BASE_URL"`
	AgentKey string `yaml:"agent_key" env:"SZAMLAZZ_AGENT_KEY"`
	Username string `yaml:"username" env:"SZAMLAZZ_USERNAME"`
	Password string `yaml:"password" env:"SZAMLAZZ_PASSWORD"`
	DataDir  string `yaml:"data_dir" env:"SZAMLAZZ_DATA_DIR"`
}

// Configured reports whether any upstream credential is present.
func (c SzamlazzConfig) Configured() bool {
	return c.AgentKey != "" || (c.Username != "" && c.Password != "")
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

// Configured reports whether outbound mail can be sent at all.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port != 0 && c.User != "" && c.Password != "" && c.From != ""
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps" env:"RATELIMIT_RPS"`
	Burst int `yaml:"burst" env:"RATELIMIT_BURST"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// Load reads the yaml file, then overlays environment variables so secrets
// never need to live on disk.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8000},
		Database:  DatabaseConfig{Driver: "sqlite", Path: "./data/app.db"},
		Szamlazz:  SzamlazzConfig{BaseURL: "https://www.szamlazz.hu/szamla/", DataDir: "./data"},
		SMTP:      SMTPConfig{Port: 587},
		RateLimit: RateLimitConfig{RPS: 50, Burst: 100},
		Log:       LogConfig{Level: "info"},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}
	return cfg, nil
}
