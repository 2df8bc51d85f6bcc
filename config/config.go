// Package config loads process configuration: defaults, an optional YAML
// file, a .env file and finally environment variables, later sources
// winning.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port       int
	DBPath     string
	PolicyFile string
	LogLevel   slog.Level

	// RedisAddr enables the distributed booking lock when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AMQPURL enables publishing earnings.calculated events when set.
	AMQPURL   string
	AMQPQueue string

	RecalcChunkSize   int
	RecalcConcurrency int

	AllowedOrigins []string
}

type configFile struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		LogLevel       string   `yaml:"log_level"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Policy struct {
		File string `yaml:"file"`
	} `yaml:"policy"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	AMQP struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"amqp"`
	Recalculation struct {
		ChunkSize   int `yaml:"chunk_size"`
		Concurrency int `yaml:"concurrency"`
	} `yaml:"recalculation"`
}

func Default() Config {
	return Config{
		Port:              8080,
		DBPath:            "prima.db",
		LogLevel:          slog.LevelInfo,
		AMQPQueue:         "earnings.calculated",
		RecalcChunkSize:   100,
		RecalcConcurrency: 4,
		AllowedOrigins:    []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Load builds the configuration. A missing YAML file or .env file is not
// an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, err
			}
		case !errors.Is(err, fs.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.DBPath = envOrDefault("DB_PATH", cfg.DBPath)
	cfg.PolicyFile = envOrDefault("POLICY_FILE", cfg.PolicyFile)
	cfg.RedisAddr = envOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("REDIS_DB", cfg.RedisDB)
	cfg.AMQPURL = envOrDefault("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPQueue = envOrDefault("AMQP_QUEUE", cfg.AMQPQueue)
	cfg.RecalcChunkSize = envInt("RECALC_CHUNK_SIZE", cfg.RecalcChunkSize)
	cfg.RecalcConcurrency = envInt("RECALC_CONCURRENCY", cfg.RecalcConcurrency)
	cfg.AllowedOrigins = envCSV("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Server.Port > 0 {
		cfg.Port = f.Server.Port
	}
	if len(f.Server.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = trimNonEmpty(f.Server.AllowedOrigins)
	}
	if f.Server.LogLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(f.Server.LogLevel)); err != nil {
			return fmt.Errorf("server.log_level: %w", err)
		}
	}
	if f.Storage.DBPath != "" {
		cfg.DBPath = f.Storage.DBPath
	}
	if f.Policy.File != "" {
		cfg.PolicyFile = f.Policy.File
	}
	if f.Redis.Addr != "" {
		cfg.RedisAddr = f.Redis.Addr
		cfg.RedisPassword = f.Redis.Password
		cfg.RedisDB = f.Redis.DB
	}
	if f.AMQP.URL != "" {
		cfg.AMQPURL = f.AMQP.URL
	}
	if f.AMQP.Queue != "" {
		cfg.AMQPQueue = f.AMQP.Queue
	}
	if f.Recalculation.ChunkSize > 0 {
		cfg.RecalcChunkSize = f.Recalculation.ChunkSize
	}
	if f.Recalculation.Concurrency > 0 {
		cfg.RecalcConcurrency = f.Recalculation.Concurrency
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db path is required")
	}
	if c.RecalcChunkSize <= 0 {
		return fmt.Errorf("recalculation chunk size must be positive, got %d", c.RecalcChunkSize)
	}
	if c.RecalcConcurrency <= 0 {
		return fmt.Errorf("recalculation concurrency must be positive, got %d", c.RecalcConcurrency)
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
