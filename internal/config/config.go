package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type AMQPConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
}

type S3Config struct {
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	SignedLinkTTL time.Duration `mapstructure:"signed_link_ttl"`
}

type DynamoConfig struct {
	Table  string `mapstructure:"table"`
	Region string `mapstructure:"region"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	DumpFolder  string        `mapstructure:"dump_folder"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	WorkerCount int           `mapstructure:"worker_count"`
	AMQP        AMQPConfig    `mapstructure:"amqp"`
	S3          S3Config      `mapstructure:"s3"`
	Dynamo      DynamoConfig  `mapstructure:"dynamo"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("dump_folder", "temp")
	v.SetDefault("read_limit", 16777216)
	v.SetDefault("idle_timeout", "30s")
	v.SetDefault("ping_period", "25s")
	v.SetDefault("worker_count", 0)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Dumps: %s\n", cfg.Mode, cfg.Port, cfg.DumpFolder)
	return &cfg, nil
}
