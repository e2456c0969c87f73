package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Telegram API credentials used when the login flow creates an account.
	TGAPIID       int    `env:"TG_API_ID,required"`
	TGAPIHash     string `env:"TG_API_HASH,required"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`

	// Engine tuning.
	RuleCacheTTL     time.Duration `env:"RULE_CACHE_TTL" envDefault:"2m"`
	SettingsCacheTTL time.Duration `env:"SETTINGS_CACHE_TTL" envDefault:"30s"`
	SendRateRPS      float64       `env:"SEND_RATE_RPS" envDefault:"1"`

	// Activity log retention. Zero disables pruning.
	ActivityRetention time.Duration `env:"ACTIVITY_RETENTION" envDefault:"720h"`
	PruneInterval     time.Duration `env:"PRUNE_INTERVAL" envDefault:"1h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
