package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	AMQPURL     string `env:"AMQP_URL"`
	RedisAddr   string `env:"REDIS_ADDR"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Bounded retries for optimistic-lock conflicts on postings.
	PostMaxRetries int `env:"POST_MAX_RETRIES" envDefault:"3"`

	// Withdrawal fee in basis points of the amount; 0 disables fees.
	WithdrawalFeeBps int64 `env:"WITHDRAWAL_FEE_BPS" envDefault:"0"`

	// Cached balance TTL in seconds; 0 disables the balance cache even
	// when REDIS_ADDR is set.
	BalanceCacheTTLS int `env:"BALANCE_CACHE_TTL_S" envDefault:"30"`

	NotifyExchange string `env:"NOTIFY_EXCHANGE" envDefault:"caisse.transactions"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
