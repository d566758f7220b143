package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"miniapp-games/internal/models"
)

const (
	WalletStoreMemory   = "memory"
	WalletStoreRedis    = "redis"
	WalletStorePostgres = "postgres"
	WalletStoreREST     = "rest"
)

type Config struct {
	Env         string
	Port        string
	MetricsPort string

	RedisURL  string
	RedisPass string
	RedisDB   int

	// Shared secret of the hosted auth provider that signs session tokens.
	JWTSecret string

	WalletStore     string
	WalletBucket    string
	StartingBalance float64
	DatabaseURL     string
	BaaSURL         string
	BaaSServiceKey  string

	KafkaBrokers     []string
	KafkaRoundsTopic string

	GamesConfigPath   string
	SettlementTimeout time.Duration
	HistoryLimit      int

	Games GamesConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("ENV", "local"),
		Port:        getEnv("PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9095"),

		RedisURL:  getEnv("REDIS_URL", "localhost:6379"),
		RedisPass: os.Getenv("REDIS_PASSWORD"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		WalletStore:    getEnv("WALLET_STORE", WalletStoreRedis),
		WalletBucket:   getEnv("WALLET_BUCKET", "balance"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		BaaSURL:        os.Getenv("BAAS_URL"),
		BaaSServiceKey: os.Getenv("BAAS_SERVICE_KEY"),

		KafkaRoundsTopic: getEnv("KAFKA_TOPIC_ROUNDS", "dice.round.settled"),

		GamesConfigPath: getEnv("GAMES_CONFIG", "games.yaml"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = getEnvInt("HISTORY_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.StartingBalance, err = getEnvFloat("STARTING_BALANCE", 100); err != nil {
		return nil, err
	}
	if cfg.SettlementTimeout, err = getEnvDuration("SETTLEMENT_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	games, err := LoadGamesConfig(cfg.GamesConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Games = games

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.WalletStore {
	case WalletStoreMemory, WalletStoreRedis:
	case WalletStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for wallet store %q", c.WalletStore)
		}
	case WalletStoreREST:
		if c.BaaSURL == "" || c.BaaSServiceKey == "" {
			return fmt.Errorf("BAAS_URL and BAAS_SERVICE_KEY are required for wallet store %q", c.WalletStore)
		}
	default:
		return fmt.Errorf("unknown wallet store: %s", c.WalletStore)
	}

	if c.Env != "local" && c.Env != "test" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !models.ValidBucket(c.WalletBucket) {
		return fmt.Errorf("unknown wallet bucket: %s", c.WalletBucket)
	}
	if c.SettlementTimeout <= 0 {
		return fmt.Errorf("settlement timeout must be positive")
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > 100 {
		c.HistoryLimit = 20
	}

	return c.Games.Dice.Validate()
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
