package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	GatewayBase string
	GatewayKey  string
	GatewayRPS  int
	Currency    string
	Workers     int
	OutboxBatch int
	CacheTTL    time.Duration
	SessionTTL  time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/afriestate?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		GatewayBase: env("GATEWAY_BASE_URL", "https://pay.sandbox.afriestate.africa"),
		GatewayKey:  env("GATEWAY_API_KEY", ""),
		GatewayRPS:  atoi("GATEWAY_RPS", 5),
		Currency:    env("CURRENCY", "RWF"),
		Workers:     atoi("RECONCILER_WORKERS", 4),
		OutboxBatch: atoi("OUTBOX_BATCH", 50),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 60)) * time.Second,
		SessionTTL:  time.Duration(atoi("SESSION_TTL_SECONDS", 1800)) * time.Second,
	}
	if c.GatewayKey == "" {
		log.Warn().Msg("GATEWAY_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
