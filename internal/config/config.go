package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             int
	DebriefingsPath  string
	CacheDir         string
	AggregatorConfig string
	IngestWorkers    int
	APIToken         string
	DatabaseURL      string
	NatsURL          string
	NatsToken        string
	SlackBotToken    string
	SlackChannel     string
	LogLevel         string
}

func Load() Config {
	return Config{
		Port:             envInt("DEBRIEF_PORT", 8760),
		DebriefingsPath:  envStr("DEBRIEFINGS_PATH", "debriefings/*.xml"),
		CacheDir:         envStr("DEBRIEF_CACHE_DIR", "public/debriefings"),
		AggregatorConfig: envStr("DEBRIEF_AGGREGATOR_CONFIG", ""),
		IngestWorkers:    envInt("DEBRIEF_INGEST_WORKERS", 4),
		APIToken:         envStr("DEBRIEF_API_TOKEN", ""),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		SlackBotToken:    envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:     envStr("SLACK_CHANNEL", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
