package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Remote  RemoteConfig
	Sync    SyncConfig
	Channel ChannelConfig
	Observ  ObservabilityConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type StoreConfig struct {
	Path       string
	MerchantID int64
}

type RemoteConfig struct {
	BaseURL string
	Token   string
}

type SyncConfig struct {
	Interval      time.Duration
	ProbeInterval time.Duration
}

type ChannelConfig struct {
	ReconnectBase time.Duration
	MaxReconnects int
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

func Load() *Config {
	_ = godotenv.Load()

	merchantID, _ := strconv.ParseInt(getEnv("MERCHANT_ID", "0"), 10, 64)
	syncInterval, _ := strconv.Atoi(getEnv("SYNC_INTERVAL_SECONDS", "30"))
	probeInterval, _ := strconv.Atoi(getEnv("CONNECTIVITY_PROBE_SECONDS", "10"))
	reconnectBase, _ := strconv.Atoi(getEnv("CHANNEL_RECONNECT_BASE_MS", "1000"))
	maxReconnects, _ := strconv.Atoi(getEnv("CHANNEL_MAX_RECONNECTS", "5"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Store: StoreConfig{
			Path:       getEnv("LEDGER_DB_PATH", "ledger.db"),
			MerchantID: merchantID,
		},
		Remote: RemoteConfig{
			BaseURL: getEnv("REMOTE_BASE_URL", "http://localhost:8000"),
			Token:   getEnv("REMOTE_TOKEN", ""),
		},
		Sync: SyncConfig{
			Interval:      time.Duration(syncInterval) * time.Second,
			ProbeInterval: time.Duration(probeInterval) * time.Second,
		},
		Channel: ChannelConfig{
			ReconnectBase: time.Duration(reconnectBase) * time.Millisecond,
			MaxReconnects: maxReconnects,
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, merchant=%d", cfg.Server.Env, cfg.Server.Port, cfg.Store.MerchantID)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
