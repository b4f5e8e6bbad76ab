package config

import (
	"time"

	redisclient "github.com/vietddude/explorer/internal/infra/redis"
	"github.com/vietddude/explorer/internal/infra/rpc"
	"github.com/vietddude/explorer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Feed     FeedConfig         `yaml:"feed"`
	Stores   StoresConfig       `yaml:"stores"`
	Gateway  GatewayConfig      `yaml:"gateway"`
	Engine   rpc.Config         `yaml:"engine"`
	Exchange ExchangeConfig     `yaml:"exchange"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"` // 0 disables the gRPC health service
	WSPath   string `yaml:"ws_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// FeedConfig holds change feed reader settings.
type FeedConfig struct {
	PollInterval    time.Duration     `yaml:"poll_interval"`
	CheckpointEvery int               `yaml:"checkpoint_every"`
	Collections     map[string]string `yaml:"collections"` // entity type -> collection
}

// StoresConfig holds the capacity of each recent-item store.
type StoresConfig struct {
	Blocks     int `yaml:"blocks"`
	Txs        int `yaml:"txs"`
	PendingTxs int `yaml:"pending_txs"`
	Uncles     int `yaml:"uncles"`
}

// GatewayConfig holds client connection limits.
type GatewayConfig struct {
	PushBuffer        int     `yaml:"push_buffer"`
	MaxInFlight       int     `yaml:"max_inflight"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxMessageBytes   int64   `yaml:"max_message_bytes"`
	MaxPageSize       int     `yaml:"max_page_size"`
}

// ExchangeConfig holds exchange rate settings.
type ExchangeConfig struct {
	MemoTTL  time.Duration      `yaml:"memo_ttl"`
	RateTTL  time.Duration      `yaml:"rate_ttl"`
	Fallback map[string]float64 `yaml:"fallback"` // "ETH:USD" -> price
}
