package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/infra/storage"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.WSPath == "" {
		cfg.Server.WSPath = "/ws"
	}

	if cfg.Feed.PollInterval == 0 {
		cfg.Feed.PollInterval = time.Second
	}
	if cfg.Feed.CheckpointEvery == 0 {
		cfg.Feed.CheckpointEvery = 100
	}
	if cfg.Feed.Collections == nil {
		cfg.Feed.Collections = make(map[string]string)
	}
	for entity, collection := range storage.DefaultCollections {
		if cfg.Feed.Collections[string(entity)] == "" {
			cfg.Feed.Collections[string(entity)] = collection
		}
	}

	if cfg.Stores.Blocks == 0 {
		cfg.Stores.Blocks = 20
	}
	if cfg.Stores.Txs == 0 {
		cfg.Stores.Txs = 50
	}
	if cfg.Stores.PendingTxs == 0 {
		cfg.Stores.PendingTxs = 50
	}
	if cfg.Stores.Uncles == 0 {
		cfg.Stores.Uncles = 50
	}

	if cfg.Redis.PageTTL == 0 {
		cfg.Redis.PageTTL = 30 * time.Second
	}

	if cfg.Gateway.PushBuffer == 0 {
		cfg.Gateway.PushBuffer = 256
	}
	if cfg.Gateway.MaxInFlight == 0 {
		cfg.Gateway.MaxInFlight = 8
	}
	if cfg.Gateway.RequestsPerSecond == 0 {
		cfg.Gateway.RequestsPerSecond = 50
	}
	if cfg.Gateway.Burst == 0 {
		cfg.Gateway.Burst = 100
	}
	if cfg.Gateway.MaxMessageBytes == 0 {
		cfg.Gateway.MaxMessageBytes = 64 << 10
	}
	if cfg.Gateway.MaxPageSize == 0 {
		cfg.Gateway.MaxPageSize = 100
	}

	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = 10 * time.Second
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = 2
	}

	if cfg.Exchange.MemoTTL == 0 {
		cfg.Exchange.MemoTTL = 30 * time.Second
	}
	if cfg.Exchange.RateTTL == 0 {
		cfg.Exchange.RateTTL = 5 * time.Minute
	}
}

func (cfg *AppConfig) validate() error {
	for entity := range cfg.Feed.Collections {
		if !domain.EntityType(entity).Valid() {
			return fmt.Errorf("unknown entity %q in feed.collections", entity)
		}
	}
	return nil
}

// Collection returns the collection configured for entity.
func (cfg *AppConfig) Collection(entity domain.EntityType) string {
	return cfg.Feed.Collections[string(entity)]
}
