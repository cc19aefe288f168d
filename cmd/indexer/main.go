package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/cloudwego/eino-ext/components/embedding/ollama"
	redisindexer "github.com/cloudwego/eino-ext/components/indexer/redis"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/prodscout/server/internal/agent/model"
	"github.com/prodscout/server/internal/core"
	"github.com/prodscout/server/internal/retrieval"
	logx "github.com/prodscout/server/pkg/logger"
	pkgredis "github.com/prodscout/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the catalog indexer,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	Redis   pkgredis.Config
	Catalog retrieval.CatalogConfig

	BatchSize int `envconfig:"INDEXER_BATCH_SIZE" default:"32"`
}

func main() {
	products := flag.String("products", "products.json", "path to a JSON array of product records")
	flag.Parse()

	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	records, err := loadProducts(*products)
	if err != nil {
		log.Fatalf("Failed to load products from %s: %v", *products, err)
	}
	logx.Info().Int("products", len(records)).Str("file", *products).Msg("Loaded product records")

	rdb, err := cfg.Redis.NewSearch()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	if err := retrieval.EnsureIndex(ctx, rdb, cfg.Catalog); err != nil {
		log.Fatalf("Failed to ensure catalog index: %v", err)
	}

	embedder, err := ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
		Model:   cfg.Catalog.EmbeddingModel,
		BaseURL: cfg.Catalog.EmbeddingBaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialise embedder: %v", err)
	}

	idx, err := redisindexer.NewIndexer(ctx, &redisindexer.IndexerConfig{
		Client:    rdb,
		KeyPrefix: cfg.Catalog.KeyPrefix,
		BatchSize: cfg.BatchSize,
		Embedding: embedder,
	})
	if err != nil {
		log.Fatalf("Failed to initialise indexer: %v", err)
	}

	store := retrieval.NewRedisProductStore(rdb, cfg.Catalog.ProductKeyPrefix)
	indexed, err := retrieval.NewCatalogIndexer(idx, store, cfg.BatchSize).IndexProducts(ctx, records)
	if err != nil {
		log.Fatalf("Indexing failed: %v", err)
	}

	logx.Info().Int("indexed", indexed).Int("skipped", len(records)-indexed).Msg("Catalog indexing finished")
}

func loadProducts(path string) ([]model.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []model.Product
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
