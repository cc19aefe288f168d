package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino-ext/components/embedding/ollama"
	redisretriever "github.com/cloudwego/eino-ext/components/retriever/redis"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/prodscout/server/internal/core"
	"github.com/prodscout/server/internal/retrieval"
	"github.com/prodscout/server/internal/toolserver"
	logx "github.com/prodscout/server/pkg/logger"
	pkgredis "github.com/prodscout/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the tool server,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	Redis   pkgredis.Config
	Catalog retrieval.CatalogConfig
	Serper  retrieval.SerperConfig
	Server  toolserver.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.NewSearch()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	embedder, err := ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
		Model:   cfg.Catalog.EmbeddingModel,
		BaseURL: cfg.Catalog.EmbeddingBaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialise embedder: %v", err)
	}

	ret, err := redisretriever.NewRetriever(ctx, &redisretriever.RetrieverConfig{
		Client:    rdb,
		Index:     cfg.Catalog.IndexName,
		Embedding: embedder,
	})
	if err != nil {
		log.Fatalf("Failed to initialise catalog retriever: %v", err)
	}

	store := retrieval.NewRedisProductStore(rdb, cfg.Catalog.ProductKeyPrefix)
	catalog := retrieval.NewCatalogSearcher(ret, store, cfg.Catalog.KeyPrefix)
	web := retrieval.NewWebSearcher(cfg.Serper)

	srv := toolserver.NewServer(cfg.Server, catalog, web)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Tool server stopped with error: %v", err)
	}
}
