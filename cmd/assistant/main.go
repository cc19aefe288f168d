package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/prodscout/server/internal/agent/graph"
	"github.com/prodscout/server/internal/agent/model"
	"github.com/prodscout/server/internal/agent/repo"
	"github.com/prodscout/server/internal/core"
	"github.com/prodscout/server/internal/toolserver/client"
	logx "github.com/prodscout/server/pkg/logger"
	pkgredis "github.com/prodscout/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the assistant,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis      pkgredis.Config
	ToolServer client.Config

	// Agent configs
	Provider     model.ProviderConfig
	Intent       model.IntentModelConfig
	Response     model.ResponseModelConfig
	Conversation model.ConversationConfig
}

func main() {
	var (
		query          = flag.String("query", "", "run a single query and exit; omit for interactive mode")
		conversationID = flag.String("conversation", "", "conversation ID to continue; a new one is generated if empty")
	)
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

	rdb, err := cfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", cfg.Conversation.TTL, err)
	}

	toolClient := client.New(cfg.ToolServer)
	if _, err := toolClient.Health(ctx); err != nil {
		logx.Warn().Err(err).Msg("Tool server health check failed; retrieval tools will error until it is reachable")
	}

	runner, err := graph.BuildDiscoveryGraph(ctx, graph.Config{
		Provider:         cfg.Provider,
		IntentModel:      cfg.Intent,
		ResponseModel:    cfg.Response,
		Conversation:     cfg.Conversation,
		ConversationRepo: repo.NewRedisConversationRepository(rdb, ttl),
		ToolClient:       toolClient,
	})
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	convID := *conversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	if *query != "" {
		answer, err := runner.Invoke(ctx, model.QueryInput{ConversationID: convID, Query: *query})
		if err != nil {
			log.Fatalf("Failed to answer query: %v", err)
		}
		printAnswer(answer)
		return
	}

	fmt.Printf("Conversation %s. Type a question, or 'exit' to quit.\n", convID)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		answer, err := runner.Invoke(ctx, model.QueryInput{ConversationID: convID, Query: line})
		if err != nil {
			logx.Error().Err(err).Msg("Query failed")
			continue
		}
		printAnswer(answer)
	}
}

func printAnswer(a *model.Answer) {
	fmt.Println(a.Response)
	if a.TotalCostUSD > 0 {
		fmt.Printf("(cost: $%.6f)\n", a.TotalCostUSD)
	}
}
