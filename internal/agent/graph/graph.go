package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/prodscout/server/internal/agent/graph/conversations"
	"github.com/prodscout/server/internal/agent/graph/nodes"
	"github.com/prodscout/server/internal/agent/graph/observers"
	"github.com/prodscout/server/internal/agent/graph/tools"
	"github.com/prodscout/server/internal/agent/model"
	"github.com/prodscout/server/internal/toolserver/client"
	logx "github.com/prodscout/server/pkg/logger"
)

// Runner is a thin wrapper to execute the compiled graph with the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.Answer, error)
}

// Config holds everything needed to compose the discovery pipeline end-to-end.
// This is a convenience layer over GraphConfig that also constructs ChatModels
// and MessagesManager.
type Config struct {
	Provider         model.ProviderConfig
	IntentModel      model.IntentModelConfig
	ResponseModel    model.ResponseModelConfig
	Conversation     model.ConversationConfig
	ConversationRepo model.ConversationRepository
	ToolClient       *client.Client
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager
	ToolClient      *client.Client
	ToolMaxCalls    int
}

// GraphBuilder handles the construction of the discovery pipeline graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.Answer, error) {
	out, err := r.runnable.Invoke(ctx, model.QueryInput{
		ConversationID: in.ConversationID,
		Query:          in.Query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return &model.Answer{}, nil
	}

	answer := &model.Answer{Response: out.Content}
	if v, ok := out.Extra[nodes.ExtraKnowledge].(string); ok {
		answer.Knowledge = v
	}
	if v, ok := out.Extra[nodes.ExtraRetrievedContext].([]string); ok {
		answer.RetrievedContext = v
	}
	if v, ok := out.Extra[nodes.ExtraTotalCostUSD].(float64); ok {
		answer.TotalCostUSD = v
	}
	return answer, nil
}

// BuildDiscoveryGraph composes ChatModels, MessagesManager, builds the graph,
// and returns a Runner.
func BuildDiscoveryGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.ToolClient == nil {
		return nil, fmt.Errorf("tool server client is nil")
	}

	// Create chat models
	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		Provider:  cfg.Provider,
		IntentCfg: &cfg.IntentModel,
		RespCfg:   &cfg.ResponseModel,
	})
	if err != nil {
		return nil, err
	}

	// Create messages manager
	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation)

	// Build runnable graph
	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:      cms,
		MessagesManager: mm,
		ToolClient:      cfg.ToolClient,
		ToolMaxCalls:    cfg.Conversation.Tools.MaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Discovery graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled pipeline graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Intent == nil ||
		config.ChatModels.Retriever == nil || config.ChatModels.Answer == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.ToolClient == nil {
		return nil, fmt.Errorf("tool server client is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools configures the retrieval tools and binds them to the retriever model
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	retrievalTools := tools.GetRetrievalTools(b.config.ToolClient)
	toolInfos, err := tools.GetToolInfos(ctx, retrievalTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindToolsToRetrieverModel(ctx, toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to retriever model")
		return fmt.Errorf("failed to bind tools to retriever model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               retrievalTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls (e.g., empty name)
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			// Return a compact, structured message the model can use to proceed
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			// Best-effort sanitize; never fail hard here
			var m map[string]any
			if err := json.Unmarshal([]byte(arguments), &m); err != nil {
				// keep original if not JSON
				return arguments, nil
			}

			switch name {
			case tools.ToolRagSearch:
				sanitizeQueryArg(m)
				sanitizeMaxResultsArg(m)
				sanitizeFiltersArg(ctx, m)
			case tools.ToolWebSearch:
				sanitizeQueryArg(m)
				sanitizeMaxResultsArg(m)
				// mode: string (optional, web|shopping)
				if v, ok := m["mode"]; ok {
					mode := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
					if mode != "web" && mode != "shopping" {
						delete(m, "mode")
					} else {
						m["mode"] = mode
					}
				}
			}

			b, err := json.Marshal(m)
			if err != nil {
				// fallback to original
				return arguments, nil
			}
			return string(b), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler()),
	)

	return nil
}

// sanitizeQueryArg coerces the query argument to a trimmed string.
func sanitizeQueryArg(m map[string]any) {
	if v, ok := m["query"]; ok {
		switch vv := v.(type) {
		case string:
			m["query"] = strings.TrimSpace(vv)
		default:
			// coerce non-string to string
			m["query"] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
}

// sanitizeMaxResultsArg clamps max_results into [1, 10].
func sanitizeMaxResultsArg(m map[string]any) {
	if v, ok := m["max_results"]; ok {
		switch vv := v.(type) {
		case float64:
			// JSON numbers decode as float64
			m["max_results"] = clampInt(int(vv), 1, 10)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
				m["max_results"] = clampInt(n, 1, 10)
			} else {
				delete(m, "max_results")
			}
		default:
			delete(m, "max_results")
		}
	}
}

// sanitizeFiltersArg drops malformed filter entries and, when the model
// omitted filters entirely, injects the parsed plan's filters from state.
func sanitizeFiltersArg(ctx context.Context, m map[string]any) {
	if v, ok := m["filters"]; ok {
		arr, ok := v.([]any)
		if !ok {
			delete(m, "filters")
		} else {
			kept := make([]any, 0, len(arr))
			for _, e := range arr {
				obj, ok := e.(map[string]any)
				if !ok {
					continue
				}
				field, _ := obj["field"].(string)
				op, _ := obj["op"].(string)
				val, okVal := obj["value"].(float64)
				f := model.Filter{Field: strings.TrimSpace(field), Op: strings.TrimSpace(op), Value: val}
				if okVal && model.ValidFilter(f) {
					kept = append(kept, map[string]any{"field": f.Field, "op": f.Op, "value": f.Value})
				}
			}
			m["filters"] = kept
		}
	}

	if _, ok := m["filters"]; !ok {
		var planFilters []model.Filter
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Plan != nil {
				planFilters = state.Plan.Filters
			}
			return nil
		})
		if len(planFilters) > 0 {
			arr := make([]any, 0, len(planFilters))
			for _, f := range planFilters {
				arr = append(arr, map[string]any{"field": f.Field, "op": f.Op, "value": f.Value})
			}
			m["filters"] = arr
		}
	}
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeRouterAssembler,
		nodes.NewRouterAssemblerNode(b.config.MessagesManager),
		compose.WithStatePreHandler(nodes.NewRouterAssemblerPreHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodeRouterChatModel,
		b.config.ChatModels.Intent,
		compose.WithStatePostHandler(nodes.NewRouterChatModelPostHandler(b.config.ChatModels.ModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodePlannerAssembler,
		nodes.NewPlannerAssemblerNode(),
	)

	b.graph.AddChatModelNode(nodes.NodePlannerChatModel,
		b.config.ChatModels.Intent,
		compose.WithStatePostHandler(nodes.NewPlannerChatModelPostHandler(b.config.ChatModels.ModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodePlanParser,
		nodes.NewPlanParserNode(),
		compose.WithStatePostHandler(nodes.NewPlanParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeRetrieverAssembler,
		nodes.NewRetrieverAssemblerNode(),
	)

	b.graph.AddChatModelNode(nodes.NodeRetrieverChatModel,
		b.config.ChatModels.Retriever,
		compose.WithStatePreHandler(nodes.NewRetrieverChatModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewRetrieverChatModelPostHandler(b.config.ChatModels.ModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeAnswerAssembler,
		nodes.NewAnswerAssemblerNode(),
	)

	b.graph.AddChatModelNode(nodes.NodeAnswerChatModel,
		b.config.ChatModels.Answer,
		compose.WithStatePostHandler(nodes.NewAnswerChatModelPostHandler(b.config.MessagesManager, b.config.ChatModels.ModelName)),
	)
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeRouterAssembler},
		{nodes.NodeRouterAssembler, nodes.NodeRouterChatModel},
		{nodes.NodeRouterChatModel, nodes.NodePlannerAssembler},
		{nodes.NodePlannerAssembler, nodes.NodePlannerChatModel},
		{nodes.NodePlannerChatModel, nodes.NodePlanParser},
		{nodes.NodePlanParser, nodes.NodeRetrieverAssembler},
		{nodes.NodeRetrieverAssembler, nodes.NodeRetrieverChatModel},
		{nodes.NodeToolExecutor, nodes.NodeRetrieverChatModel},
		{nodes.NodeAnswerAssembler, nodes.NodeAnswerChatModel},
		{nodes.NodeAnswerChatModel, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor:    true,
			nodes.NodeAnswerAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRetrieverChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding tool decision branch")
		return fmt.Errorf("error adding tool decision branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
