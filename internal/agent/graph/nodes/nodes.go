package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/prodscout/server/internal/agent/graph/conversations"
	"github.com/prodscout/server/internal/agent/graph/parsers"
	"github.com/prodscout/server/internal/agent/graph/prompts"
	"github.com/prodscout/server/internal/agent/graph/tools"
	"github.com/prodscout/server/internal/agent/model"
	logx "github.com/prodscout/server/pkg/logger"
)

// Graph node keys.
const (
	NodeRouterAssembler    = "RouterAssembler"
	NodeRouterChatModel    = "RouterChatModel"
	NodePlannerAssembler   = "PlannerAssembler"
	NodePlannerChatModel   = "PlannerChatModel"
	NodePlanParser         = "PlanParser"
	NodeRetrieverAssembler = "RetrieverAssembler"
	NodeRetrieverChatModel = "RetrieverChatModel"
	NodeToolExecutor       = "ToolExecutor"
	NodeAnswerAssembler    = "AnswerAssembler"
	NodeAnswerChatModel    = "AnswerChatModel"
)

// Keys under the final message's Extra carrying pipeline artifacts out of
// graph-local state.
const (
	ExtraKnowledge        = "knowledge"
	ExtraRetrievedContext = "retrieved_context"
	ExtraTotalCostUSD     = "usage_cost_total_usd"
)

// ===== Router =====

// NewRouterAssemblerPreHandler resets per-query state before the pipeline runs.
func NewRouterAssemblerPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if s.ConversationID == "" {
			s.ConversationID = in.ConversationID
		}
		s.Query = in.Query
		s.Intent = ""
		s.PlanText = ""
		s.Plan = nil
		s.Knowledge = ""
		s.RetrievedContext = nil
		s.History = nil
		// Reset tool call counter and limit flag for each new query
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		// Reset accumulated total cost for each new query
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewRouterAssemblerNode builds the Router stage context: persisted
// conversation turns plus the current request.
func NewRouterAssemblerNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		conversationCtx, err := mm.ProcessRouterMessage(ctx, input.ConversationID, input.Query)
		if err != nil {
			return nil, fmt.Errorf("error getting conversation context: %w", err)
		}

		systemPrompt, err := prompts.RenderRouterSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render router system prompt: %w", err)
		}

		messages := []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}

		return messages, nil
	})
}

// NewRouterChatModelPostHandler stores the interpreted intent and accounts cost.
func NewRouterChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeRouterChatModel, modelName)
		if out != nil {
			state.Intent = out.Content
		}
		logx.Debug().Str("conversation_id", state.ConversationID).Msg("Router intent captured")
		return out, nil
	}
}

// ===== Planner =====

// NewPlannerAssemblerNode builds the Planner stage messages from the query
// and the router's interpreted intent.
func NewPlannerAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		var query, intent string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			intent = state.Intent
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if intent == "" {
			intent = "No intent provided"
		}

		systemPrompt, err := prompts.RenderPlannerSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render planner system prompt: %w", err)
		}

		var user strings.Builder
		user.WriteString("### User Query\n")
		user.WriteString(query)
		user.WriteString("\n\n### Interpreted Intent\n")
		user.WriteString(intent)

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(user.String()),
		}, nil
	})
}

// NewPlannerChatModelPostHandler keeps the raw plan text and accounts cost.
func NewPlannerChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodePlannerChatModel, modelName)
		if out != nil {
			state.PlanText = out.Content
		}
		return out, nil
	}
}

// NewPlanParserNode converts the planner's text into a typed RetrievalPlan.
// A parser failure degrades to a private-only unfiltered plan; the pipeline
// must answer even when the planner rambles.
func NewPlanParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.RetrievalPlan, error) {
		result, err := parsers.ParsePlan(resp.Content)
		if err != nil || result == nil {
			logx.Error().Err(err).Msg("Error parsing retrieval plan; degrading to private-only")
			return model.RetrievalPlan{
				Source:          model.SourcePrivate,
				ParsingMetadata: map[string]any{"degraded": true},
			}, nil
		}
		return *result, nil
	})
}

// NewPlanParserPostHandler saves the typed plan to state.
func NewPlanParserPostHandler() func(context.Context, model.RetrievalPlan, *model.AppState) (model.RetrievalPlan, error) {
	return func(ctx context.Context, out model.RetrievalPlan, state *model.AppState) (model.RetrievalPlan, error) {
		plan := out
		state.Plan = &plan

		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Str("source", string(plan.Source)).
			Int("filters", len(plan.Filters)).
			Msg("Retrieval plan parsed")
		return out, nil
	}
}

// ===== Retriever =====

// NewRetrieverAssemblerNode builds the Retrieval Agent messages: tool-use
// instructions plus the query, plan text, and the parsed filters the model
// should forward to rag_search.
func NewRetrieverAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, plan model.RetrievalPlan) ([]*schema.Message, error) {
		var query, planText string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			planText = state.PlanText
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if planText == "" {
			planText = "No plan provided"
		}

		systemPrompt, err := prompts.RenderRetrieverSystem(ctx, tools.ToolRagSearch, tools.ToolWebSearch)
		if err != nil {
			return nil, fmt.Errorf("render retriever system prompt: %w", err)
		}

		var user strings.Builder
		user.WriteString("### User Query\n")
		user.WriteString(query)
		user.WriteString("\n\n### Plan Details\n")
		user.WriteString(planText)
		if len(plan.Filters) > 0 {
			if b, err := json.Marshal(plan.Filters); err == nil {
				user.WriteString("\n\n### Parsed Filters (pass as `filters`)\n")
				user.Write(b)
			}
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(user.String()),
		}, nil
	})
}

// NewRetrieverChatModelPreHandler creates the pre-handler for the retriever
// model: maintains the tool loop history and injects the wrap-up notice when
// the tool budget is exhausted.
func NewRetrieverChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Heuristic fix for OpenAI-compat providers: ensure tool results carry tool_call_id
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				// Try to find the most recent assistant tool call id from history
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					id := msg.ToolCalls[0].ID
					if strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Report the data you have already retrieved, or \"No data found.\" if nothing was retrieved.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		logx.Debug().Msg("Retriever thinking...")

		return state.History, nil
	}
}

// NewRetrieverChatModelPostHandler collects the retriever's final synthesis
// into state and keeps the loop history consistent.
func NewRetrieverChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeRetrieverChatModel, modelName)
		if out == nil {
			return out, nil
		}

		// Normalize tool calls: some providers omit tool_call IDs.
		if len(out.ToolCalls) > 0 {
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling retrieval tools")
			return out, nil
		}

		// Final retriever message: this is the knowledge the answer stage grounds on.
		if strings.TrimSpace(out.Content) != "" {
			state.Knowledge = out.Content
		}
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Int("retrieved_context", len(state.RetrievedContext)).
			Msg("Retrieval complete")
		return out, nil
	}
}

// NewToolExecutorCondition routes the retriever output: tool calls loop
// through the executor, a final message moves on to the answer stage.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		// Check if tool limit was reached
		var limitReached bool
		compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to answer stage")
			return NodeAnswerAssembler, nil
		}

		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}

		logx.Debug().Msg("No tool calls - continuing to answer stage")
		return NodeAnswerAssembler, nil
	}
}

// NewToolExecutorPreHandler counts tool executions against the budget.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("conversation_id", state.ConversationID).
			Msg("Tool execution attempt")

		if exceeded {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", maxToolCalls).
				Str("conversation_id", state.ConversationID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}

		return in, nil
	}
}

// NewToolExecutorPostHandler accumulates raw tool payloads for citation.
func NewToolExecutorPostHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		for _, msg := range out {
			if msg == nil || strings.TrimSpace(msg.Content) == "" {
				continue
			}
			state.RetrievedContext = append(state.RetrievedContext, msg.Content)
		}
		return out, nil
	}
}

// ===== Answer / Critic =====

// NewAnswerAssemblerNode builds the Answer/Critic messages from the user
// request and the retriever's knowledge.
func NewAnswerAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		var query, knowledge string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			knowledge = state.Knowledge
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if knowledge == "" {
			knowledge = "No knowledge provided"
		}

		systemPrompt, err := prompts.RenderAnswerSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render answer system prompt: %w", err)
		}

		var user strings.Builder
		user.WriteString("### User Request\n")
		user.WriteString(query)
		user.WriteString("\n\n### Retrieved Knowledge\n")
		user.WriteString(knowledge)

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(user.String()),
		}, nil
	})
}

// NewAnswerChatModelPostHandler persists the final answer and surfaces the
// pipeline artifacts (knowledge, retrieved context, cost) in message Extra.
func NewAnswerChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeAnswerChatModel, modelName)
		if out == nil {
			return out, nil
		}

		if strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
				logx.Error().
					Str("conversation_id", state.ConversationID).
					Err(err).
					Msg("Error saving assistant response")
			} else {
				logx.Debug().
					Str("conversation_id", state.ConversationID).
					Msg("Successfully saved assistant response")
			}
		}

		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra[ExtraKnowledge] = state.Knowledge
		out.Extra[ExtraRetrievedContext] = append([]string(nil), state.RetrievedContext...)
		out.Extra[ExtraTotalCostUSD] = state.TotalCostUSD

		return out, nil
	}
}
