package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Do not access AppState directly from outside handlers. For persistence,
//     use repositories/services (e.g., MessagesManager).
type AppState struct {
	ConversationID string
	Query          string

	Intent   string         // router output: task, constraints, safety flags
	PlanText string         // planner output, verbatim
	Plan     *RetrievalPlan // typed plan set by the parser post-handler

	Knowledge        string   // retriever's final synthesis of tool results
	RetrievedContext []string // raw tool payloads in call order

	History              []*schema.Message // retriever loop context, mutated only inside state handlers
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput represents the input for processing user queries.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

// Answer is the pipeline's final output for one query.
type Answer struct {
	Response         string   `json:"response"`
	Knowledge        string   `json:"knowledge,omitempty"`
	RetrievedContext []string `json:"retrieved_context,omitempty"`
	TotalCostUSD     float64  `json:"total_cost_usd,omitempty"`
}
