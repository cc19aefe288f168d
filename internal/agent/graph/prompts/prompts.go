package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/router_prompt.txt
var routerSystemPrompt string

//go:embed template/planner_prompt.txt
var plannerSystemPrompt string

//go:embed template/retriever_prompt.txt
var retrieverSystemPrompt string

//go:embed template/answer_prompt.txt
var answerSystemPrompt string

// RenderRouterSystem renders the Router system prompt via the Eino prompt
// component. The indirection exists so Prompt callbacks fire on every render.
func RenderRouterSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, "router", routerSystemPrompt)
}

// RenderPlannerSystem renders the Planner system prompt.
func RenderPlannerSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, "planner", plannerSystemPrompt)
}

// RenderRetrieverSystem renders the Retrieval Agent system prompt with the
// registered tool names substituted in.
func RenderRetrieverSystem(ctx context.Context, ragTool, webTool string) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(retrieverSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"RagTool": ragTool,
		"WebTool": webTool,
	})
	if err != nil {
		return "", fmt.Errorf("retriever prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("retriever prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// RenderAnswerSystem renders the Answer/Critic system prompt.
func RenderAnswerSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, "answer", answerSystemPrompt)
}

// renderStatic wraps a fixed system prompt in a messages placeholder so the
// template engine never touches literal braces inside the prompt body.
func renderStatic(ctx context.Context, name, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("%s prompt callbacks: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt callbacks: empty result", name)
	}
	return msgs[0].Content, nil
}
