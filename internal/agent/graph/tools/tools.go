package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/prodscout/server/internal/toolserver/client"
)

// Tool names as seen by the retrieval model.
const (
	ToolRagSearch = "rag_search"
	ToolWebSearch = "web_search"
)

// GetRetrievalTools returns the retrieval tools backed by the tool server.
func GetRetrievalTools(c *client.Client) []tool.BaseTool {
	return []tool.BaseTool{
		createRagSearchTool(c),
		createWebSearchTool(c),
	}
}

// GetToolInfos collects ToolInfo from each tool for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
