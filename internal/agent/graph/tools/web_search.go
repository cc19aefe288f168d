package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/prodscout/server/internal/agent/model"
	"github.com/prodscout/server/internal/toolserver"
	"github.com/prodscout/server/internal/toolserver/client"
)

// ===================================
// Web Search Tool
// ===================================

type WebSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

type WebSearchOutput struct {
	Results []model.WebResult `json:"results"`
	Note    string            `json:"note,omitempty"`
}

func createWebSearchTool(c *client.Client) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWebSearch,
			Desc: "Perform a live web search via the external search API to retrieve up-to-date product information. Returns results with title, url, snippet, and, when available, price and availability. Use this tool when the plan's data source includes the public web.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Natural language product query to send to the web search API.",
					Required: true,
				},
				"max_results": {
					Type: schema.Integer,
					Desc: "Maximum number of results to return (default: 5, max: 10).",
				},
				"mode": {
					Type: schema.String,
					Desc: "Use 'shopping' for product/price search, 'web' for general info.",
					Enum: []string{"web", "shopping"},
				},
			}),
		},
		func(ctx context.Context, in *WebSearchInput) (*WebSearchOutput, error) {
			if in.Query == "" {
				return nil, fmt.Errorf("query is required")
			}
			resp, err := c.WebSearch(ctx, toolserver.WebSearchRequest{
				Query:      in.Query,
				MaxResults: in.MaxResults,
				Mode:       in.Mode,
			})
			if err != nil {
				return nil, err
			}
			return &WebSearchOutput{Results: resp.Results, Note: resp.Note}, nil
		},
	)
}
