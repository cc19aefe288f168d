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
// RAG Search Tool
// ===================================

type RagSearchInput struct {
	Query      string         `json:"query"`
	MaxResults int            `json:"max_results,omitempty"`
	Filters    []model.Filter `json:"filters,omitempty"`
}

type RagSearchOutput struct {
	Products []model.Product `json:"products"`
	Total    int             `json:"total"`
}

func createRagSearchTool(c *client.Client) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolRagSearch,
			Desc: "Query the private vector-indexed product catalog. Returns matching items with sku, title, price, rating, and, when available, brand, ingredients, and description. Use this tool when the plan's data source includes the private catalog.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Natural language product query, e.g. 'stuffed animal for kids'.",
					Required: true,
				},
				"max_results": {
					Type: schema.Integer,
					Desc: "Maximum number of products to return (default: 5, max: 10).",
				},
				"filters": {
					Type: schema.Array,
					Desc: "Metadata constraints from the plan. Allowed fields: price, rating. Allowed ops: $lt, $lte, $gt, $gte, $eq.",
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"field": {Type: schema.String, Desc: "price or rating", Required: true},
							"op":    {Type: schema.String, Desc: "$lt, $lte, $gt, $gte or $eq", Required: true},
							"value": {Type: schema.Number, Desc: "comparison bound", Required: true},
						},
					},
				},
			}),
		},
		func(ctx context.Context, in *RagSearchInput) (*RagSearchOutput, error) {
			if in.Query == "" {
				return nil, fmt.Errorf("query is required")
			}
			resp, err := c.RagSearch(ctx, toolserver.RagSearchRequest{
				Query:      in.Query,
				MaxResults: in.MaxResults,
				Filters:    in.Filters,
			})
			if err != nil {
				return nil, err
			}
			return &RagSearchOutput{Products: resp.Products, Total: resp.Total}, nil
		},
	)
}
