// Package toolserver exposes the pipeline's retrieval tools over HTTP.
//
// The contract is intentionally small: two POST tool endpoints plus a
// health probe. The graph's tools talk to this server through
// toolserver/client; both sides share the request/response types below.
package toolserver

import (
	"github.com/prodscout/server/internal/agent/model"
)

// Routes.
const (
	RouteRagSearch = "/tools/rag.search"
	RouteWebSearch = "/tools/web.search"
	RouteHealth    = "/health"
)

const (
	ServerName    = "prodscout-toolserver"
	ServerVersion = "1.0.0"
)

type RagSearchRequest struct {
	Query      string         `json:"query"`
	MaxResults int            `json:"max_results,omitempty"`
	Filters    []model.Filter `json:"filters,omitempty"`
}

type RagSearchResponse struct {
	Products []model.Product `json:"products"`
	Total    int             `json:"total"`
}

type WebSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Mode       string `json:"mode,omitempty"` // "web" or "shopping" (default)
}

type WebSearchResponse struct {
	Results []model.WebResult `json:"results"`
	Note    string            `json:"note,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Server  string `json:"server"`
	Version string `json:"version"`
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
