package toolserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodscout/server/internal/agent/model"
	"github.com/prodscout/server/internal/toolserver"
	"github.com/prodscout/server/internal/toolserver/client"
)

type stubCatalog struct {
	products []model.Product
	err      error

	lastQuery   string
	lastMax     int
	lastFilters []model.Filter
}

func (s *stubCatalog) Search(ctx context.Context, query string, maxResults int, filters []model.Filter) ([]model.Product, error) {
	s.lastQuery, s.lastMax, s.lastFilters = query, maxResults, filters
	return s.products, s.err
}

type stubWeb struct {
	results []model.WebResult
	note    string
	err     error

	lastMode string
}

func (s *stubWeb) Search(ctx context.Context, query string, maxResults int, mode string) ([]model.WebResult, string, error) {
	s.lastMode = mode
	return s.results, s.note, s.err
}

func newTestServer(t *testing.T, catalog *stubCatalog, web *stubWeb) (*httptest.Server, *client.Client) {
	t.Helper()
	srv := httptest.NewServer(toolserver.NewServer(toolserver.Config{}, catalog, web).Handler())
	t.Cleanup(srv.Close)
	return srv, client.New(client.Config{BaseURL: srv.URL})
}

func TestRagSearchEndpoint(t *testing.T) {
	catalog := &stubCatalog{products: []model.Product{
		{SKU: "sku-1", Title: "Budget Serum", Price: 12.50, Rating: 4.1},
	}}
	_, c := newTestServer(t, catalog, &stubWeb{})

	resp, err := c.RagSearch(context.Background(), toolserver.RagSearchRequest{
		Query:      "serum",
		MaxResults: 3,
		Filters:    []model.Filter{{Field: model.FieldPrice, Op: model.OpLt, Value: 30}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "sku-1", resp.Products[0].SKU)

	assert.Equal(t, "serum", catalog.lastQuery)
	assert.Equal(t, 3, catalog.lastMax)
	require.Len(t, catalog.lastFilters, 1)
}

func TestRagSearchRejectsEmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t, &stubCatalog{}, &stubWeb{})

	resp, err := http.Post(srv.URL+toolserver.RouteRagSearch, "application/json", strings.NewReader(`{"query":""}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body toolserver.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "query is required")
}

func TestRagSearchRejectsInvalidFilter(t *testing.T) {
	srv, _ := newTestServer(t, &stubCatalog{}, &stubWeb{})

	payload := `{"query":"serum","filters":[{"field":"brand","op":"$eq","value":1}]}`
	resp, err := http.Post(srv.URL+toolserver.RouteRagSearch, "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRagSearchUpstreamFailure(t *testing.T) {
	catalog := &stubCatalog{err: fmt.Errorf("redis down")}
	_, c := newTestServer(t, catalog, &stubWeb{})

	_, err := c.RagSearch(context.Background(), toolserver.RagSearchRequest{Query: "serum"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog search failed")
}

func TestWebSearchEndpoint(t *testing.T) {
	web := &stubWeb{
		results: []model.WebResult{{Title: "Popular", URL: "https://shop.example/b", Price: "$14.99"}},
	}
	_, c := newTestServer(t, &stubCatalog{}, web)

	resp, err := c.WebSearch(context.Background(), toolserver.WebSearchRequest{
		Query: "face cream",
		Mode:  "shopping",
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Note)
	assert.Equal(t, "shopping", web.lastMode)
}

func TestWebSearchPropagatesNote(t *testing.T) {
	web := &stubWeb{results: []model.WebResult{}, note: "SERPER_API_KEY not set."}
	_, c := newTestServer(t, &stubCatalog{}, web)

	resp, err := c.WebSearch(context.Background(), toolserver.WebSearchRequest{Query: "face cream"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, "SERPER_API_KEY not set.", resp.Note)
}

func TestWebSearchRejectsUnknownMode(t *testing.T) {
	srv, _ := newTestServer(t, &stubCatalog{}, &stubWeb{})

	resp, err := http.Post(srv.URL+toolserver.RouteWebSearch, "application/json", strings.NewReader(`{"query":"x","mode":"images"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToolEndpointsRequirePost(t *testing.T) {
	srv, _ := newTestServer(t, &stubCatalog{}, &stubWeb{})

	for _, route := range []string{toolserver.RouteRagSearch, toolserver.RouteWebSearch} {
		resp, err := http.Get(srv.URL + route)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, route)
	}
}

func TestToolEndpointsRejectMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t, &stubCatalog{}, &stubWeb{})

	resp, err := http.Post(srv.URL+toolserver.RouteRagSearch, "application/json", strings.NewReader(`{not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	_, c := newTestServer(t, &stubCatalog{}, &stubWeb{})

	resp, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, toolserver.ServerName, resp.Server)
	assert.Equal(t, toolserver.ServerVersion, resp.Version)
}
