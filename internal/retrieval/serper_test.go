package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodscout/server/internal/agent/model"
)

func TestWebSearcherNoAPIKey(t *testing.T) {
	w := NewWebSearcher(SerperConfig{})

	results, note, err := w.Search(context.Background(), "vitamin c serum", 5, ModeWeb)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, NoAPIKeyNote, note)
}

func TestWebSearcherWebMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "vitamin c serum", payload["q"])

		json.NewEncoder(w).Encode(map[string]any{
			"organic": []map[string]any{
				{"title": "Best Vitamin C Serums", "link": "https://example.com/a", "snippet": "top picks"},
				{"title": "Serum Guide", "link": "https://example.com/b", "snippet": "how to choose"},
				{"title": "Extra", "link": "https://example.com/c", "snippet": "more"},
			},
		})
	}))
	defer srv.Close()

	w := NewWebSearcher(SerperConfig{APIKey: "test-key", SearchURL: srv.URL})

	results, note, err := w.Search(context.Background(), "vitamin c serum", 2, ModeWeb)
	require.NoError(t, err)
	assert.Empty(t, note)
	require.Len(t, results, 2)
	assert.Equal(t, "Best Vitamin C Serums", results[0].Title)
	assert.Equal(t, "https://example.com/a", results[0].URL)
	assert.Equal(t, "top picks", results[0].Snippet)
}

func TestWebSearcherShoppingMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"shopping": []map[string]any{
				{"title": "Unrated", "link": "https://shop.example/a", "price": "$12.99"},
				{"title": "Broken", "link": "https://shop.example/redirect?q=nan", "price": "$9.99"},
				{"title": "Popular", "link": "https://shop.example/b", "price": "$14.99", "rating": 4.5, "ratingCount": 200, "condition": "New"},
				{"title": "Niche", "link": "https://shop.example/c", "price": "$19.99", "rating": 4.8, "ratingCount": 12, "availability": "In stock"},
			},
		})
	}))
	defer srv.Close()

	w := NewWebSearcher(SerperConfig{APIKey: "test-key", ShoppingURL: srv.URL})

	results, note, err := w.Search(context.Background(), "face cream", 10, ModeShopping)
	require.NoError(t, err)
	assert.Empty(t, note)
	require.Len(t, results, 3)

	// broken q=nan link dropped, rated items first, review count wins
	assert.Equal(t, "Popular", results[0].Title)
	assert.Equal(t, "New", results[0].Availability)
	assert.Equal(t, "Niche", results[1].Title)
	assert.Equal(t, "In stock", results[1].Availability)
	assert.Equal(t, "Unrated", results[2].Title)
}

func TestWebSearcherShoppingMixedPriceTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// prices arrive as string, bare number, or null
		w.Write([]byte(`{"shopping":[
			{"title":"String", "link":"https://shop.example/a", "price":"$12.99"},
			{"title":"Number", "link":"https://shop.example/b", "price":14.99},
			{"title":"Null", "link":"https://shop.example/c", "price":null}
		]}`))
	}))
	defer srv.Close()

	w := NewWebSearcher(SerperConfig{APIKey: "test-key", ShoppingURL: srv.URL})

	results, _, err := w.Search(context.Background(), "face cream", 10, ModeShopping)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byTitle := map[string]string{}
	for _, r := range results {
		byTitle[r.Title] = r.Price
	}
	assert.Equal(t, "$12.99", byTitle["String"])
	assert.Equal(t, "14.99", byTitle["Number"])
	assert.Equal(t, "", byTitle["Null"])
}

func TestWebSearcherUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	w := NewWebSearcher(SerperConfig{APIKey: "bad-key", SearchURL: srv.URL})

	_, _, err := w.Search(context.Background(), "anything", 5, ModeWeb)
	assert.Error(t, err)
}

func TestCleanQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"LEGO Star Wars Set | 500 pcs | Ages 8+", "LEGO Star Wars Set"},
		{"Hydrating Face Cream - 2 oz Travel Size", "Hydrating Face Cream"},
		{"Plain Title", "Plain Title"},
		{"Model Kit 1/72 scale", "Model Kit"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CleanQuery(tc.in), tc.in)
	}
}

func TestSortByQuality(t *testing.T) {
	results := []model.WebResult{
		{Title: "unrated"},
		{Title: "high-rating-few-reviews", Rating: 4.9, RatingCount: 3},
		{Title: "many-reviews", Rating: 4.2, RatingCount: 500},
	}

	SortByQuality(results)

	assert.Equal(t, "many-reviews", results[0].Title)
	assert.Equal(t, "high-rating-few-reviews", results[1].Title)
	assert.Equal(t, "unrated", results[2].Title)
}
