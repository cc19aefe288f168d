package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prodscout/server/internal/agent/model"
	logx "github.com/prodscout/server/pkg/logger"
)

// Web search modes.
const (
	ModeWeb      = "web"
	ModeShopping = "shopping"
)

// NoAPIKeyNote is returned instead of an error when the provider key is
// absent so the pipeline can degrade to catalog-only answers.
const NoAPIKeyNote = "SERPER_API_KEY not set."

// SerperConfig configures the Serper.dev client from the environment.
type SerperConfig struct {
	APIKey      string `envconfig:"SERPER_API_KEY"`
	SearchURL   string `envconfig:"SERPER_SEARCH_URL" default:"https://google.serper.dev/search"`
	ShoppingURL string `envconfig:"SERPER_SHOPPING_URL" default:"https://google.serper.dev/shopping"`
	Timeout     int    `envconfig:"SERPER_TIMEOUT" default:"10"`
}

// WebSearcher queries Serper.dev's web and shopping endpoints and
// normalizes results into model.WebResult.
type WebSearcher struct {
	cfg SerperConfig
	hc  *http.Client
}

func NewWebSearcher(cfg SerperConfig) *WebSearcher {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebSearcher{
		cfg: cfg,
		hc:  &http.Client{Timeout: timeout},
	}
}

// Search runs a web or shopping query. The note return carries non-fatal
// conditions (e.g. missing API key); it is empty on a normal result.
func (w *WebSearcher) Search(ctx context.Context, query string, maxResults int, mode string) ([]model.WebResult, string, error) {
	if cleaned := CleanQuery(query); cleaned != "" {
		query = cleaned
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	if w.cfg.APIKey == "" {
		logx.Warn().Str("component", "web_search").Msg("serper api key not configured")
		return []model.WebResult{}, NoAPIKeyNote, nil
	}

	switch mode {
	case ModeWeb:
		results, err := w.callSearch(ctx, query, maxResults)
		return results, "", err
	default:
		results, err := w.callShopping(ctx, query, maxResults)
		return results, "", err
	}
}

// priceText tolerates the upstream price field arriving as a string, a bare
// number, or null.
type priceText string

func (p *priceText) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*p = ""
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*p = priceText(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = priceText(n.String())
	return nil
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
	Shopping []struct {
		Title        string    `json:"title"`
		Link         string    `json:"link"`
		Snippet      string    `json:"snippet"`
		Price        priceText `json:"price"`
		Availability string    `json:"availability"`
		Condition    string    `json:"condition"`
		Rating       float64   `json:"rating"`
		RatingCount  int       `json:"ratingCount"`
	} `json:"shopping"`
}

func (w *WebSearcher) callSearch(ctx context.Context, query string, maxResults int) ([]model.WebResult, error) {
	data, err := w.post(ctx, w.cfg.SearchURL, query, maxResults)
	if err != nil {
		return nil, err
	}

	results := make([]model.WebResult, 0, maxResults)
	for _, item := range data.Organic {
		if len(results) >= maxResults {
			break
		}
		results = append(results, model.WebResult{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}

func (w *WebSearcher) callShopping(ctx context.Context, query string, maxResults int) ([]model.WebResult, error) {
	data, err := w.post(ctx, w.cfg.ShoppingURL, query, maxResults)
	if err != nil {
		return nil, err
	}

	results := make([]model.WebResult, 0, len(data.Shopping))
	for _, item := range data.Shopping {
		if len(results) >= maxResults {
			break
		}
		availability := item.Availability
		if availability == "" {
			availability = item.Condition
		}
		results = append(results, model.WebResult{
			Title:        item.Title,
			URL:          item.Link,
			Snippet:      item.Snippet,
			Price:        string(item.Price),
			Availability: availability,
			Rating:       item.Rating,
			RatingCount:  item.RatingCount,
		})
	}

	cleaned := dropBrokenURLs(results)
	if len(cleaned) == 0 {
		cleaned = results
	}
	SortByQuality(cleaned)

	if len(cleaned) > maxResults {
		cleaned = cleaned[:maxResults]
	}
	return cleaned, nil
}

func (w *WebSearcher) post(ctx context.Context, url, query string, maxResults int) (*serperResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"q":   query,
		"num": maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal serper payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build serper request: %w", err)
	}
	req.Header.Set("X-API-KEY", w.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper status %d", resp.StatusCode)
	}

	var data serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode serper response: %w", err)
	}
	return &data, nil
}

// dropBrokenURLs removes empty and known-bad links (shopping results
// occasionally carry "q=nan" redirect stubs).
func dropBrokenURLs(results []model.WebResult) []model.WebResult {
	cleaned := make([]model.WebResult, 0, len(results))
	for _, r := range results {
		url := strings.TrimSpace(r.URL)
		if url == "" {
			continue
		}
		if strings.Contains(strings.ToLower(url), "q=nan") {
			continue
		}
		cleaned = append(cleaned, r)
	}
	return cleaned
}

// SortByQuality orders shopping results best-first: rated items before
// unrated ones, then by review count, then by rating. A zero Rating means
// the provider omitted the field; store ratings are on a 1-5 scale, so
// zero never occurs as a real value.
func SortByQuality(results []model.WebResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		aRated, bRated := a.Rating > 0, b.Rating > 0
		if aRated != bRated {
			return aRated
		}
		if a.RatingCount != b.RatingCount {
			return a.RatingCount > b.RatingCount
		}
		return a.Rating > b.Rating
	})
}

var queryNoisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d+\s*pcs?\b`),
	regexp.MustCompile(`(?i)\b\d+\s*piece(s)?\b`),
	regexp.MustCompile(`(?i)\b\d+\s*(inch|inches|in)\b`),
	regexp.MustCompile(`(?i)\b\d+\s*(cm|mm|oz|g|ml)\b`),
	regexp.MustCompile(`(?i)\b1/\d+\s*scale\b`),
	regexp.MustCompile(`(?i)\bfor ages?\s*\d+\+?\b`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanQuery de-specializes a product title for search: keep the left side
// of separator punctuation and strip size/count/age noise.
func CleanQuery(title string) string {
	if title == "" {
		return ""
	}

	base := title
	if i := strings.IndexAny(title, "|-():"); i >= 0 {
		base = title[:i]
	}
	base = strings.TrimSpace(base)

	for _, pat := range queryNoisePatterns {
		base = pat.ReplaceAllString(base, "")
	}

	return strings.TrimSpace(whitespaceRun.ReplaceAllString(base, " "))
}
