package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/retriever"

	"github.com/prodscout/server/internal/agent/model"
	logx "github.com/prodscout/server/pkg/logger"
)

// CatalogConfig configures the vector-indexed product catalog.
type CatalogConfig struct {
	IndexName        string `envconfig:"CATALOG_INDEX_NAME" default:"catalog_idx"`
	KeyPrefix        string `envconfig:"CATALOG_KEY_PREFIX" default:"catalog:doc:"`
	ProductKeyPrefix string `envconfig:"CATALOG_PRODUCT_PREFIX" default:"catalog:product:"`
	EmbeddingModel   string `envconfig:"CATALOG_EMBEDDING_MODEL" default:"nomic-embed-text:v1.5"`
	EmbeddingBaseURL string `envconfig:"CATALOG_EMBEDDING_BASE_URL" default:"http://localhost:11434"`
	VectorDim        int    `envconfig:"CATALOG_VECTOR_DIM" default:"768"`
}

// ProductStore persists full product records next to the vector index.
type ProductStore interface {
	Put(ctx context.Context, p model.Product) error
	Get(ctx context.Context, sku string) (*model.Product, error)
}

// CatalogSearcher answers rag_search requests: vector retrieval for
// candidates, then metadata filtering against the plan's constraints.
type CatalogSearcher struct {
	retriever retriever.Retriever
	store     ProductStore
	docPrefix string
}

// NewCatalogSearcher wires a vector retriever to the product store.
// docKeyPrefix is the index's hash key prefix: FT.SEARCH reports the full
// Redis key as the document ID, so it must be stripped to recover the SKU.
func NewCatalogSearcher(r retriever.Retriever, store ProductStore, docKeyPrefix string) *CatalogSearcher {
	return &CatalogSearcher{retriever: r, store: store, docPrefix: docKeyPrefix}
}

// Search retrieves up to maxResults products matching the query and all
// filters. Candidates whose record is missing from the store are skipped;
// losing one product is preferable to failing the whole retrieval.
func (c *CatalogSearcher) Search(ctx context.Context, query string, maxResults int, filters []model.Filter) ([]model.Product, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	for _, f := range filters {
		if !model.ValidFilter(f) {
			return nil, fmt.Errorf("invalid filter: field=%q op=%q", f.Field, f.Op)
		}
	}

	// Over-fetch so post-filtering can still fill maxResults.
	topK := maxResults
	if len(filters) > 0 {
		topK = maxResults * 3
	}

	docs, err := c.retriever.Retrieve(ctx, query, retriever.WithTopK(topK))
	if err != nil {
		return nil, fmt.Errorf("catalog retrieve: %w", err)
	}

	products := make([]model.Product, 0, maxResults)
	for _, doc := range docs {
		if doc == nil || doc.ID == "" {
			continue
		}
		sku := strings.TrimPrefix(doc.ID, c.docPrefix)
		p, err := c.store.Get(ctx, sku)
		if err != nil {
			logx.Warn().Err(err).Str("sku", sku).Msg("catalog record missing for indexed document")
			continue
		}
		if !MatchesFilters(*p, filters) {
			continue
		}
		products = append(products, *p)
		if len(products) >= maxResults {
			break
		}
	}

	return products, nil
}

// MatchesFilters reports whether the product satisfies every filter.
func MatchesFilters(p model.Product, filters []model.Filter) bool {
	for _, f := range filters {
		var v float64
		switch f.Field {
		case model.FieldPrice:
			v = p.Price
		case model.FieldRating:
			v = p.Rating
		default:
			return false
		}
		if !compare(v, f.Op, f.Value) {
			return false
		}
	}
	return true
}

func compare(v float64, op string, bound float64) bool {
	switch op {
	case model.OpLt:
		return v < bound
	case model.OpLte:
		return v <= bound
	case model.OpGt:
		return v > bound
	case model.OpGte:
		return v >= bound
	case model.OpEq:
		return v == bound
	default:
		return false
	}
}
