package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/prodscout/server/internal/agent/model"
	logx "github.com/prodscout/server/pkg/logger"
)

// FeatureText builds the text field a product is embedded under. The
// concatenation order is part of the index format; reindex after changing it.
func FeatureText(p model.Product) string {
	parts := []string{
		p.Title,
		p.Brand,
		p.Category,
		p.Ingredients,
	}
	if p.Rating > 0 {
		parts = append(parts, strconv.FormatFloat(p.Rating, 'f', -1, 64))
	}
	parts = append(parts, p.Description)

	kept := parts[:0]
	for _, s := range parts {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, strings.TrimSpace(s))
		}
	}
	return strings.Join(kept, " ")
}

// EnsureIndex creates the RediSearch vector index when it does not exist.
// The schema mirrors what the eino redis indexer writes: a text `content`
// field plus its embedding under `vector_content`.
func EnsureIndex(ctx context.Context, client *redis.Client, cfg CatalogConfig) error {
	names, err := client.Do(ctx, "FT._LIST").StringSlice()
	if err != nil {
		return fmt.Errorf("list search indexes: %w", err)
	}
	for _, name := range names {
		if name == cfg.IndexName {
			return nil
		}
	}

	_, err = client.FTCreate(ctx, cfg.IndexName, &redis.FTCreateOptions{
		OnHash: true,
		Prefix: []any{cfg.KeyPrefix},
	}, &redis.FieldSchema{
		FieldName: "content",
		FieldType: redis.SearchFieldTypeText,
		Weight:    1,
	}, &redis.FieldSchema{
		FieldName: "vector_content",
		FieldType: redis.SearchFieldTypeVector,
		VectorArgs: &redis.FTVectorArgs{
			FlatOptions: &redis.FTFlatOptions{
				Type:           "FLOAT64",
				Dim:            cfg.VectorDim, // keep in sync with the embedding model
				DistanceMetric: "COSINE",
			},
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("create search index %s: %w", cfg.IndexName, err)
	}

	logx.Info().Str("index", cfg.IndexName).Int("dim", cfg.VectorDim).Msg("Created catalog vector index")
	return nil
}

// CatalogIndexer ingests product records: feature documents go through the
// embedding indexer, full records land in the product store.
type CatalogIndexer struct {
	indexer indexer.Indexer
	store   ProductStore
	batch   int
}

func NewCatalogIndexer(idx indexer.Indexer, store ProductStore, batchSize int) *CatalogIndexer {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &CatalogIndexer{indexer: idx, store: store, batch: batchSize}
}

// IndexProducts stores every product and its feature document. Products
// without a SKU or price are skipped, matching the source data cleanup the
// catalog build has always done.
func (ci *CatalogIndexer) IndexProducts(ctx context.Context, products []model.Product) (int, error) {
	docs := make([]*schema.Document, 0, len(products))
	for _, p := range products {
		if p.SKU == "" || p.Price <= 0 {
			logx.Warn().Str("sku", p.SKU).Float64("price", p.Price).Msg("Skipping product without sku/price")
			continue
		}
		if err := ci.store.Put(ctx, p); err != nil {
			return 0, fmt.Errorf("store product %s: %w", p.SKU, err)
		}
		docs = append(docs, &schema.Document{
			ID:      p.SKU,
			Content: FeatureText(p),
		})
	}

	indexed := 0
	for start := 0; start < len(docs); start += ci.batch {
		end := start + ci.batch
		if end > len(docs) {
			end = len(docs)
		}
		ids, err := ci.indexer.Store(ctx, docs[start:end])
		if err != nil {
			return indexed, fmt.Errorf("index batch at %d: %w", start, err)
		}
		indexed += len(ids)
		logx.Debug().Int("batch_start", start).Int("indexed", indexed).Msg("Indexed catalog batch")
	}

	return indexed, nil
}
