package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodscout/server/internal/agent/model"
)

type fakeRetriever struct {
	docs      []*schema.Document
	err       error
	lastQuery string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	f.lastQuery = query
	return f.docs, f.err
}

type fakeStore struct {
	products map[string]model.Product
}

func (f *fakeStore) Put(ctx context.Context, p model.Product) error {
	if f.products == nil {
		f.products = map[string]model.Product{}
	}
	f.products[p.SKU] = p
	return nil
}

func (f *fakeStore) Get(ctx context.Context, sku string) (*model.Product, error) {
	p, ok := f.products[sku]
	if !ok {
		return nil, fmt.Errorf("product %s not found", sku)
	}
	return &p, nil
}

const testDocPrefix = "catalog:doc:"

// docsFor mimics what FT.SEARCH reports: the full Redis hash key, not the
// bare SKU.
func docsFor(skus ...string) []*schema.Document {
	docs := make([]*schema.Document, 0, len(skus))
	for _, sku := range skus {
		docs = append(docs, &schema.Document{ID: testDocPrefix + sku, Content: "feature text"})
	}
	return docs
}

func TestCatalogSearch(t *testing.T) {
	store := &fakeStore{products: map[string]model.Product{
		"sku-1": {SKU: "sku-1", Title: "Budget Serum", Price: 12.50, Rating: 4.1},
		"sku-2": {SKU: "sku-2", Title: "Premium Serum", Price: 45.00, Rating: 4.8},
		"sku-3": {SKU: "sku-3", Title: "Mid Serum", Price: 25.00, Rating: 3.9},
	}}
	ret := &fakeRetriever{docs: docsFor("sku-1", "sku-2", "sku-3")}
	c := NewCatalogSearcher(ret, store, testDocPrefix)

	products, err := c.Search(context.Background(), "serum", 5, nil)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "serum", ret.lastQuery)
}

func TestCatalogSearchAppliesFilters(t *testing.T) {
	store := &fakeStore{products: map[string]model.Product{
		"sku-1": {SKU: "sku-1", Price: 12.50, Rating: 4.1},
		"sku-2": {SKU: "sku-2", Price: 45.00, Rating: 4.8},
		"sku-3": {SKU: "sku-3", Price: 25.00, Rating: 3.9},
	}}
	ret := &fakeRetriever{docs: docsFor("sku-1", "sku-2", "sku-3")}
	c := NewCatalogSearcher(ret, store, testDocPrefix)

	products, err := c.Search(context.Background(), "serum", 5, []model.Filter{
		{Field: model.FieldPrice, Op: model.OpLt, Value: 30},
		{Field: model.FieldRating, Op: model.OpGte, Value: 4},
	})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "sku-1", products[0].SKU)
}

func TestCatalogSearchStripsIndexKeyPrefix(t *testing.T) {
	// store keys are bare SKUs; the retriever reports full index keys
	store := &fakeStore{products: map[string]model.Product{
		"sku-1": {SKU: "sku-1", Title: "Budget Serum", Price: 12.50},
	}}
	ret := &fakeRetriever{docs: []*schema.Document{
		{ID: "catalog:doc:sku-1", Content: "feature text"},
	}}
	c := NewCatalogSearcher(ret, store, "catalog:doc:")

	products, err := c.Search(context.Background(), "serum", 5, nil)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "sku-1", products[0].SKU)
}

func TestCatalogSearchSkipsMissingRecords(t *testing.T) {
	store := &fakeStore{products: map[string]model.Product{
		"sku-2": {SKU: "sku-2", Price: 45.00},
	}}
	ret := &fakeRetriever{docs: docsFor("sku-1", "sku-2")}
	c := NewCatalogSearcher(ret, store, testDocPrefix)

	products, err := c.Search(context.Background(), "serum", 5, nil)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "sku-2", products[0].SKU)
}

func TestCatalogSearchRejectsInvalidFilter(t *testing.T) {
	c := NewCatalogSearcher(&fakeRetriever{}, &fakeStore{}, testDocPrefix)

	_, err := c.Search(context.Background(), "serum", 5, []model.Filter{
		{Field: "brand", Op: model.OpEq, Value: 1},
	})
	assert.Error(t, err)
}

func TestCatalogSearchRequiresQuery(t *testing.T) {
	c := NewCatalogSearcher(&fakeRetriever{}, &fakeStore{}, testDocPrefix)

	_, err := c.Search(context.Background(), "", 5, nil)
	assert.Error(t, err)
}

func TestMatchesFilters(t *testing.T) {
	p := model.Product{Price: 20, Rating: 4.5}

	assert.True(t, MatchesFilters(p, nil))
	assert.True(t, MatchesFilters(p, []model.Filter{
		{Field: model.FieldPrice, Op: model.OpLte, Value: 20},
		{Field: model.FieldRating, Op: model.OpGt, Value: 4},
	}))
	assert.False(t, MatchesFilters(p, []model.Filter{
		{Field: model.FieldPrice, Op: model.OpLt, Value: 20},
	}))
	assert.False(t, MatchesFilters(p, []model.Filter{
		{Field: model.FieldRating, Op: model.OpEq, Value: 4},
	}))
}

func TestFeatureText(t *testing.T) {
	p := model.Product{
		Title:       "Hydrating Serum",
		Brand:       "Acme",
		Category:    "skincare",
		Ingredients: "water, glycerin",
		Rating:      4.5,
		Description: "Lightweight daily serum.",
	}
	assert.Equal(t, "Hydrating Serum Acme skincare water, glycerin 4.5 Lightweight daily serum.", FeatureText(p))

	sparse := model.Product{Title: "Bare", Description: "Just a title."}
	assert.Equal(t, "Bare Just a title.", FeatureText(sparse))
}

func TestCatalogIndexerSkipsInvalidProducts(t *testing.T) {
	store := &fakeStore{}
	idx := &fakeIndexer{}
	ci := NewCatalogIndexer(idx, store, 2)

	indexed, err := ci.IndexProducts(context.Background(), []model.Product{
		{SKU: "sku-1", Title: "A", Price: 10},
		{SKU: "", Title: "no sku", Price: 5},
		{SKU: "sku-3", Title: "free?", Price: 0},
		{SKU: "sku-4", Title: "B", Price: 20},
		{SKU: "sku-5", Title: "C", Price: 30},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, indexed)
	assert.Len(t, store.products, 3)
	// batch size 2 over 3 docs
	assert.Equal(t, [][]string{{"sku-1", "sku-4"}, {"sku-5"}}, idx.batches)
}

type fakeIndexer struct {
	batches [][]string
}

func (f *fakeIndexer) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	f.batches = append(f.batches, ids)
	return ids, nil
}
