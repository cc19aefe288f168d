package model

// Product is a catalog record as stored alongside the vector index and as
// returned by the rag_search tool.
type Product struct {
	SKU         string  `json:"sku"`
	Title       string  `json:"title"`
	Brand       string  `json:"brand,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating,omitempty"`
	Ingredients string  `json:"ingredients,omitempty"`
	Description string  `json:"description,omitempty"`
	DocID       string  `json:"doc_id,omitempty"`
}

// WebResult is a normalized hit from the web search provider.
type WebResult struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Snippet      string  `json:"snippet,omitempty"`
	Price        string  `json:"price,omitempty"`
	Availability string  `json:"availability,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	RatingCount  int     `json:"rating_count,omitempty"`
}
