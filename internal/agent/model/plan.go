package model

// DataSource tells the retriever which backends to query.
type DataSource string

const (
	// SourcePrivate restricts retrieval to the local catalog index.
	SourcePrivate DataSource = "private"
	// SourceBoth adds a live web search on top of the catalog.
	SourceBoth DataSource = "both"
)

// Filter op vocabulary, mirroring the catalog's metadata filter syntax.
const (
	OpLt  = "$lt"
	OpLte = "$lte"
	OpGt  = "$gt"
	OpGte = "$gte"
	OpEq  = "$eq"
)

// Filterable metadata fields.
const (
	FieldPrice  = "price"
	FieldRating = "rating"
)

// Filter is a single metadata constraint on catalog results.
type Filter struct {
	Field string  `json:"field"`
	Op    string  `json:"op"`
	Value float64 `json:"value"`
}

// ValidFilter reports whether the filter uses a known field and operator.
func ValidFilter(f Filter) bool {
	switch f.Field {
	case FieldPrice, FieldRating:
	default:
		return false
	}
	switch f.Op {
	case OpLt, OpLte, OpGt, OpGte, OpEq:
	default:
		return false
	}
	return true
}

// RetrievalPlan is the typed form of the planner's structured output.
type RetrievalPlan struct {
	Source   DataSource `json:"source"`
	Fields   []string   `json:"fields,omitempty"`
	Filters  []Filter   `json:"filters,omitempty"`
	Criteria []string   `json:"criteria,omitempty"`

	// ParsingMetadata records degradations (fallbacks, dropped constraints)
	// observed while parsing the planner output.
	ParsingMetadata map[string]any `json:"parsing_metadata,omitempty"`
}

// WantsWeb reports whether the plan requires a live web search.
func (p *RetrievalPlan) WantsWeb() bool {
	return p != nil && p.Source == SourceBoth
}
