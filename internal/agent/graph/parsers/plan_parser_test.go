package parsers

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodscout/server/internal/agent/model"
)

func TestParsePlanFullOutput(t *testing.T) {
	content := `* Data Source (private / both): both
* Fields to Retrieve: title, price, rating, ingredients
* Constraints:
- "price": {"$lt": 30}
- "rating": {"$gte": 4}
* Comparison Criteria:
- value for money
- ingredient quality`

	plan, err := ParsePlan(content)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, model.SourceBoth, plan.Source)
	assert.Equal(t, []string{"title", "price", "rating", "ingredients"}, plan.Fields)
	assert.Equal(t, []model.Filter{
		{Field: model.FieldPrice, Op: model.OpLt, Value: 30},
		{Field: model.FieldRating, Op: model.OpGte, Value: 4},
	}, plan.Filters)
	assert.Equal(t, []string{"value for money", "ingredient quality"}, plan.Criteria)
	assert.True(t, plan.WantsWeb())
	assert.Empty(t, plan.ParsingMetadata["parsing_errors"])
}

func TestParsePlanSymbolicConstraints(t *testing.T) {
	content := `* Data Source: private
* Constraints:
- price <= 1,500
- rating > 3.5`

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	assert.Equal(t, model.SourcePrivate, plan.Source)
	require.Len(t, plan.Filters, 2)
	assert.Equal(t, model.Filter{Field: model.FieldPrice, Op: model.OpLte, Value: 1500}, plan.Filters[0])
	assert.Equal(t, model.Filter{Field: model.FieldRating, Op: model.OpGt, Value: 3.5}, plan.Filters[1])
	assert.False(t, plan.WantsWeb())
}

func TestParsePlanMissingSourceDefaultsToPrivate(t *testing.T) {
	content := `* Fields to Retrieve: title, price
* Constraints: None`

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	assert.Equal(t, model.SourcePrivate, plan.Source)
	assert.Empty(t, plan.Filters)

	errs, _ := plan.ParsingMetadata["parsing_errors"].([]string)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "data source missing")
}

func TestParsePlanEmptyMarkersProduceNoItems(t *testing.T) {
	content := `* Data Source: private
* Fields to Retrieve: none
* Constraints:
- N/A
* Comparison Criteria: not applicable`

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	assert.Empty(t, plan.Fields)
	assert.Empty(t, plan.Filters)
	assert.Empty(t, plan.Criteria)
	assert.Empty(t, plan.ParsingMetadata["parsing_errors"])
}

func TestParsePlanUnparseableConstraintRecorded(t *testing.T) {
	content := `* Data Source: private
* Constraints:
- only vegan products`

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	assert.Empty(t, plan.Filters)
	errs, _ := plan.ParsingMetadata["parsing_errors"].([]string)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "unparseable")
}

func TestParsePlanUnknownSourceValue(t *testing.T) {
	content := `* Data Source: public
* Fields to Retrieve: title`

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	assert.Equal(t, model.SourcePrivate, plan.Source)
	errs, _ := plan.ParsingMetadata["parsing_errors"].([]string)
	assert.NotEmpty(t, errs)
}

func TestParsePlanFilterCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("* Data Source: private\n* Constraints:\n")
	for i := 0; i < maxFilters+5; i++ {
		b.WriteString("- price < 30\n")
	}

	plan, err := ParsePlan(b.String())
	require.NoError(t, err)

	assert.Len(t, plan.Filters, maxFilters)
	assert.Equal(t, true, plan.ParsingMetadata["filters_capped"])
}

func TestParsePlanOversizedContentTruncated(t *testing.T) {
	content := "* Data Source: both\n" + strings.Repeat("x", maxContentLen+100)

	plan, err := ParsePlan(content)
	require.NoError(t, err)

	assert.Equal(t, model.SourceBoth, plan.Source)
	assert.Equal(t, true, plan.ParsingMetadata["truncated"])
}

func TestSafeSnippetKeepsRuneBoundary(t *testing.T) {
	// 3-byte runes; maxErrSnippet is not a multiple of 3, so a byte cut
	// would land mid-rune
	s := strings.Repeat("日", maxErrSnippet)
	out := safeSnippet(s)

	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), maxErrSnippet)
}

func TestFirstNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"price < 30", 30, true},
		{"price <= 1,500 usd", 1500, true},
		{"rating >= 3.5", 3.5, true},
		{"no number here", 0, false},
		{"$lt 12.", 12, true},
	}
	for _, tc := range tests {
		got, ok := firstNumber(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}
