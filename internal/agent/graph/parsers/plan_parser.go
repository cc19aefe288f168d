package parsers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/prodscout/server/internal/agent/model"
	errx "github.com/prodscout/server/internal/core/error"
	logx "github.com/prodscout/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxLines      = 400       // maximum number of lines to process
	maxFilters    = 10        // maximum constraints kept per plan
	maxListItems  = 20        // fields / criteria list cap
	maxErrSnippet = 200       // limit error snippet size
)

// planner template section headers, matched case-insensitively on prefix
const (
	secSource      = "data source"
	secFields      = "fields to retrieve"
	secConstraints = "constraints"
	secCriteria    = "comparison criteria"
)

// ParsePlan converts the Planner stage's structured output into a typed
// RetrievalPlan. The parser is deliberately forgiving: a malformed plan
// degrades to a private-only, unfiltered plan instead of failing the
// pipeline, and every degradation is recorded in ParsingMetadata.
func ParsePlan(content string) (plan *model.RetrievalPlan, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "plan_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("plan parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			plan = nil
		}
	}()

	truncated := false
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "plan_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
		truncated = true
	}

	plan = &model.RetrievalPlan{
		Source:          model.SourcePrivate,
		Fields:          []string{},
		Filters:         []model.Filter{},
		Criteria:        []string{},
		ParsingMetadata: map[string]any{},
	}

	addErr := func(msg string) {
		v, _ := plan.ParsingMetadata["parsing_errors"].([]string)
		v = append(v, msg)
		plan.ParsingMetadata["parsing_errors"] = v
	}

	if truncated {
		plan.ParsingMetadata["truncated"] = true
	}

	lines := strings.Split(content, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		plan.ParsingMetadata["lines_capped"] = true
	}

	sourceSeen := false
	section := ""
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !utf8.ValidString(line) {
			addErr("invalid utf8 line")
			continue
		}

		if name, rest, ok := splitSectionHeader(line); ok {
			section = name
			switch name {
			case secSource:
				if rest != "" {
					sourceSeen = parseSource(plan, rest, addErr)
				}
			case secFields:
				appendList(&plan.Fields, rest)
			case secConstraints:
				if f, ok := parseConstraint(rest); ok {
					appendFilter(plan, f, addErr)
				}
			case secCriteria:
				appendList(&plan.Criteria, rest)
			}
			continue
		}

		// continuation lines ("- ..." bullets under the active section)
		item := strings.TrimSpace(strings.TrimPrefix(line, "-"))
		switch section {
		case secSource:
			if !sourceSeen {
				sourceSeen = parseSource(plan, item, addErr)
			}
		case secFields:
			appendList(&plan.Fields, item)
		case secConstraints:
			if f, ok := parseConstraint(item); ok {
				appendFilter(plan, f, addErr)
			} else if !isEmptyMarker(item) {
				addErr("constraint: unparseable: " + safeSnippet(item))
			}
		case secCriteria:
			appendList(&plan.Criteria, item)
		}
	}

	if !sourceSeen {
		addErr("data source missing; defaulting to private")
	}

	return plan, nil
}

// splitSectionHeader recognizes "* Data Source (private / both): both"-style
// headers and returns the canonical section name plus any inline value.
func splitSectionHeader(line string) (name, rest string, ok bool) {
	s := strings.TrimSpace(strings.TrimLeft(line, "*#• \t"))
	lower := strings.ToLower(s)

	for _, sec := range []string{secSource, secFields, secConstraints, secCriteria} {
		if !strings.HasPrefix(lower, sec) {
			continue
		}
		rest = s[len(sec):]
		// drop a parenthetical hint such as "(private / both)"
		if i := strings.Index(rest, ")"); i >= 0 && strings.Contains(rest[:i], "(") {
			rest = rest[i+1:]
		}
		rest = strings.TrimSpace(strings.TrimLeft(rest, ":"))
		return sec, strings.TrimSpace(rest), true
	}
	return "", "", false
}

func parseSource(plan *model.RetrievalPlan, v string, addErr func(string)) bool {
	v = strings.ToLower(strings.Trim(v, " .`'\""))
	switch {
	case strings.Contains(v, "both"):
		plan.Source = model.SourceBoth
		return true
	case strings.Contains(v, "private"):
		plan.Source = model.SourcePrivate
		return true
	case v == "":
		return false
	default:
		addErr("data source: unknown value: " + safeSnippet(v))
		return false
	}
}

func appendList(dst *[]string, v string) {
	if isEmptyMarker(v) {
		return
	}
	for _, part := range strings.Split(v, ",") {
		item := strings.ToLower(strings.Trim(part, " .`'\""))
		if item == "" || len(*dst) >= maxListItems {
			continue
		}
		*dst = append(*dst, item)
	}
}

func appendFilter(plan *model.RetrievalPlan, f model.Filter, addErr func(string)) {
	if len(plan.Filters) >= maxFilters {
		plan.ParsingMetadata["filters_capped"] = true
		return
	}
	if !model.ValidFilter(f) {
		addErr(fmt.Sprintf("constraint: rejected %s %s", f.Field, f.Op))
		return
	}
	plan.Filters = append(plan.Filters, f)
}

// parseConstraint accepts both the documented JSON-ish form
// ("price": {"$lt": 30}) and loose comparison text (price < 30, rating >= 3.5).
func parseConstraint(v string) (model.Filter, bool) {
	if isEmptyMarker(v) {
		return model.Filter{}, false
	}
	lower := strings.ToLower(v)

	var field string
	switch {
	case strings.Contains(lower, model.FieldPrice):
		field = model.FieldPrice
	case strings.Contains(lower, model.FieldRating):
		field = model.FieldRating
	default:
		return model.Filter{}, false
	}

	op := ""
	for _, cand := range []string{model.OpLte, model.OpGte, model.OpLt, model.OpGt, model.OpEq} {
		if strings.Contains(lower, cand) {
			op = cand
			break
		}
	}
	if op == "" {
		// symbolic forms; check two-char ops before their one-char prefixes
		switch {
		case strings.Contains(lower, "<="):
			op = model.OpLte
		case strings.Contains(lower, ">="):
			op = model.OpGte
		case strings.Contains(lower, "<"):
			op = model.OpLt
		case strings.Contains(lower, ">"):
			op = model.OpGt
		case strings.Contains(lower, "="):
			op = model.OpEq
		}
	}
	if op == "" {
		return model.Filter{}, false
	}

	val, ok := firstNumber(lower)
	if !ok {
		return model.Filter{}, false
	}
	return model.Filter{Field: field, Op: op, Value: val}, true
}

// firstNumber extracts the first numeric literal in the line. Thousands
// separators are stripped so "1,500" reads as one number.
func firstNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if v, err := strconv.ParseFloat(strings.Trim(s[start:i], "."), 64); err == nil {
				return v, true
			}
			start = -1
		}
	}
	return 0, false
}

func isEmptyMarker(v string) bool {
	v = strings.ToLower(strings.Trim(v, " .`'\""))
	switch v {
	case "", "none", "n/a", "na", "-", "no constraints", "not applicable":
		return true
	}
	return false
}

// --- helpers ---

// safeSnippet caps s for error messages without splitting a UTF-8 rune.
func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	n := maxErrSnippet
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
