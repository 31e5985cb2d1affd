// Package query prepares raw user queries for retrieval: deterministic
// normalization plus optional LLM-backed expansion into alternative phrasings
// and related terms.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Normalize canonicalizes a raw query: trims surrounding whitespace, lowers
// case, and collapses internal whitespace runs to single spaces. Cache keys
// and similarity comparisons operate on the normalized form.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// Expansion is the result of expanding a normalized query. The zero value is
// a valid "no expansion" result; retrieval proceeds on the original query
// alone.
type Expansion struct {
	Alternatives []string `json:"alternatives"`
	Terms        []string `json:"terms"`
	Category     string   `json:"category"`
}

// Variants returns the original query followed by the alternative phrasings,
// deduplicated after normalization.
func (e Expansion) Variants(normalized string) []string {
	variants := []string{normalized}
	seen := map[string]bool{normalized: true}
	for _, alt := range e.Alternatives {
		n := Normalize(alt)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		variants = append(variants, n)
	}
	return variants
}

// Chatter is the structured-output LLM call the expander depends on.
type Chatter interface {
	ChatJSON(ctx context.Context, prompt string, schema any) (string, error)
}

// Expander rewrites a query into alternative phrasings and related terms
// using the generation model. Expansion is best-effort: any upstream failure,
// timeout, or malformed output degrades to the zero Expansion and the query
// runs unexpanded.
type Expander struct {
	chatter         Chatter
	timeout         time.Duration
	maxAlternatives int
	maxTerms        int
	log             *slog.Logger
}

// NewExpander creates an Expander. Non-positive limits fall back to 2
// alternatives and 2 terms; a non-positive timeout falls back to 5 seconds.
func NewExpander(chatter Chatter, timeout time.Duration, maxAlternatives, maxTerms int, log *slog.Logger) *Expander {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxAlternatives <= 0 {
		maxAlternatives = 2
	}
	if maxTerms <= 0 {
		maxTerms = 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &Expander{
		chatter:         chatter,
		timeout:         timeout,
		maxAlternatives: maxAlternatives,
		maxTerms:        maxTerms,
		log:             log,
	}
}

// expansionSchema constrains the model output to the Expansion shape.
var expansionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"alternatives": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Alternative phrasings of the query",
		},
		"terms": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Related search terms",
		},
		"category": map[string]any{
			"type":        "string",
			"description": "Likely document category, empty if unsure",
		},
	},
	"required": []string{"alternatives", "terms", "category"},
}

// Expand rewrites the normalized query. Always returns a usable Expansion;
// the zero value signals that retrieval should proceed unexpanded.
func (e *Expander) Expand(ctx context.Context, normalized string) Expansion {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Rewrite this search query to improve retrieval.\n"+
			"Query: %q\n\n"+
			"Provide up to %d alternative phrasings, up to %d related search terms, "+
			"and the most likely document category (or empty string if unsure).",
		normalized, e.maxAlternatives, e.maxTerms)

	raw, err := e.chatter.ChatJSON(ctx, prompt, expansionSchema)
	if err != nil {
		e.log.Debug("query expansion unavailable", "error", err)
		return Expansion{}
	}

	var exp Expansion
	if err := json.Unmarshal([]byte(raw), &exp); err != nil {
		e.log.Debug("query expansion returned malformed output", "error", err)
		return Expansion{}
	}

	exp.Alternatives = cleanList(exp.Alternatives, e.maxAlternatives)
	exp.Terms = cleanList(exp.Terms, e.maxTerms)
	exp.Category = strings.TrimSpace(exp.Category)
	return exp
}

// cleanList trims entries, drops empties and duplicates, and caps the length.
func cleanList(in []string, max int) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
