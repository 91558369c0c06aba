// Package reranker reorders retrieved chunks before answer synthesis.
//
// Vector similarity alone can rank chunks that are topically adjacent above
// chunks that actually mention the question's terms. The lexical reranker
// blends the store's similarity score with query term overlap so literal
// matches surface first.
package reranker

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/axond/internal/vectorstore"
)

// DefaultVectorWeight is the share of the combined score contributed by the
// store's similarity score. The remainder comes from term overlap.
const DefaultVectorWeight = 0.7

// Lexical reranks by blending vector similarity with query term overlap.
type Lexical struct {
	vectorWeight float32
}

// NewLexical creates a Lexical reranker. A vectorWeight outside (0, 1] falls
// back to DefaultVectorWeight.
func NewLexical(vectorWeight float32) *Lexical {
	if vectorWeight <= 0 || vectorWeight > 1 {
		vectorWeight = DefaultVectorWeight
	}
	return &Lexical{vectorWeight: vectorWeight}
}

// Rerank reorders results by combined score and returns at most topK of them.
// A topK of zero or less keeps all results. Input order breaks ties, so
// reranking is deterministic for a fixed candidate list.
//
// A query with no usable terms (all stopwords or punctuation) keeps the
// store's ranking.
func (l *Lexical) Rerank(ctx context.Context, query string, results []vectorstore.ScoredChunk, topK int) ([]vectorstore.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}
	if len(results) == 0 {
		return []vectorstore.ScoredChunk{}, nil
	}

	queryTerms := tokenize(query)

	ranked := make([]vectorstore.ScoredChunk, len(results))
	copy(ranked, results)

	if len(queryTerms) == 0 {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Score > ranked[j].Score
		})
		return ranked[:topK], nil
	}

	combined := make(map[string]float32, len(ranked))
	for _, sc := range ranked {
		overlap := termOverlap(queryTerms, tokenize(sc.Text))
		combined[sc.ID] = l.vectorWeight*sc.Score + (1-l.vectorWeight)*overlap
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return combined[ranked[i].ID] > combined[ranked[j].ID]
	})

	return ranked[:topK], nil
}

// tokenize lowercases text and splits it into terms, dropping stopwords and
// terms shorter than three runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// termOverlap returns the fraction of unique query terms present in the
// document terms, between 0 and 1.
func termOverlap(queryTerms, docTerms []string) float32 {
	if len(queryTerms) == 0 {
		return 0
	}

	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}

	matched := make(map[string]struct{})
	for _, t := range queryTerms {
		if _, ok := docSet[t]; ok {
			matched[t] = struct{}{}
		}
	}

	unique := make(map[string]struct{}, len(queryTerms))
	for _, t := range queryTerms {
		unique[t] = struct{}{}
	}

	return float32(len(matched)) / float32(len(unique))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "that": true, "this": true, "these": true, "those": true,
	"was": true, "are": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true,
	"can": true, "what": true, "which": true, "who": true, "when": true,
	"where": true, "why": true, "how": true, "about": true, "into": true,
	"not": true, "you": true, "your": true,
}
