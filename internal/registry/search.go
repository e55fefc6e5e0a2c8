package registry

// search.go - instrument search with the relevance scoring scheme
// grounded on original_source's instrument_subscription_service.py
// search_instruments: exact symbol match scores highest, then prefix,
// then substring, with smaller bonuses for matching on the underlying
// name rather than the trading symbol.

import (
	"strings"

	"dhancore/internal/models"
)

// Relevance score weights, taken directly from the original's
// search_instruments ranking (exact=100, prefix=50, substring=30,
// name-prefix=40, name-substring=20, short-symbol bonus=10).
const (
	scoreExactSymbol   = 100
	scoreNamePrefix    = 40
	scoreSymbolPrefix  = 50
	scoreNameSubstring = 20
	scoreSubstring     = 30
	scoreShortSymbol   = 10
)

// SearchResult pairs an instrument with its computed relevance score.
type SearchResult struct {
	Instrument *models.Instrument
	Score      int
}

// Search ranks every registry instrument against query (case-insensitive)
// and returns matches in descending score order, trimmed to limit (0 means
// unlimited). Non-matching instruments are omitted entirely.
func (r *Registry) Search(query string, limit int) []SearchResult {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	snap := r.snapshot.Load()
	results := make([]SearchResult, 0, 32)

	for _, inst := range snap.all {
		symbol := strings.ToUpper(inst.Symbol)
		name := strings.ToUpper(inst.Underlying)

		score := 0
		switch {
		case symbol == q:
			score = scoreExactSymbol
		case strings.HasPrefix(symbol, q):
			score = scoreSymbolPrefix
		case strings.Contains(symbol, q):
			score = scoreSubstring
		case strings.HasPrefix(name, q):
			score = scoreNamePrefix
		case strings.Contains(name, q):
			score = scoreNameSubstring
		}
		if score == 0 {
			continue
		}
		if len(symbol) <= len(q)+2 {
			score += scoreShortSymbol
		}

		results = append(results, SearchResult{Instrument: inst, Score: score})
	}

	sortResultsByScoreDesc(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sortResultsByScoreDesc(results []SearchResult) {
	// Small, stable insertion sort: result sets are a handful of matches,
	// not a hot path — no need to reach for sort.Slice's extra allocation.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
