package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// stopwords excluded from key-term extraction.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "will": {}, "with": {},
}

const keyTermCount = 3

// Analyze derives a short textual summary of indexed content for the rich
// store. It is a cheap heuristic, not a model call: character and word
// counts plus the most frequent non-trivial terms.
func Analyze(content string) string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return ""
	}

	terms := topTerms(words, keyTermCount)
	if len(terms) == 0 {
		return fmt.Sprintf("Content contains %d characters across %d words.",
			len(content), len(words))
	}
	return fmt.Sprintf("Content contains %d characters across %d words. Key terms: %s.",
		len(content), len(words), strings.Join(terms, ", "))
}

// topTerms returns up to n most frequent normalized terms, ties broken by
// first occurrence so the output is deterministic.
func topTerms(words []string, n int) []string {
	type termStat struct {
		term  string
		count int
		first int
	}
	stats := make(map[string]*termStat)
	order := make([]*termStat, 0, len(words))

	for i, w := range words {
		term := normalizeTerm(w)
		if len(term) < 3 {
			continue
		}
		if _, skip := stopwords[term]; skip {
			continue
		}
		st, ok := stats[term]
		if !ok {
			st = &termStat{term: term, first: i}
			stats[term] = st
			order = append(order, st)
		}
		st.count++
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})

	if len(order) > n {
		order = order[:n]
	}
	terms := make([]string, len(order))
	for i, st := range order {
		terms[i] = st.term
	}
	return terms
}

func normalizeTerm(w string) string {
	return strings.TrimFunc(strings.ToLower(w), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
