// Package textutil provides the in-process tokenization the dedup,
// classification and search engines share: lower-cased word extraction,
// stopword filtering, frequency-ranked keywords and Jaccard set similarity.
package textutil

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "an": {}, "and": {},
	"any": {}, "are": {}, "as": {}, "at": {}, "be": {}, "because": {}, "been": {},
	"but": {}, "by": {}, "can": {}, "could": {}, "did": {}, "do": {}, "does": {},
	"for": {}, "from": {}, "had": {}, "has": {}, "have": {}, "he": {}, "her": {},
	"his": {}, "how": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "its": {}, "just": {}, "more": {}, "most": {}, "new": {}, "no": {},
	"not": {}, "of": {}, "on": {}, "one": {}, "or": {}, "other": {}, "our": {},
	"out": {}, "over": {}, "said": {}, "she": {}, "so": {}, "some": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "to": {}, "up": {}, "was": {}, "we": {},
	"were": {}, "what": {}, "when": {}, "which": {}, "who": {}, "will": {},
	"with": {}, "would": {}, "you": {}, "your": {},
}

// IsStopword reports whether a lower-cased word carries no topical signal.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Tokenize splits text into lower-cased alphanumeric words.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// WordSet returns the distinct lower-cased words of text.
func WordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Tokenize(text) {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard computes intersection-over-union of two word sets.
// Two empty sets are defined as identical (1.0).
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// JaccardWords is Jaccard over the word sets of two strings.
func JaccardWords(a, b string) float64 {
	return Jaccard(WordSet(a), WordSet(b))
}

type wordCount struct {
	word  string
	count int
	first int
}

// ExtractKeywords returns up to limit non-stopword terms of at least three
// characters, ordered by frequency, ties broken by first occurrence.
func ExtractKeywords(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	counts := make(map[string]*wordCount)
	var order []*wordCount
	for i, w := range Tokenize(text) {
		if len(w) < 3 || IsStopword(w) {
			continue
		}
		if wc, ok := counts[w]; ok {
			wc.count++
			continue
		}
		wc := &wordCount{word: w, count: 1, first: i}
		counts[w] = wc
		order = append(order, wc)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})

	if len(order) > limit {
		order = order[:limit]
	}
	keywords := make([]string, len(order))
	for i, wc := range order {
		keywords[i] = wc.word
	}
	return keywords
}

// KeywordSet is ExtractKeywords as a set, for overlap checks.
func KeywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		set[k] = struct{}{}
	}
	return set
}
