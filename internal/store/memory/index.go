package memory

import (
	"math"
	"strings"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/internal/textutil"
	"github.com/google/uuid"
)

// BM25 parameters, standard values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75

	// phraseBoost multiplies the score of documents containing the exact
	// phrase of a short query.
	phraseBoost = 1.5
)

// indexedField weights searchable fields: title > author > description >
// content > category.
type indexedField struct {
	weight  float64
	extract func(a *domain.Article) string
}

var indexedFields = []indexedField{
	{3.0, func(a *domain.Article) string { return a.Title }},
	{2.0, func(a *domain.Article) string { return a.Author }},
	{1.5, func(a *domain.Article) string { return a.Description }},
	{1.0, func(a *domain.Article) string { return a.Content }},
	{0.5, func(a *domain.Article) string { return a.Category }},
}

type docEntry struct {
	tf     map[string]float64 // field-weighted term frequency
	length float64            // field-weighted token count
	text   string             // lower-cased concatenation for phrase checks
}

// invertedIndex is a small in-process index with BM25 ranking, the in-memory
// counterpart of the Postgres tsvector column.
type invertedIndex struct {
	docs     map[uuid.UUID]*docEntry
	df       map[string]int
	totalLen float64
}

func newInvertedIndex() *invertedIndex {
	return &invertedIndex{
		docs: make(map[uuid.UUID]*docEntry),
		df:   make(map[string]int),
	}
}

func (ix *invertedIndex) add(a *domain.Article) {
	ix.remove(a.ID)

	entry := &docEntry{tf: make(map[string]float64)}
	var text strings.Builder
	for _, f := range indexedFields {
		raw := f.extract(a)
		if raw == "" {
			continue
		}
		text.WriteString(strings.ToLower(raw))
		text.WriteByte(' ')
		for _, tok := range textutil.Tokenize(raw) {
			entry.tf[tok] += f.weight
			entry.length += f.weight
		}
	}
	entry.text = text.String()

	for term := range entry.tf {
		ix.df[term]++
	}
	ix.totalLen += entry.length
	ix.docs[a.ID] = entry
}

func (ix *invertedIndex) remove(id uuid.UUID) {
	entry, ok := ix.docs[id]
	if !ok {
		return
	}
	for term := range entry.tf {
		ix.df[term]--
		if ix.df[term] <= 0 {
			delete(ix.df, term)
		}
	}
	ix.totalLen -= entry.length
	delete(ix.docs, id)
}

// score ranks a document against a query. The bool result reports whether
// the document matches at all under the query operator.
func (ix *invertedIndex) score(id uuid.UUID, q store.TextQuery) (float64, bool) {
	entry, ok := ix.docs[id]
	if !ok {
		return 0, false
	}

	n := float64(len(ix.docs))
	avgLen := 1.0
	if n > 0 {
		avgLen = ix.totalLen / n
	}

	var score float64
	matched := 0
	for _, term := range q.Terms {
		tf := entry.tf[term]
		if tf <= 0 {
			continue
		}
		matched++
		df := float64(ix.df[term])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*entry.length/avgLen))
		score += idf * norm
	}

	phraseHit := q.Phrase != "" && strings.Contains(entry.text, strings.ToLower(q.Phrase))
	if phraseHit {
		score = score*phraseBoost + 1.0
	}

	switch q.Operator {
	case store.OperatorAnd:
		return score, len(q.Terms) > 0 && matched == len(q.Terms)
	default:
		return score, matched > 0 || phraseHit
	}
}

// rebuild recomputes corpus statistics from scratch; used by compaction.
func (ix *invertedIndex) rebuild(articles map[uuid.UUID]*domain.Article) {
	ix.docs = make(map[uuid.UUID]*docEntry, len(articles))
	ix.df = make(map[string]int)
	ix.totalLen = 0
	for _, a := range articles {
		ix.add(a)
	}
}
