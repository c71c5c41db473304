package classify

import (
	"context"
	"sort"

	"github.com/dvujovic/news-pipeline/internal/textutil"
)

// categoryTerms drive the built-in classifier. Title hits count double.
var categoryTerms = map[string][]string{
	"politics": {
		"election", "senate", "congress", "parliament", "president",
		"minister", "government", "policy", "vote", "campaign", "legislation",
		"democrat", "republican", "diplomat", "sanctions",
	},
	"business": {
		"stock", "market", "revenue", "earnings", "profit", "shares",
		"investor", "merger", "acquisition", "startup", "economy", "inflation",
		"bank", "trade", "ipo",
	},
	"technology": {
		"software", "startup", "app", "computing", "chip", "cloud",
		"developer", "cybersecurity", "robot", "smartphone", "internet",
		"algorithm", "data", "artificial", "intelligence",
	},
	"science": {
		"research", "study", "scientist", "discovery", "physics", "biology",
		"space", "nasa", "telescope", "climate", "species", "experiment",
		"quantum", "genome",
	},
	"health": {
		"health", "hospital", "doctor", "vaccine", "disease", "virus",
		"patient", "treatment", "drug", "cancer", "mental", "outbreak",
		"medicine", "fda",
	},
	"sports": {
		"game", "season", "championship", "league", "coach", "player",
		"tournament", "olympics", "goal", "score", "team", "match",
		"playoff", "stadium",
	},
	"entertainment": {
		"film", "movie", "album", "celebrity", "actor", "actress",
		"music", "concert", "festival", "streaming", "oscar", "grammy",
		"premiere", "boxoffice",
	},
	"world": {
		"war", "conflict", "refugee", "border", "treaty", "summit",
		"nation", "international", "embassy", "crisis", "peacekeeping",
		"invasion", "ceasefire",
	},
}

const titleWeight = 2.0

// KeywordClassifier scores categories by weighted term hits. It is
// deterministic and never unavailable, the fallback when no model service
// is configured.
type KeywordClassifier struct{}

var _ Classifier = (*KeywordClassifier)(nil)

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(ctx context.Context, title, content string) (*Result, error) {
	titleSet := textutil.WordSet(title)
	contentSet := textutil.WordSet(content)

	scores := make(map[string]float64, len(categoryTerms))
	var total float64
	for category, terms := range categoryTerms {
		var score float64
		for _, term := range terms {
			if _, ok := titleSet[term]; ok {
				score += titleWeight
			}
			if _, ok := contentSet[term]; ok {
				score += 1.0
			}
		}
		scores[category] = score
		total += score
	}

	if total == 0 {
		return &Result{Category: "general", Confidence: 0, Scores: scores}, nil
	}

	best := pickBest(scores)
	return &Result{
		Category:   best,
		Confidence: scores[best] / total,
		Scores:     scores,
	}, nil
}

// pickBest breaks score ties alphabetically so runs are reproducible.
func pickBest(scores map[string]float64) string {
	categories := make([]string, 0, len(scores))
	for c := range scores {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	best := categories[0]
	for _, c := range categories[1:] {
		if scores[c] > scores[best] {
			best = c
		}
	}
	return best
}
