// Package classify assigns a category, confidence score and keywords to
// articles. The capability interface admits a remote model service or the
// built-in keyword classifier.
package classify

import (
	"context"
)

// Categories the pipeline recognizes. Unclassifiable articles keep their
// prior category, "general" by default.
var Categories = []string{
	"politics", "business", "technology", "science", "health",
	"sports", "entertainment", "world", "general",
}

// Result is one classification outcome.
type Result struct {
	Category   string             `json:"category"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

// Classifier scores an article's text against the category set.
// Implementations return ClassifierUnavailableError when the capability
// itself fails, so callers can keep the article's prior category.
type Classifier interface {
	Classify(ctx context.Context, title, content string) (*Result, error)
}
