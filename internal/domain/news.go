package domain

import (
	"slices"
	"strings"
	"time"
)

// NewsArticle is a single article returned by the news provider. Content and
// Description are optional.
type NewsArticle struct {
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
}

type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

// ParseSentiment normalises classifier labels. Anything unrecognised is neutral.
func ParseSentiment(label string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive", "pos", "bullish", "bull", "label_1":
		return SentimentPositive
	case "negative", "neg", "bearish", "bear", "label_0":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// LabelScore is one entry of a ranked zero-shot classification.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// SentimentScore is a sentiment label with the classifier's confidence.
type SentimentScore struct {
	Label Sentiment `json:"label"`
	Score float64   `json:"score"`
}

// ClassificationOutcome is the per-article result of the classification stage.
type ClassificationOutcome struct {
	Category            string    `json:"category"`
	CategoryConfidence  float64   `json:"category_confidence"`
	Sentiment           Sentiment `json:"sentiment"`
	SentimentConfidence float64   `json:"sentiment_confidence"`
}

// ArticleRef is the lightweight article record kept in a category summary.
type ArticleRef struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	Sentiment   Sentiment `json:"sentiment"`
	Description string    `json:"description,omitempty"`
}

// RiskCategorySummary aggregates the articles that ranked a category first.
type RiskCategorySummary struct {
	Category string       `json:"category"`
	Total    int          `json:"total"`
	Positive int          `json:"positive"`
	Negative int          `json:"negative"`
	Neutral  int          `json:"neutral"`
	Articles []ArticleRef `json:"articles"`
}

// RiskRadar maps a category label to its summary. Only categories observed
// in the current assessment are present.
type RiskRadar map[string]RiskCategorySummary

// Ranked returns the summaries busiest first, ties broken by category name.
func (r RiskRadar) Ranked() []RiskCategorySummary {
	out := make([]RiskCategorySummary, 0, len(r))
	for _, summary := range r {
		out = append(out, summary)
	}
	slices.SortFunc(out, func(a, b RiskCategorySummary) int {
		if d := b.Total - a.Total; d != 0 {
			return d
		}
		return strings.Compare(a.Category, b.Category)
	})
	return out
}
