package inference

import (
	"context"
	"errors"
	"strings"

	"market-radar/internal/domain"
)

// categoryKeywords backs the offline classifier for the default risk labels.
var categoryKeywords = map[string][]string{
	"Mergers & Acquisitions":       {"merger", "acquisition", "acquire", "buyout", "takeover", "deal to buy", "stake"},
	"Earnings Guidance":            {"earnings", "guidance", "revenue", "profit", "quarter", "forecast", "eps", "outlook"},
	"New Product Launch":           {"launch", "unveil", "introduce", "release", "new product", "debut", "rollout"},
	"Analyst Rating Change":        {"upgrade", "downgrade", "price target", "analyst", "rating", "overweight", "underweight"},
	"Legal & Regulatory Issues":    {"lawsuit", "regulator", "sec ", "probe", "investigation", "antitrust", "fine", "court", "settlement"},
	"Executive Leadership Changes": {"ceo", "cfo", "resign", "appoint", "steps down", "executive", "chairman", "board"},
	"Market Trends & Competition":  {"market share", "competition", "rival", "competitor", "industry", "demand", "trend"},
}

var (
	bullishWords = []string{"beat", "surge", "rally", "gain", "growth", "record", "upgrade", "strong", "soar", "rise", "profit", "buy", "outperform", "jump"}
	bearishWords = []string{"miss", "plunge", "drop", "fall", "loss", "downgrade", "weak", "lawsuit", "probe", "decline", "cut", "sell", "slump", "recall", "fine"}
)

// HeuristicClassifier scores text by keyword matches. It needs no network
// access and is the fallback when no inference credentials are configured.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier { return &HeuristicClassifier{} }

func (h *HeuristicClassifier) Name() string { return "heuristic:v1" }

func (h *HeuristicClassifier) ClassifyCategory(_ context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	if len(labels) == 0 {
		return nil, inferenceErr(TaskCategory, errors.New("no candidate labels"))
	}
	text = strings.ToLower(strings.TrimSpace(text))

	counts := make([]int, len(labels))
	total := 0
	for i, label := range labels {
		keywords, ok := categoryKeywords[label]
		if !ok {
			keywords = strings.Fields(strings.ToLower(label))
		}
		counts[i] = countMatches(text, keywords)
		total += counts[i]
	}

	// Add-one smoothing keeps the distribution defined for unmatched text.
	denom := float64(total + len(labels))
	out := make([]domain.LabelScore, len(labels))
	for i, label := range labels {
		out[i] = domain.LabelScore{Label: label, Score: float64(counts[i]+1) / denom}
	}
	return rankScores(out), nil
}

func (h *HeuristicClassifier) ClassifySentiment(_ context.Context, text string) (domain.SentimentScore, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return domain.SentimentScore{Label: domain.SentimentNeutral, Score: 0.25}, nil
	}

	bull := countMatches(text, bullishWords)
	bear := countMatches(text, bearishWords)
	raw := float64(bull-bear) / float64(bull+bear+1)
	confidence := clamp(0.5+0.1*float64(absInt(bull-bear)), 0.5, 0.9)

	switch {
	case raw > 0.2:
		return domain.SentimentScore{Label: domain.SentimentPositive, Score: confidence}, nil
	case raw < -0.2:
		return domain.SentimentScore{Label: domain.SentimentNegative, Score: confidence}, nil
	default:
		return domain.SentimentScore{Label: domain.SentimentNeutral, Score: 0.5}, nil
	}
}

func countMatches(text string, tokens []string) int {
	count := 0
	for _, token := range tokens {
		if strings.Contains(text, token) {
			count++
		}
	}
	return count
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
