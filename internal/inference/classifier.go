// Package inference wraps the text classifiers used by the risk radar:
// zero-shot category ranking and binary sentiment.
package inference

import (
	"context"
	"math"
	"sort"
	"strings"

	"market-radar/internal/domain"
)

const (
	TaskCategory  = "zero-shot-classification"
	TaskSentiment = "sentiment-analysis"
)

// Classifier ranks text against candidate labels and scores its sentiment.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Name() string
	ClassifyCategory(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error)
	ClassifySentiment(ctx context.Context, text string) (domain.SentimentScore, error)
}

// rankScores sorts by descending score, keeping input order on ties.
func rankScores(scores []domain.LabelScore) []domain.LabelScore {
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func trimCodeFence(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "```") {
		v = strings.TrimPrefix(v, "```")
		v = strings.TrimSpace(v)
		if strings.HasPrefix(strings.ToLower(v), "json") {
			v = strings.TrimSpace(v[4:])
		}
		v = strings.TrimSuffix(v, "```")
		v = strings.TrimSpace(v)
	}
	return v
}

func inferenceErr(task string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.InferenceError{Task: task, Err: err}
}
