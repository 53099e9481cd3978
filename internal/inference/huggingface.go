package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"market-radar/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	huggingFaceBaseURL = "https://router.huggingface.co/hf-inference/models"

	DefaultCategoryModel  = "facebook/bart-large-mnli"
	DefaultSentimentModel = "distilbert/distilbert-base-uncased-finetuned-sst-2-english"
)

// HuggingFaceClassifier calls the hosted inference API for both tasks.
type HuggingFaceClassifier struct {
	client         *http.Client
	baseURL        string
	token          string
	categoryModel  string
	sentimentModel string
	tracer         trace.Tracer
	limiter        *rate.Limiter
}

func NewHuggingFaceClassifier(token, categoryModel, sentimentModel string, tracer trace.Tracer) *HuggingFaceClassifier {
	if strings.TrimSpace(categoryModel) == "" {
		categoryModel = DefaultCategoryModel
	}
	if strings.TrimSpace(sentimentModel) == "" {
		sentimentModel = DefaultSentimentModel
	}
	return &HuggingFaceClassifier{
		client:         &http.Client{Timeout: 30 * time.Second},
		baseURL:        huggingFaceBaseURL,
		token:          strings.TrimSpace(token),
		categoryModel:  categoryModel,
		sentimentModel: sentimentModel,
		tracer:         tracer,
		limiter:        rate.NewLimiter(rate.Limit(10), 10),
	}
}

func (h *HuggingFaceClassifier) Name() string { return "huggingface:" + h.categoryModel }

func (h *HuggingFaceClassifier) ClassifyCategory(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	ctx, span := h.tracer.Start(ctx, "huggingface.zero-shot")
	defer span.End()
	span.SetAttributes(attribute.String("model", h.categoryModel), attribute.Int("labels", len(labels)))

	if len(labels) == 0 {
		return nil, inferenceErr(TaskCategory, errors.New("no candidate labels"))
	}

	body, err := h.post(ctx, h.categoryModel, map[string]any{
		"inputs":     text,
		"parameters": map[string]any{"candidate_labels": labels},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, inferenceErr(TaskCategory, err)
	}

	scores, err := parseZeroShot(body)
	if err != nil {
		span.RecordError(err)
		return nil, inferenceErr(TaskCategory, err)
	}
	return rankScores(scores), nil
}

func (h *HuggingFaceClassifier) ClassifySentiment(ctx context.Context, text string) (domain.SentimentScore, error) {
	ctx, span := h.tracer.Start(ctx, "huggingface.sentiment")
	defer span.End()
	span.SetAttributes(attribute.String("model", h.sentimentModel))

	body, err := h.post(ctx, h.sentimentModel, map[string]any{"inputs": text})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.SentimentScore{}, inferenceErr(TaskSentiment, err)
	}

	scores, err := parseLabelList(body)
	if err != nil {
		span.RecordError(err)
		return domain.SentimentScore{}, inferenceErr(TaskSentiment, err)
	}
	top := rankScores(scores)[0]
	return domain.SentimentScore{Label: domain.ParseSentiment(top.Label), Score: top.Score}, nil
}

func (h *HuggingFaceClassifier) post(ctx context.Context, model string, payload any) ([]byte, error) {
	if h.token == "" {
		return nil, domain.ErrMissingCredentials
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+model, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// parseZeroShot accepts the legacy {labels, scores} object and the newer
// list of {label, score} pairs.
func parseZeroShot(body []byte) ([]domain.LabelScore, error) {
	var legacy struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(body, &legacy); err == nil && len(legacy.Labels) > 0 {
		if len(legacy.Labels) != len(legacy.Scores) {
			return nil, fmt.Errorf("zero-shot response has %d labels and %d scores", len(legacy.Labels), len(legacy.Scores))
		}
		out := make([]domain.LabelScore, len(legacy.Labels))
		for i := range legacy.Labels {
			out[i] = domain.LabelScore{Label: legacy.Labels[i], Score: legacy.Scores[i]}
		}
		return out, nil
	}
	return parseLabelList(body)
}

// parseLabelList accepts [{label, score}] or the batched [[{label, score}]].
func parseLabelList(body []byte) ([]domain.LabelScore, error) {
	var flat []domain.LabelScore
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 && flat[0].Label != "" {
		return flat, nil
	}
	var nested [][]domain.LabelScore
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}
	return nil, fmt.Errorf("unexpected classification payload: %.120s", string(body))
}
