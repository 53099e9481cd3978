package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"market-radar/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/trace"
)

type openAIChatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// OpenAIClassifier asks a chat model for JSON classifications.
type OpenAIClassifier struct {
	client openAIChatClient
	model  string
	tracer trace.Tracer
}

// NewOpenAIClassifier returns nil when apiKey is empty.
func NewOpenAIClassifier(apiKey, model string, tracer trace.Tracer) *OpenAIClassifier {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClassifier{
		client: &openAIClient{client: client},
		model:  model,
		tracer: tracer,
	}
}

func (o *OpenAIClassifier) Name() string { return "llm:" + o.model }

func (o *OpenAIClassifier) ClassifyCategory(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	ctx, span := o.tracer.Start(ctx, "openai.zero-shot")
	defer span.End()

	if len(labels) == 0 {
		return nil, inferenceErr(TaskCategory, errors.New("no candidate labels"))
	}

	systemPrompt := "You classify financial news into categories. Return ONLY a JSON array of objects with fields label (one of the given categories, verbatim) and score (0..1). Include every category exactly once. Scores sum to 1. No markdown."
	userPrompt := "Categories:\n- " + strings.Join(labels, "\n- ") + "\n\nText:\n" + strings.TrimSpace(text)

	raw, err := o.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		span.RecordError(err)
		return nil, inferenceErr(TaskCategory, err)
	}

	var parsed []domain.LabelScore
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, inferenceErr(TaskCategory, fmt.Errorf("parse classifier json: %w", err))
	}

	allowed := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		allowed[l] = struct{}{}
	}
	out := make([]domain.LabelScore, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, row := range parsed {
		label := strings.TrimSpace(row.Label)
		if _, ok := allowed[label]; !ok {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, domain.LabelScore{Label: label, Score: clamp(row.Score, 0, 1)})
	}
	if len(out) == 0 {
		return nil, inferenceErr(TaskCategory, errors.New("no known labels in completion"))
	}
	return rankScores(out), nil
}

func (o *OpenAIClassifier) ClassifySentiment(ctx context.Context, text string) (domain.SentimentScore, error) {
	ctx, span := o.tracer.Start(ctx, "openai.sentiment")
	defer span.End()

	systemPrompt := "You score the sentiment of financial news text. Return ONLY a JSON object with fields label (positive|negative) and score (confidence 0..1). No markdown."

	raw, err := o.complete(ctx, systemPrompt, strings.TrimSpace(text))
	if err != nil {
		span.RecordError(err)
		return domain.SentimentScore{}, inferenceErr(TaskSentiment, err)
	}

	var parsed domain.LabelScore
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.SentimentScore{}, inferenceErr(TaskSentiment, fmt.Errorf("parse sentiment json: %w", err))
	}
	return domain.SentimentScore{Label: domain.ParseSentiment(parsed.Label), Score: clamp(parsed.Score, 0, 1)}, nil
}

func (o *OpenAIClassifier) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	completion, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty classifier completion")
	}
	return trimCodeFence(completion.Choices[0].Message.Content), nil
}

type openAIClient struct {
	client openai.Client
}

func (c *openAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
