package inference

import (
	"context"
	"errors"
	"testing"

	"market-radar/internal/domain"

	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/trace"
)

type stubChatClient struct {
	content string
	err     error
	calls   int
}

func (s *stubChatClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func newTestOpenAI(stub *stubChatClient) *OpenAIClassifier {
	return &OpenAIClassifier{client: stub, model: "gpt-test", tracer: trace.NewNoopTracerProvider().Tracer("test")}
}

func TestNewOpenAIClassifierRequiresKey(t *testing.T) {
	if c := NewOpenAIClassifier("  ", "", trace.NewNoopTracerProvider().Tracer("test")); c != nil {
		t.Fatalf("expected nil classifier without key")
	}
}

func TestOpenAICategoryFiltersUnknownLabels(t *testing.T) {
	stub := &stubChatClient{content: "```json\n[{\"label\":\"B\",\"score\":0.6},{\"label\":\"Z\",\"score\":0.9},{\"label\":\"A\",\"score\":0.3},{\"label\":\"B\",\"score\":0.1}]\n```"}
	c := newTestOpenAI(stub)

	scores, err := c.ClassifyCategory(context.Background(), "text", []string{"A", "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 2 || scores[0].Label != "B" || scores[1].Label != "A" {
		t.Fatalf("unexpected scores: %+v", scores)
	}
	if c.Name() != "llm:gpt-test" {
		t.Fatalf("unexpected name %s", c.Name())
	}
}

func TestOpenAISentiment(t *testing.T) {
	c := newTestOpenAI(&stubChatClient{content: `{"label":"negative","score":0.83}`})

	got, err := c.ClassifySentiment(context.Background(), "shares tumble")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Label != domain.SentimentNegative || got.Score != 0.83 {
		t.Fatalf("unexpected sentiment: %+v", got)
	}
}

func TestOpenAIErrorsAreInferenceErrors(t *testing.T) {
	c := newTestOpenAI(&stubChatClient{err: errors.New("boom")})
	_, err := c.ClassifySentiment(context.Background(), "x")
	var ie *domain.InferenceError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InferenceError, got %v", err)
	}

	c = newTestOpenAI(&stubChatClient{content: "not json"})
	if _, err := c.ClassifyCategory(context.Background(), "x", []string{"A"}); !errors.As(err, &ie) {
		t.Fatalf("expected InferenceError on bad json, got %v", err)
	}
}
