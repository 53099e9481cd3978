package inference

import (
	"context"
	"strings"
	"sync"

	"market-radar/internal/domain"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	BackendHuggingFace = "huggingface"
	BackendOpenAI      = "openai"
	BackendHeuristic   = "heuristic"
)

type Config struct {
	Backend        string
	HFToken        string
	CategoryModel  string
	SentimentModel string
	OpenAIKey      string
	OpenAIModel    string
}

// New builds the configured classifier. An empty backend picks the first one
// with credentials; a backend without credentials degrades to the heuristic.
func New(cfg Config, tracer trace.Tracer, log zerolog.Logger) Classifier {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		switch {
		case cfg.HFToken != "":
			backend = BackendHuggingFace
		case cfg.OpenAIKey != "":
			backend = BackendOpenAI
		default:
			backend = BackendHeuristic
		}
	}

	switch backend {
	case BackendHuggingFace:
		if cfg.HFToken != "" {
			return NewHuggingFaceClassifier(cfg.HFToken, cfg.CategoryModel, cfg.SentimentModel, tracer)
		}
		log.Warn().Msg("HF_API_TOKEN not set, falling back to heuristic classifier")
	case BackendOpenAI:
		if c := NewOpenAIClassifier(cfg.OpenAIKey, cfg.OpenAIModel, tracer); c != nil {
			return c
		}
		log.Warn().Msg("OPENAI_API_KEY not set, falling back to heuristic classifier")
	case BackendHeuristic:
	default:
		log.Warn().Str("backend", backend).Msg("unknown inference backend, using heuristic classifier")
	}
	return NewHeuristicClassifier()
}

// Lazy defers building the underlying classifier until the first call and
// then shares it between all callers.
type Lazy struct {
	once  sync.Once
	build func() Classifier
	inner Classifier
}

func NewLazy(build func() Classifier) *Lazy {
	return &Lazy{build: build}
}

func (l *Lazy) get() Classifier {
	l.once.Do(func() {
		l.inner = l.build()
		if l.inner == nil {
			l.inner = NewHeuristicClassifier()
		}
	})
	return l.inner
}

func (l *Lazy) Name() string { return l.get().Name() }

func (l *Lazy) ClassifyCategory(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	return l.get().ClassifyCategory(ctx, text, labels)
}

func (l *Lazy) ClassifySentiment(ctx context.Context, text string) (domain.SentimentScore, error) {
	return l.get().ClassifySentiment(ctx, text)
}

var shared struct {
	once sync.Once
	lazy *Lazy
}

// Shared returns the process-wide classifier. Only the first call's
// arguments are used.
func Shared(cfg Config, tracer trace.Tracer, log zerolog.Logger) *Lazy {
	shared.once.Do(func() {
		shared.lazy = NewLazy(func() Classifier {
			c := New(cfg, tracer, log)
			log.Info().Str("classifier", c.Name()).Msg("inference classifier ready")
			return c
		})
	})
	return shared.lazy
}
