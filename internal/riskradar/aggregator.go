// Package riskradar turns recent company news into a per-category risk
// summary: fetch, classify every article concurrently, fuse title and body
// sentiment, fold by top category.
package riskradar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market-radar/internal/domain"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const removedTitle = "[Removed]"

type OverviewLookup interface {
	FetchCompanyDisplayName(ctx context.Context, symbol string) (string, error)
}

type NewsFetcher interface {
	// CheckCredentials reports domain.ErrMissingCredentials when the fetcher
	// cannot authenticate.
	CheckCredentials() error
	FetchRecentNews(ctx context.Context, query string, since time.Time) ([]domain.NewsArticle, error)
}

type Classifier interface {
	ClassifyCategory(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error)
	ClassifySentiment(ctx context.Context, text string) (domain.SentimentScore, error)
}

// Recorder receives per-article outcomes ("classified", "failed").
type Recorder interface {
	ObserveArticle(outcome string)
}

type Aggregator struct {
	tracer     trace.Tracer
	log        zerolog.Logger
	overview   OverviewLookup
	news       NewsFetcher
	classifier Classifier
	language   LanguageFilter
	recorder   Recorder
	cfg        Config
	now        func() time.Time
}

func NewAggregator(
	tracer trace.Tracer,
	log zerolog.Logger,
	overview OverviewLookup,
	news NewsFetcher,
	classifier Classifier,
	recorder Recorder,
	cfg Config,
) *Aggregator {
	return &Aggregator{
		tracer:     tracer,
		log:        log.With().Str("component", "riskradar").Logger(),
		overview:   overview,
		news:       news,
		classifier: classifier,
		language:   EnglishFilter{},
		recorder:   recorder,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// Assess builds the risk radar for subject. Zero qualifying articles yield an
// empty radar and a nil error; failed articles are logged and left out.
func (a *Aggregator) Assess(ctx context.Context, subject string) (domain.RiskRadar, error) {
	ctx, span := a.tracer.Start(ctx, "riskradar.assess")
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject))

	if a.news == nil || a.classifier == nil {
		return nil, fmt.Errorf("risk radar dependencies are not initialized")
	}
	if err := a.news.CheckCredentials(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewUpstreamError("news", "check-credentials", 0, err)
	}

	name := a.displayName(ctx, subject)
	query := subject
	if name != subject {
		query = fmt.Sprintf("%q OR %s", name, subject)
	}

	fetched, err := a.news.FetchRecentNews(ctx, query, a.now().Add(-a.cfg.Lookback))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewUpstreamError("news", "fetch-news", 0, err)
	}

	articles := a.qualify(fetched)
	span.SetAttributes(attribute.Int("articles.fetched", len(fetched)), attribute.Int("articles.kept", len(articles)))
	if len(articles) == 0 {
		return domain.RiskRadar{}, nil
	}

	outcomes := a.classifyAll(ctx, articles)
	return Fold(articles, outcomes), nil
}

func (a *Aggregator) displayName(ctx context.Context, subject string) string {
	if a.overview == nil {
		return subject
	}
	name, err := a.overview.FetchCompanyDisplayName(ctx, subject)
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", subject).Msg("company name lookup failed, using symbol")
		return subject
	}
	if name = strings.TrimSpace(name); name == "" {
		return subject
	}
	return name
}

func (a *Aggregator) qualify(fetched []domain.NewsArticle) []domain.NewsArticle {
	out := make([]domain.NewsArticle, 0, min(len(fetched), a.cfg.MaxArticles))
	for _, article := range fetched {
		if len(out) >= a.cfg.MaxArticles {
			break
		}
		title := strings.TrimSpace(article.Title)
		if title == "" || title == removedTitle {
			continue
		}
		if a.language != nil && !a.language.Keep(title) {
			a.log.Debug().Str("title", title).Str("url", article.URL).Msg("dropping non-English article")
			continue
		}
		article.Title = title
		out = append(out, article)
	}
	return out
}

// classifyAll settles every article pipeline before returning. A failed
// article leaves a nil slot.
func (a *Aggregator) classifyAll(ctx context.Context, articles []domain.NewsArticle) []*domain.ClassificationOutcome {
	outcomes := make([]*domain.ClassificationOutcome, len(articles))

	var g errgroup.Group
	if a.cfg.MaxConcurrency > 0 {
		g.SetLimit(a.cfg.MaxConcurrency)
	}
	for i, article := range articles {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, a.cfg.ArticleTimeout)
			defer cancel()

			outcome, err := a.classifyArticle(actx, article)
			if err != nil {
				a.log.Warn().Err(err).Str("title", article.Title).Str("url", article.URL).Msg("article classification failed")
				a.observe("failed")
				return nil
			}
			outcomes[i] = &outcome
			a.observe("classified")
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (a *Aggregator) classifyArticle(ctx context.Context, article domain.NewsArticle) (domain.ClassificationOutcome, error) {
	ctx, span := a.tracer.Start(ctx, "riskradar.classify-article")
	defer span.End()

	body := strings.TrimSpace(article.Content)
	if body == "" {
		body = strings.TrimSpace(article.Description)
	}
	categoryText := article.Title
	if body != "" {
		categoryText += ". " + body
	}

	var (
		categories []domain.LabelScore
		title      domain.SentimentScore
		content    = domain.SentimentScore{Label: domain.SentimentNeutral, Score: 1.0}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = a.classifier.ClassifyCategory(gctx, categoryText, a.cfg.Categories)
		return err
	})
	g.Go(func() error {
		var err error
		title, err = a.classifier.ClassifySentiment(gctx, article.Title)
		return err
	})
	if text := truncateRunes(strings.TrimSpace(article.Content), a.cfg.ContentRunes); text != "" {
		g.Go(func() error {
			var err error
			content, err = a.classifier.ClassifySentiment(gctx, text)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ClassificationOutcome{}, err
	}
	if len(categories) == 0 {
		return domain.ClassificationOutcome{}, &domain.InferenceError{Task: "zero-shot-classification", Err: fmt.Errorf("empty label ranking")}
	}

	fused := FuseSentiment(title, content, a.cfg.OverrideRatio)
	return domain.ClassificationOutcome{
		Category:            categories[0].Label,
		CategoryConfidence:  categories[0].Score,
		Sentiment:           fused.Label,
		SentimentConfidence: fused.Score,
	}, nil
}

func (a *Aggregator) observe(outcome string) {
	if a.recorder != nil {
		a.recorder.ObserveArticle(outcome)
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
