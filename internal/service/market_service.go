package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"market-radar/internal/domain"
	"market-radar/internal/ta"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultQuoteTTL   = 90 * time.Second
	defaultHistoryTTL = 15 * time.Minute

	// compactBars is a conservative count of trading days inside the
	// compact 100 calendar day range.
	compactBars = 60

	quotesConcurrency = 5
	historySource     = "yahoo"
)

var DefaultPeriods = []int{20, 50, 200}

type MarketDataProvider interface {
	FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error)
	FetchHistory(ctx context.Context, symbol string, size domain.OutputSize) ([]domain.PricePoint, error)
	FetchCompanyOverview(ctx context.Context, symbol string) (*domain.CompanyOverview, error)
	SearchSymbols(ctx context.Context, keywords string) ([]domain.SymbolMatch, error)
}

type EarningsProvider interface {
	FetchEarnings(ctx context.Context, symbol string, limit int) ([]domain.EarningsReport, error)
}

type PriceBarStore interface {
	UpsertBars(ctx context.Context, symbol, source string, bars []domain.PricePoint) error
	GetBarsSince(ctx context.Context, symbol string, from time.Time) ([]domain.PricePoint, error)
}

type RiskAssessor interface {
	Assess(ctx context.Context, subject string) (domain.RiskRadar, error)
}

type CacheRecorder interface {
	ObserveCache(kind string, hit bool)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// CacheConfig sets Redis TTLs. Zero values fall back to defaults.
type CacheConfig struct {
	QuoteTTL   time.Duration
	HistoryTTL time.Duration
}

// QuoteResult is one entry of a multi-symbol quote lookup.
type QuoteResult struct {
	Symbol string
	Quote  *domain.Quote
	Err    error
}

// IndicatorResult is the moving-average payload for one symbol.
type IndicatorResult struct {
	Symbol     string            `json:"symbol"`
	OutputSize domain.OutputSize `json:"outputsize"`
	Bars       int               `json:"bars"`
	ta.MovingAverages
}

// MarketService orchestrates provider calls, caching, persistence and the
// analytics built on top of them.
type MarketService struct {
	tracer   trace.Tracer
	log      zerolog.Logger
	market   MarketDataProvider
	earnings EarningsProvider
	store    PriceBarStore
	risk     RiskAssessor
	redis    RedisClient
	recorder CacheRecorder
	cache    CacheConfig
	now      func() time.Time
}

func NewMarketService(
	tracer trace.Tracer,
	log zerolog.Logger,
	market MarketDataProvider,
	earnings EarningsProvider,
	store PriceBarStore,
	risk RiskAssessor,
	redisClient RedisClient,
	recorder CacheRecorder,
	cache CacheConfig,
) *MarketService {
	if cache.QuoteTTL <= 0 {
		cache.QuoteTTL = defaultQuoteTTL
	}
	if cache.HistoryTTL <= 0 {
		cache.HistoryTTL = defaultHistoryTTL
	}
	return &MarketService{
		tracer:   tracer,
		log:      log.With().Str("component", "market-service").Logger(),
		market:   market,
		earnings: earnings,
		store:    store,
		risk:     risk,
		redis:    redisClient,
		recorder: recorder,
		cache:    cache,
		now:      time.Now,
	}
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Quote returns the latest quote, served from Redis when fresh.
func (s *MarketService) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.quote")
	defer span.End()

	symbol = NormalizeSymbol(symbol)
	span.SetAttributes(attribute.String("symbol", symbol))

	var cached domain.Quote
	if s.readCache(ctx, "quote", "quote:"+symbol, &cached) {
		return &cached, nil
	}

	quote, err := s.market.FetchQuote(ctx, symbol)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.writeCache(ctx, "quote:"+symbol, quote, s.cache.QuoteTTL)
	return quote, nil
}

// Quotes resolves several symbols concurrently. Per-symbol failures are
// reported in the result instead of failing the batch. Results keep the
// order of the first occurrence of each symbol.
func (s *MarketService) Quotes(ctx context.Context, symbols []string) []QuoteResult {
	ctx, span := s.tracer.Start(ctx, "market-service.quotes")
	defer span.End()

	uniq := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = NormalizeSymbol(sym)
		if sym != "" && !slices.Contains(uniq, sym) {
			uniq = append(uniq, sym)
		}
	}
	span.SetAttributes(attribute.Int("symbols", len(uniq)))

	results := make([]QuoteResult, len(uniq))
	var g errgroup.Group
	g.SetLimit(quotesConcurrency)
	for i, sym := range uniq {
		g.Go(func() error {
			quote, err := s.Quote(ctx, sym)
			results[i] = QuoteResult{Symbol: sym, Quote: quote, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// History returns daily bars in ascending date order. Successful fetches are
// cached and persisted. When the provider fails and a store is configured,
// persisted bars covering the requested range are served instead.
func (s *MarketService) History(ctx context.Context, symbol string, size domain.OutputSize) ([]domain.PricePoint, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.history")
	defer span.End()

	symbol = NormalizeSymbol(symbol)
	if size == "" {
		size = domain.OutputCompact
	}
	if !size.IsValid() {
		return nil, &domain.ValidationError{Field: "outputsize", Message: "must be compact or full"}
	}
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("outputsize", string(size)))

	key := fmt.Sprintf("history:%s:%s", symbol, size)
	var cached []domain.PricePoint
	if s.readCache(ctx, "history", key, &cached) {
		return cached, nil
	}

	bars, err := s.market.FetchHistory(ctx, symbol, size)
	if err != nil {
		if fallback := s.storedHistory(ctx, symbol, size); len(fallback) > 0 {
			s.log.Warn().Err(err).Str("symbol", symbol).Int("bars", len(fallback)).Msg("serving persisted history after provider failure")
			return fallback, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.writeCache(ctx, key, bars, s.cache.HistoryTTL)
	if s.store != nil && len(bars) > 0 {
		if err := s.store.UpsertBars(ctx, symbol, historySource, bars); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("persist price bars")
		}
	}
	return bars, nil
}

func (s *MarketService) storedHistory(ctx context.Context, symbol string, size domain.OutputSize) []domain.PricePoint {
	if s.store == nil {
		return nil
	}
	from := s.now().AddDate(0, 0, -100)
	if size == domain.OutputFull {
		from = s.now().AddDate(-20, 0, 0)
	}
	bars, err := s.store.GetBarsSince(ctx, symbol, from)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("read persisted price bars")
		return nil
	}
	return bars
}

func (s *MarketService) Search(ctx context.Context, keywords string) ([]domain.SymbolMatch, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.search")
	defer span.End()

	keywords = strings.TrimSpace(keywords)
	if keywords == "" {
		return nil, &domain.ValidationError{Field: "keywords", Message: "search keywords are required"}
	}
	matches, err := s.market.SearchSymbols(ctx, keywords)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if matches == nil {
		matches = []domain.SymbolMatch{}
	}
	return matches, nil
}

func (s *MarketService) Overview(ctx context.Context, symbol string) (*domain.CompanyOverview, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.overview")
	defer span.End()

	overview, err := s.market.FetchCompanyOverview(ctx, NormalizeSymbol(symbol))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return overview, nil
}

// Earnings returns up to limit quarterly reports, newest first.
func (s *MarketService) Earnings(ctx context.Context, symbol string, limit int) ([]domain.EarningsReport, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.earnings")
	defer span.End()

	if s.earnings == nil {
		return nil, domain.NewUpstreamError("earnings", "financials", 0, domain.ErrMissingCredentials)
	}
	reports, err := s.earnings.FetchEarnings(ctx, NormalizeSymbol(symbol), limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if reports == nil {
		reports = []domain.EarningsReport{}
	}
	return reports, nil
}

// MovingAverages computes SMA and EMA series for periods over the symbol's
// daily closes. Empty periods select DefaultPeriods. The full history range is
// fetched when any period exceeds what the compact range can cover.
func (s *MarketService) MovingAverages(ctx context.Context, symbol string, periods []int) (*IndicatorResult, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.moving-averages")
	defer span.End()

	if len(periods) == 0 {
		periods = DefaultPeriods
	}
	for _, p := range periods {
		if p <= 0 {
			return nil, &domain.ValidationError{Field: "periods", Message: "periods must be positive integers"}
		}
	}

	size := domain.OutputCompact
	if slices.Max(periods) > compactBars {
		size = domain.OutputFull
	}

	symbol = NormalizeSymbol(symbol)
	bars, err := s.History(ctx, symbol, size)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &IndicatorResult{
		Symbol:         symbol,
		OutputSize:     size,
		Bars:           len(bars),
		MovingAverages: ta.ComputeMovingAverages(bars, periods),
	}, nil
}

// RiskRadar delegates to the configured assessor.
func (s *MarketService) RiskRadar(ctx context.Context, symbol string) (domain.RiskRadar, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.risk-radar")
	defer span.End()

	if s.risk == nil {
		return nil, domain.NewUpstreamError("news", "check-credentials", 0, domain.ErrMissingCredentials)
	}
	radar, err := s.risk.Assess(ctx, NormalizeSymbol(symbol))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return radar, nil
}

func (s *MarketService) readCache(ctx context.Context, kind, key string, dst any) bool {
	if s.redis == nil {
		return false
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("redis cache read error")
		}
		s.observeCache(kind, false)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		s.observeCache(kind, false)
		return false
	}
	s.observeCache(kind, true)
	return true
}

func (s *MarketService) writeCache(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("encode cache entry")
		return
	}
	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis cache write error")
	}
}

func (s *MarketService) observeCache(kind string, hit bool) {
	if s.recorder != nil {
		s.recorder.ObserveCache(kind, hit)
	}
}
