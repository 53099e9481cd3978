package handler

import (
	"context"
	"net/http"
	"time"

	"market-radar/internal/domain"
	"market-radar/internal/ratelimit"
	"market-radar/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// MarketService is the subset of service.MarketService the handlers use.
type MarketService interface {
	Quote(ctx context.Context, symbol string) (*domain.Quote, error)
	Quotes(ctx context.Context, symbols []string) []service.QuoteResult
	History(ctx context.Context, symbol string, size domain.OutputSize) ([]domain.PricePoint, error)
	Search(ctx context.Context, keywords string) ([]domain.SymbolMatch, error)
	Overview(ctx context.Context, symbol string) (*domain.CompanyOverview, error)
	Earnings(ctx context.Context, symbol string, limit int) ([]domain.EarningsReport, error)
	MovingAverages(ctx context.Context, symbol string, periods []int) (*service.IndicatorResult, error)
	RiskRadar(ctx context.Context, symbol string) (domain.RiskRadar, error)
}

type GovernorRecorder interface {
	ObserveGovernor(allowed bool)
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type Options struct {
	APIKey    string
	RateLimit RateLimitConfig
}

type Handler struct {
	tracer    trace.Tracer
	log       zerolog.Logger
	market    MarketService
	governor  ratelimit.Governor
	recorder  GovernorRecorder
	opts      Options
	startedAt time.Time
}

func New(
	tracer trace.Tracer,
	log zerolog.Logger,
	market MarketService,
	governor ratelimit.Governor,
	recorder GovernorRecorder,
	opts Options,
) *Handler {
	if opts.RateLimit.Limit <= 0 {
		opts.RateLimit.Limit = ratelimit.DefaultLimit
	}
	if opts.RateLimit.Window <= 0 {
		opts.RateLimit.Window = ratelimit.DefaultWindow
	}
	registerValidations()
	return &Handler{
		tracer:    tracer,
		log:       log.With().Str("component", "handler").Logger(),
		market:    market,
		governor:  governor,
		recorder:  recorder,
		opts:      opts,
		startedAt: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(RequestID())
	r.GET("/health", h.Health)

	api := r.Group("/api", MaxURLLength())
	api.GET("", h.Index)

	stocks := api.Group("/v1/stocks", APIKeyAuth(h.opts.APIKey), h.RateLimit())
	stocks.GET("/quote/:symbol", h.GetQuote)
	stocks.GET("/quotes", h.GetQuotes)
	stocks.GET("/historical/:symbol", h.GetHistorical)
	stocks.GET("/search", h.SearchSymbols)
	stocks.GET("/overview/:symbol", h.GetOverview)
	stocks.GET("/moving-averages/:symbol", h.GetMovingAverages)
	stocks.GET("/earnings/:symbol", h.GetEarnings)
	stocks.GET("/risk-radar/:symbol", h.GetRiskRadar)

	// Reading the quota must not consume it.
	api.GET("/v1/stocks/rate-limit", APIKeyAuth(h.opts.APIKey), h.GetRateLimitStatus)

	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "Not Found - "+c.Request.URL.RequestURI())
	})
}
