package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-radar/internal/bot"
	"market-radar/internal/cache"
	"market-radar/internal/config"
	"market-radar/internal/db"
	"market-radar/internal/handler"
	"market-radar/internal/inference"
	"market-radar/internal/job"
	"market-radar/internal/logging"
	"market-radar/internal/metrics"
	"market-radar/internal/provider"
	"market-radar/internal/ratelimit"
	"market-radar/internal/repository"
	"market-radar/internal/riskradar"
	"market-radar/internal/service"
	"market-radar/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "market-radar/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	newLoggerFunc          = logging.New
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newMetricsFunc         = metrics.New
	startSweeperFunc       = func(s *job.GovernorSweeper, ctx context.Context) { go s.Start(ctx) }
	startPollerFunc        = func(p *job.WatchlistPoller, ctx context.Context) { go p.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.New
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Market Radar API
// @version         1.0
// @description     Stock quotes, history, moving averages and a news risk radar.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	logger := newLoggerFunc(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	zlog.Logger = logger
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres and Redis are optional; both log and stay nil when unavailable.
	pool := initPostgresFunc(ctx, cfg.DatabaseURL, logger)
	redisClient := initRedisFunc(ctx, cfg.RedisURL, logger)
	defer db.Close()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	recorder := newMetricsFunc()

	var store service.PriceBarStore
	if pool != nil {
		repo := repository.NewPriceBarRepository(pool, tracer)
		if err := repo.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		store = repo
	}

	var redisCache service.RedisClient
	if redisClient != nil {
		redisCache = redisClient
	}

	yahoo := provider.NewYahooProvider(tracer, recorder)
	polygon := provider.NewPolygonProvider(cfg.PolygonAPIKey, tracer, recorder)
	news := provider.NewNewsAPIProvider(cfg.NewsAPIKey, cfg.NewsAPIBaseURL, tracer, recorder)

	classifier := inference.Shared(inference.Config{
		Backend:        cfg.InferenceBackend,
		HFToken:        cfg.HFAPIToken,
		CategoryModel:  cfg.HFCategoryModel,
		SentimentModel: cfg.HFSentimentModel,
		OpenAIKey:      cfg.OpenAIAPIKey,
		OpenAIModel:    cfg.OpenAIModel,
	}, tracer, logger)

	aggregator := riskradar.NewAggregator(tracer, logger, yahoo, news, classifier, recorder, riskradar.Config{
		MaxArticles:    cfg.RiskMaxArticles,
		Lookback:       time.Duration(cfg.RiskLookbackDays) * 24 * time.Hour,
		ArticleTimeout: time.Duration(cfg.RiskArticleTimeoutSecs) * time.Second,
		MaxConcurrency: cfg.RiskMaxConcurrency,
		OverrideRatio:  cfg.RiskSentimentOverrideRatio,
	})

	marketService := service.NewMarketService(tracer, logger, yahoo, polygon, store, aggregator, redisCache, recorder, service.CacheConfig{
		QuoteTTL:   time.Duration(cfg.QuoteCacheSecs) * time.Second,
		HistoryTTL: time.Duration(cfg.HistoryCacheSecs) * time.Second,
	})

	// Rate governor: in-memory by default, Redis when requested and reachable.
	window := time.Duration(cfg.RateLimitWindowMs) * time.Millisecond
	var governor ratelimit.Governor = ratelimit.NewSlidingWindow(cfg.RateLimitMax, window)
	if cfg.RateLimitBackend == "redis" {
		if redisClient != nil {
			governor = ratelimit.NewRedisGovernor(redisClient)
		} else {
			logger.Warn().Msg("RATE_LIMIT_BACKEND=redis but Redis is unavailable, using in-memory governor")
		}
	}

	// Background jobs stop when ctx is cancelled.
	startSweeperFunc(job.NewGovernorSweeper(logger, governor, cfg.RateLimitSweepSecs), ctx)
	startPollerFunc(job.NewWatchlistPoller(tracer, logger, marketService, cfg.WatchlistSymbols, cfg.WatchlistPollSecs), ctx)

	startTelegramBotFunc(cfg.TelegramBotToken, marketService, logger)

	h := handler.New(tracer, logger, marketService, governor, recorder, handler.Options{
		APIKey: cfg.APIKey,
		RateLimit: handler.RateLimitConfig{
			Limit:  cfg.RateLimitMax,
			Window: window,
		},
	})

	r := newRouterFunc()
	r.Use(
		gin.Recovery(),
		otelgin.Middleware(tracing.ServiceName),
		logging.RequestLogger(logger),
		recorder.GinMiddleware(),
		handler.CORS(cfg.CORSOrigins),
	)

	h.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(recorder.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	logger.Info().Msg("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exiting")
}
