package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"market-radar/internal/cache"
	"market-radar/internal/config"
	"market-radar/internal/dashboard"
	"market-radar/internal/inference"
	"market-radar/internal/logging"
	"market-radar/internal/metrics"
	"market-radar/internal/provider"
	"market-radar/internal/riskradar"
	"market-radar/internal/service"
	"market-radar/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	wishlogging "github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gossh "golang.org/x/crypto/ssh"
)

// ctxKey is a typed context key to avoid collisions.
type ctxKey string

const fingerprintKey ctxKey = "ssh_fingerprint"

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	newLoggerFunc     = logging.New
	initRedisFunc     = cache.InitRedis
	initTracerFunc    = tracing.InitTracer
	newWishServerFunc = wish.NewServer
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	logger := newLoggerFunc(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if len(cfg.SSHAuthorizedFingerprints) == 0 {
		logger.Fatal().Msg("SSH_AUTHORIZED_FINGERPRINTS is empty, refusing to start the dashboard")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := initRedisFunc(ctx, cfg.RedisURL, logger)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	recorder := metrics.New()

	var redisCache service.RedisClient
	if redisClient != nil {
		redisCache = redisClient
	}

	yahoo := provider.NewYahooProvider(tracer, recorder)
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
	marketService := service.NewMarketService(tracer, logger, yahoo, nil, nil, aggregator, redisCache, recorder, service.CacheConfig{
		QuoteTTL:   time.Duration(cfg.QuoteCacheSecs) * time.Second,
		HistoryTTL: time.Duration(cfg.HistoryCacheSecs) * time.Second,
	})

	refresh := time.Duration(cfg.DashboardRefreshSecs) * time.Second
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)

	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(publicKeyHandler(cfg.SSHAuthorizedFingerprints, logger)),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				model := dashboard.NewModel(marketService, cfg.WatchlistSymbols, refresh, s.User())
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)
				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			wishlogging.Middleware(),
		),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create SSH server")
	}

	if srv != nil {
		go func() {
			logger.Info().Str("addr", addr).Msg("SSH dashboard listening")
			if err := srv.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
				logger.Error().Err(err).Msg("SSH server stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	logger.Info().Msg("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("SSH server shutdown error")
		}
	}

	logger.Info().Msg("SSH server exited")
}

// publicKeyHandler admits keys whose SHA256 fingerprint is in allowed.
func publicKeyHandler(allowed []string, log zerolog.Logger) ssh.PublicKeyHandler {
	set := make(map[string]struct{}, len(allowed))
	for _, fp := range allowed {
		set[fp] = struct{}{}
	}
	return func(ctx ssh.Context, key ssh.PublicKey) bool {
		fingerprint, ok := authorized(set, key)
		if !ok {
			log.Warn().Str("fingerprint", fingerprint).Msg("SSH auth denied")
			return false
		}
		ctx.SetValue(fingerprintKey, fingerprint)
		log.Info().Str("user", ctx.User()).Str("fingerprint", fingerprint).Msg("SSH auth accepted")
		return true
	}
}

func authorized(set map[string]struct{}, key gossh.PublicKey) (string, bool) {
	fingerprint := gossh.FingerprintSHA256(key)
	_, ok := set[fingerprint]
	return fingerprint, ok
}
