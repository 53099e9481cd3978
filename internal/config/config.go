package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Port      string
	AppEnv    string
	LogLevel  string
	LogFormat string

	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string
	APIKey           string
	CORSOrigins      []string

	RateLimitBackend   string
	RateLimitMax       int
	RateLimitWindowMs  int
	RateLimitSweepSecs int

	NewsAPIKey     string
	NewsAPIBaseURL string
	PolygonAPIKey  string

	InferenceBackend string
	HFAPIToken       string
	HFCategoryModel  string
	HFSentimentModel string
	OpenAIAPIKey     string
	OpenAIModel      string

	RiskMaxArticles            int
	RiskLookbackDays           int
	RiskArticleTimeoutSecs     int
	RiskMaxConcurrency         int
	RiskSentimentOverrideRatio float64

	QuoteCacheSecs   int
	HistoryCacheSecs int

	WatchlistSymbols  []string
	WatchlistPollSecs int

	SSHPort                   int
	SSHHostKeyPath            string
	SSHAuthorizedFingerprints []string
	DashboardRefreshSecs      int
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           strings.TrimSpace(os.Getenv("API_KEY")),
		NewsAPIKey:       strings.TrimSpace(os.Getenv("NEWS_API_KEY")),
		NewsAPIBaseURL:   strings.TrimSpace(os.Getenv("NEWS_API_BASE_URL")),
		PolygonAPIKey:    strings.TrimSpace(os.Getenv("POLYGON_API_KEY")),
		HFAPIToken:       strings.TrimSpace(os.Getenv("HF_API_TOKEN")),
		HFCategoryModel:  strings.TrimSpace(os.Getenv("HF_CATEGORY_MODEL")),
		HFSentimentModel: strings.TrimSpace(os.Getenv("HF_SENTIMENT_MODEL")),
		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
	}

	cfg.Port = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}

	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.NewsAPIKey == "" {
		log.Warn().Msg("NEWS_API_KEY not set, risk radar will be unavailable")
	}
	if cfg.PolygonAPIKey == "" {
		log.Warn().Msg("POLYGON_API_KEY not set, earnings will be unavailable")
	}

	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}

	cfg.RateLimitBackend = strings.ToLower(strings.TrimSpace(os.Getenv("RATE_LIMIT_BACKEND")))
	if cfg.RateLimitBackend == "" {
		cfg.RateLimitBackend = "memory"
	}
	if cfg.RateLimitBackend != "memory" && cfg.RateLimitBackend != "redis" {
		log.Warn().Str("value", cfg.RateLimitBackend).Msg("unsupported RATE_LIMIT_BACKEND, defaulting to memory")
		cfg.RateLimitBackend = "memory"
	}
	cfg.RateLimitMax = positiveInt("RATE_LIMIT_MAX", 60)
	cfg.RateLimitWindowMs = positiveInt("RATE_LIMIT_WINDOW_MS", 60000)
	cfg.RateLimitSweepSecs = positiveInt("RATE_LIMIT_SWEEP_SECS", 60)

	cfg.InferenceBackend = strings.ToLower(strings.TrimSpace(os.Getenv("INFERENCE_BACKEND")))
	switch cfg.InferenceBackend {
	case "", "huggingface", "openai", "heuristic":
	default:
		log.Warn().Str("value", cfg.InferenceBackend).Msg("unsupported INFERENCE_BACKEND, selecting automatically")
		cfg.InferenceBackend = ""
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.RiskMaxArticles = positiveInt("RISK_MAX_ARTICLES", 20)
	cfg.RiskLookbackDays = positiveInt("RISK_LOOKBACK_DAYS", 7)
	cfg.RiskArticleTimeoutSecs = positiveInt("RISK_ARTICLE_TIMEOUT_SECS", 20)

	cfg.RiskMaxConcurrency = 0
	if v := strings.TrimSpace(os.Getenv("RISK_MAX_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RiskMaxConcurrency = n
		}
	}

	cfg.RiskSentimentOverrideRatio = 1.5
	if v := strings.TrimSpace(os.Getenv("RISK_SENTIMENT_OVERRIDE_RATIO")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.RiskSentimentOverrideRatio = n
		}
	}

	cfg.QuoteCacheSecs = positiveInt("QUOTE_CACHE_SECS", 90)
	cfg.HistoryCacheSecs = positiveInt("HISTORY_CACHE_SECS", 900)

	for _, symbol := range strings.Split(os.Getenv("WATCHLIST_SYMBOLS"), ",") {
		if symbol = strings.ToUpper(strings.TrimSpace(symbol)); symbol != "" {
			cfg.WatchlistSymbols = append(cfg.WatchlistSymbols, symbol)
		}
	}
	cfg.WatchlistPollSecs = positiveInt("WATCHLIST_POLL_SECS", 60)

	cfg.SSHPort = positiveInt("SSH_PORT", 2222)
	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/market_radar_ed25519"
	}
	for _, fp := range strings.Split(os.Getenv("SSH_AUTHORIZED_FINGERPRINTS"), ",") {
		if fp = strings.TrimSpace(fp); fp != "" {
			cfg.SSHAuthorizedFingerprints = append(cfg.SSHAuthorizedFingerprints, fp)
		}
	}
	cfg.DashboardRefreshSecs = positiveInt("DASHBOARD_REFRESH_SECS", 30)

	return cfg
}

// positiveInt reads name as a positive integer, falling back to def.
func positiveInt(name string, def int) int {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Warn().Str("name", name).Str("value", v).Int("default", def).Msg("invalid integer setting, using default")
	}
	return def
}
