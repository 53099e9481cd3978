package config

import "testing"

var allVars = []string{
	"PORT", "APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "TELEGRAM_BOT_TOKEN", "DATABASE_URL",
	"REDIS_URL", "API_KEY", "CORS_ORIGINS", "RATE_LIMIT_BACKEND", "RATE_LIMIT_MAX",
	"RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_SWEEP_SECS", "NEWS_API_KEY", "NEWS_API_BASE_URL",
	"POLYGON_API_KEY", "INFERENCE_BACKEND", "HF_API_TOKEN", "HF_CATEGORY_MODEL",
	"HF_SENTIMENT_MODEL", "OPENAI_API_KEY", "OPENAI_MODEL", "RISK_MAX_ARTICLES",
	"RISK_LOOKBACK_DAYS", "RISK_ARTICLE_TIMEOUT_SECS", "RISK_MAX_CONCURRENCY",
	"RISK_SENTIMENT_OVERRIDE_RATIO", "QUOTE_CACHE_SECS", "HISTORY_CACHE_SECS",
	"WATCHLIST_SYMBOLS", "WATCHLIST_POLL_SECS", "SSH_PORT", "SSH_HOST_KEY_PATH",
	"SSH_AUTHORIZED_FINGERPRINTS", "DASHBOARD_REFRESH_SECS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allVars {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.Port != "8080" || cfg.AppEnv != "development" || cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.RateLimitBackend != "memory" || cfg.RateLimitMax != 60 || cfg.RateLimitWindowMs != 60000 || cfg.RateLimitSweepSecs != 60 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg)
	}
	if cfg.RiskMaxArticles != 20 || cfg.RiskLookbackDays != 7 || cfg.RiskArticleTimeoutSecs != 20 || cfg.RiskMaxConcurrency != 0 {
		t.Fatalf("unexpected risk defaults: %+v", cfg)
	}
	if cfg.RiskSentimentOverrideRatio != 1.5 {
		t.Fatalf("expected override ratio 1.5, got %v", cfg.RiskSentimentOverrideRatio)
	}
	if cfg.QuoteCacheSecs != 90 || cfg.HistoryCacheSecs != 900 {
		t.Fatalf("unexpected cache defaults: %+v", cfg)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" || cfg.InferenceBackend != "" {
		t.Fatalf("unexpected inference defaults: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("expected default CORS origins, got %v", cfg.CORSOrigins)
	}
	if cfg.SSHPort != 2222 || cfg.SSHHostKeyPath == "" || len(cfg.SSHAuthorizedFingerprints) != 0 || cfg.DashboardRefreshSecs != 30 {
		t.Fatalf("unexpected ssh defaults: %+v", cfg)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("RATE_LIMIT_BACKEND", "REDIS")
	t.Setenv("RATE_LIMIT_MAX", "100")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "1000")
	t.Setenv("INFERENCE_BACKEND", "openai")
	t.Setenv("RISK_MAX_CONCURRENCY", "4")
	t.Setenv("RISK_SENTIMENT_OVERRIDE_RATIO", "2.0")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("WATCHLIST_SYMBOLS", "aapl, msft")
	t.Setenv("SSH_AUTHORIZED_FINGERPRINTS", "SHA256:abc, SHA256:def")

	cfg := Load()
	if cfg.TelegramBotToken != "token" || cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RateLimitBackend != "redis" || cfg.RateLimitMax != 100 || cfg.RateLimitWindowMs != 1000 {
		t.Fatalf("unexpected rate limit config: %+v", cfg)
	}
	if cfg.InferenceBackend != "openai" || cfg.RiskMaxConcurrency != 4 || cfg.RiskSentimentOverrideRatio != 2.0 {
		t.Fatalf("unexpected risk config: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORS origins: %v", cfg.CORSOrigins)
	}
	if len(cfg.WatchlistSymbols) != 2 || cfg.WatchlistSymbols[0] != "AAPL" || cfg.WatchlistPollSecs != 60 {
		t.Fatalf("unexpected watchlist: %v every %ds", cfg.WatchlistSymbols, cfg.WatchlistPollSecs)
	}
	if len(cfg.SSHAuthorizedFingerprints) != 2 || cfg.SSHAuthorizedFingerprints[1] != "SHA256:def" {
		t.Fatalf("unexpected fingerprints: %v", cfg.SSHAuthorizedFingerprints)
	}
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_MAX", "bad")
	t.Setenv("RISK_MAX_ARTICLES", "-3")
	t.Setenv("RISK_MAX_CONCURRENCY", "-1")
	t.Setenv("RISK_SENTIMENT_OVERRIDE_RATIO", "zero")
	t.Setenv("RATE_LIMIT_BACKEND", "memcached")
	t.Setenv("INFERENCE_BACKEND", "magic")

	cfg := Load()
	if cfg.RateLimitMax != 60 || cfg.RiskMaxArticles != 20 || cfg.RiskMaxConcurrency != 0 {
		t.Fatalf("invalid ints should fall back to defaults: %+v", cfg)
	}
	if cfg.RiskSentimentOverrideRatio != 1.5 {
		t.Fatalf("invalid ratio should fall back, got %v", cfg.RiskSentimentOverrideRatio)
	}
	if cfg.RateLimitBackend != "memory" || cfg.InferenceBackend != "" {
		t.Fatalf("unsupported backends should fall back: %+v", cfg)
	}
}
