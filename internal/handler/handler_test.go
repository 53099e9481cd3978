package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"market-radar/internal/domain"
	"market-radar/internal/ratelimit"
	"market-radar/internal/service"
	"market-radar/internal/ta"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *ErrorBody      `json:"error"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"requestId"`
	Symbol    string          `json:"symbol"`
	Count     int             `json:"count"`
	Symbols   []string        `json:"symbols"`
}

func newTestRouter(t *testing.T, market MarketService, opts Options) (*gin.Engine, *ratelimit.SlidingWindow, *fakeGovernorRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tracer := trace.NewNoopTracerProvider().Tracer("handler-test")
	governor := ratelimit.NewSlidingWindow(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	recorder := &fakeGovernorRecorder{}
	h := New(tracer, zerolog.Nop(), market, governor, recorder, opts)

	r := gin.New()
	h.RegisterRoutes(r)
	return r, governor, recorder
}

func doGet(r http.Handler, path string, header ...string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestGetQuoteSuccess(t *testing.T) {
	market := &fakeMarket{quote: &domain.Quote{Symbol: "AAPL", Price: 190.5}}
	r, _, _ := newTestRouter(t, market, Options{})

	w, env := doGet(r, "/api/v1/stocks/quote/aapl")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !env.Success || env.Timestamp == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var quote domain.Quote
	if err := json.Unmarshal(env.Data, &quote); err != nil {
		t.Fatalf("parse quote: %v", err)
	}
	if quote.Price != 190.5 || market.lastSymbol != "AAPL" {
		t.Fatalf("unexpected quote %+v for symbol %s", quote, market.lastSymbol)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "59" {
		t.Fatalf("expected remaining header 59, got %q", w.Header().Get("X-RateLimit-Remaining"))
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestGetQuoteInvalidSymbol(t *testing.T) {
	market := &fakeMarket{}
	r, _, _ := newTestRouter(t, market, Options{})

	w, env := doGet(r, "/api/v1/stocks/quote/NOT_A_TICKER!")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env.Success || env.Error == nil || env.Error.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected envelope: %s", w.Body.String())
	}
	if !strings.HasPrefix(env.Error.Message, "symbol:") {
		t.Fatalf("unexpected message: %q", env.Error.Message)
	}
	if env.RequestID == "" {
		t.Fatal("expected request id in error envelope")
	}
	if market.calls != 0 {
		t.Fatal("service should not be called for invalid input")
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.NewUpstreamError("yahoo", "quote", 404, domain.ErrNotFound), http.StatusNotFound},
		{"upstream", domain.NewUpstreamError("yahoo", "quote", 500, errors.New("boom")), http.StatusBadGateway},
		{"credentials", domain.NewUpstreamError("news", "check-credentials", 0, domain.ErrMissingCredentials), http.StatusServiceUnavailable},
		{"validation", &domain.ValidationError{Field: "outputsize", Message: "bad"}, http.StatusBadRequest},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _, _ := newTestRouter(t, &fakeMarket{err: tc.err}, Options{})
			w, env := doGet(r, "/api/v1/stocks/quote/AAPL")
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if env.Error == nil || env.Error.StatusCode != tc.want {
				t.Fatalf("unexpected envelope: %s", w.Body.String())
			}
		})
	}
}

func TestGetQuotesMixesResultsAndErrors(t *testing.T) {
	market := &fakeMarket{quotes: []service.QuoteResult{
		{Symbol: "AAPL", Quote: &domain.Quote{Symbol: "AAPL", Price: 1}},
		{Symbol: "ZZZZ", Err: domain.NewUpstreamError("yahoo", "quote", 404, domain.ErrNotFound)},
	}}
	r, _, _ := newTestRouter(t, market, Options{})

	w, env := doGet(r, "/api/v1/stocks/quotes?symbols=AAPL,ZZZZ")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var data map[string]map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if data["AAPL"]["price"] != float64(1) {
		t.Fatalf("unexpected AAPL entry: %+v", data["AAPL"])
	}
	if _, ok := data["ZZZZ"]["error"]; !ok {
		t.Fatalf("expected error entry for ZZZZ: %+v", data["ZZZZ"])
	}
	if len(env.Symbols) != 2 || len(market.lastSymbols) != 2 {
		t.Fatalf("unexpected symbols: %v / %v", env.Symbols, market.lastSymbols)
	}
}

func TestGetQuotesRequiresSymbols(t *testing.T) {
	r, _, _ := newTestRouter(t, &fakeMarket{}, Options{})

	if w, _ := doGet(r, "/api/v1/stocks/quotes"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w, _ := doGet(r, "/api/v1/stocks/quotes?symbols=AAPL,$$$"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad symbol list, got %d", w.Code)
	}
}

func TestGetHistoricalValidatesOutputSize(t *testing.T) {
	market := &fakeMarket{history: []domain.PricePoint{{Date: time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC), Close: 10}}}
	r, _, _ := newTestRouter(t, market, Options{})

	w, env := doGet(r, "/api/v1/stocks/historical/AAPL?outputsize=huge")
	if w.Code != http.StatusBadRequest || env.Error == nil || !strings.Contains(env.Error.Message, "outputsize") {
		t.Fatalf("expected outputsize 400, got %d: %s", w.Code, w.Body.String())
	}

	w, env = doGet(r, "/api/v1/stocks/historical/AAPL")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if market.lastSize != domain.OutputCompact || env.Count != 1 || env.Symbol != "AAPL" {
		t.Fatalf("unexpected history call: size=%s env=%+v", market.lastSize, env)
	}

	if w, _ = doGet(r, "/api/v1/stocks/historical/AAPL?outputsize=full"); w.Code != http.StatusOK || market.lastSize != domain.OutputFull {
		t.Fatalf("expected full history, got %d size=%s", w.Code, market.lastSize)
	}
}

func TestGetMovingAveragesParsesPeriods(t *testing.T) {
	market := &fakeMarket{}
	r, _, _ := newTestRouter(t, market, Options{})

	w, _ := doGet(r, "/api/v1/stocks/moving-averages/AAPL?periods=20,50")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(market.lastPeriods) != 2 || market.lastPeriods[0] != 20 || market.lastPeriods[1] != 50 {
		t.Fatalf("unexpected periods: %v", market.lastPeriods)
	}

	if w, _ = doGet(r, "/api/v1/stocks/moving-averages/AAPL"); w.Code != http.StatusOK || market.lastPeriods != nil {
		t.Fatalf("expected default periods, got %d %v", w.Code, market.lastPeriods)
	}

	for _, bad := range []string{"20,abc", "0", "-5", "20,,50"} {
		if w, _ = doGet(r, "/api/v1/stocks/moving-averages/AAPL?periods="+bad); w.Code != http.StatusBadRequest {
			t.Fatalf("periods=%s: expected 400, got %d", bad, w.Code)
		}
	}
}

func TestSearchRequiresKeywords(t *testing.T) {
	market := &fakeMarket{matches: []domain.SymbolMatch{{Symbol: "AAPL", Name: "Apple Inc."}}}
	r, _, _ := newTestRouter(t, market, Options{})

	if w, _ := doGet(r, "/api/v1/stocks/search"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w, env := doGet(r, "/api/v1/stocks/search?keywords=apple")
	if w.Code != http.StatusOK || env.Count != 1 {
		t.Fatalf("unexpected search response %d: %s", w.Code, w.Body.String())
	}
}

func TestGetEarningsDefaultsLimit(t *testing.T) {
	market := &fakeMarket{}
	r, _, _ := newTestRouter(t, market, Options{})

	if w, _ := doGet(r, "/api/v1/stocks/earnings/AAPL"); w.Code != http.StatusOK || market.lastLimit != 4 {
		t.Fatalf("expected default limit 4, got %d (%d)", market.lastLimit, w.Code)
	}
	if w, _ := doGet(r, "/api/v1/stocks/earnings/AAPL?limit=50"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit above 20, got %d", w.Code)
	}
}

func TestGetRiskRadar(t *testing.T) {
	market := &fakeMarket{radar: domain.RiskRadar{
		"Earnings Guidance": {Category: "Earnings Guidance", Total: 2, Positive: 1, Negative: 1},
	}}
	r, _, _ := newTestRouter(t, market, Options{})

	w, env := doGet(r, "/api/v1/stocks/risk-radar/tsla")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var radar domain.RiskRadar
	if err := json.Unmarshal(env.Data, &radar); err != nil {
		t.Fatalf("parse radar: %v", err)
	}
	if radar["Earnings Guidance"].Total != 2 || env.Symbol != "TSLA" {
		t.Fatalf("unexpected radar: %+v", radar)
	}
}

func TestRateLimitDeniesAfterLimit(t *testing.T) {
	market := &fakeMarket{quote: &domain.Quote{Symbol: "AAPL"}}
	r, _, recorder := newTestRouter(t, market, Options{RateLimit: RateLimitConfig{Limit: 2, Window: time.Minute}})

	for i := 0; i < 2; i++ {
		if w, _ := doGet(r, "/api/v1/stocks/quote/AAPL"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	w, env := doGet(r, "/api/v1/stocks/quote/AAPL")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if env.Error == nil || env.Error.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected envelope: %s", w.Body.String())
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" || w.Header().Get("Retry-After") == "" {
		t.Fatalf("unexpected headers: %v", w.Header())
	}
	if market.calls != 2 {
		t.Fatalf("denied request reached the service: %d calls", market.calls)
	}
	if recorder.allowed != 2 || recorder.denied != 1 {
		t.Fatalf("unexpected governor metrics: %+v", recorder)
	}
}

func TestRateLimitStatusDoesNotConsume(t *testing.T) {
	r, governor, _ := newTestRouter(t, &fakeMarket{}, Options{RateLimit: RateLimitConfig{Limit: 5, Window: time.Minute}})

	for i := 0; i < 3; i++ {
		w, env := doGet(r, "/api/v1/stocks/rate-limit")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var data struct {
			Limit     int `json:"limit"`
			Remaining int `json:"remaining"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("parse data: %v", err)
		}
		if data.Limit != 5 || data.Remaining != 5 {
			t.Fatalf("unexpected status: %+v", data)
		}
	}
	if governor.Keys() != 0 {
		t.Fatalf("status endpoint must not record requests, got %d keys", governor.Keys())
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := trace.NewNoopTracerProvider().Tracer("handler-test")
	market := &fakeMarket{quote: &domain.Quote{Symbol: "AAPL"}}
	h := New(tracer, zerolog.Nop(), market, failingGovernor{}, nil, Options{})
	r := gin.New()
	h.RegisterRoutes(r)

	if w, _ := doGet(r, "/api/v1/stocks/quote/AAPL"); w.Code != http.StatusOK {
		t.Fatalf("expected request admitted when governor fails, got %d", w.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	market := &fakeMarket{quote: &domain.Quote{Symbol: "AAPL"}}
	r, _, _ := newTestRouter(t, market, Options{APIKey: "secret"})

	if w, _ := doGet(r, "/api/v1/stocks/quote/AAPL"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w, _ := doGet(r, "/api/v1/stocks/quote/AAPL", "X-API-Key", "wrong"); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if w, _ := doGet(r, "/api/v1/stocks/quote/AAPL", "X-API-Key", "secret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w, _ := doGet(r, "/health"); w.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", w.Code)
	}
}

func TestURLTooLong(t *testing.T) {
	r, _, _ := newTestRouter(t, &fakeMarket{}, Options{})

	w, env := doGet(r, "/api/v1/stocks/search?keywords="+strings.Repeat("a", 300))
	if w.Code != http.StatusRequestURITooLong {
		t.Fatalf("expected 414, got %d", w.Code)
	}
	if env.Error == nil || env.Error.Message != "Request-URI Too Long." {
		t.Fatalf("unexpected envelope: %s", w.Body.String())
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	r, _, _ := newTestRouter(t, &fakeMarket{}, Options{})

	w, env := doGet(r, "/api/v1/nothing-here")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if env.Success || env.Error == nil || env.Error.Message != "Not Found - /api/v1/nothing-here" {
		t.Fatalf("unexpected envelope: %s", w.Body.String())
	}
}

func TestRequestIDPropagates(t *testing.T) {
	r, _, _ := newTestRouter(t, &fakeMarket{}, Options{})

	w, _ := doGet(r, "/health", "X-Request-ID", "req-123")
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w, _ := doGet(r, "/ping", "Origin", "http://localhost:3000")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin, got %q", got)
	}
	w, _ = doGet(r, "/ping", "Origin", "http://evil.example")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", w.Code)
	}
}

type fakeMarket struct {
	mu      sync.Mutex
	err     error
	quote   *domain.Quote
	quotes  []service.QuoteResult
	history []domain.PricePoint
	matches []domain.SymbolMatch
	radar   domain.RiskRadar

	calls       int
	lastSymbol  string
	lastSymbols []string
	lastSize    domain.OutputSize
	lastPeriods []int
	lastLimit   int
}

func (f *fakeMarket) record(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSymbol = symbol
}

func (f *fakeMarket) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	f.record(symbol)
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func (f *fakeMarket) Quotes(ctx context.Context, symbols []string) []service.QuoteResult {
	f.record("")
	f.lastSymbols = symbols
	return f.quotes
}

func (f *fakeMarket) History(ctx context.Context, symbol string, size domain.OutputSize) ([]domain.PricePoint, error) {
	f.record(symbol)
	f.lastSize = size
	return f.history, f.err
}

func (f *fakeMarket) Search(ctx context.Context, keywords string) ([]domain.SymbolMatch, error) {
	f.record("")
	return f.matches, f.err
}

func (f *fakeMarket) Overview(ctx context.Context, symbol string) (*domain.CompanyOverview, error) {
	f.record(symbol)
	return &domain.CompanyOverview{Symbol: symbol}, f.err
}

func (f *fakeMarket) Earnings(ctx context.Context, symbol string, limit int) ([]domain.EarningsReport, error) {
	f.record(symbol)
	f.lastLimit = limit
	return []domain.EarningsReport{}, f.err
}

func (f *fakeMarket) MovingAverages(ctx context.Context, symbol string, periods []int) (*service.IndicatorResult, error) {
	f.record(symbol)
	f.lastPeriods = periods
	return &service.IndicatorResult{Symbol: symbol, MovingAverages: ta.ComputeMovingAverages(nil, periods)}, f.err
}

func (f *fakeMarket) RiskRadar(ctx context.Context, symbol string) (domain.RiskRadar, error) {
	f.record(symbol)
	return f.radar, f.err
}

type fakeGovernorRecorder struct {
	allowed int
	denied  int
}

func (f *fakeGovernorRecorder) ObserveGovernor(allowed bool) {
	if allowed {
		f.allowed++
	} else {
		f.denied++
	}
}

type failingGovernor struct{}

func (failingGovernor) Admit(context.Context, string, int, time.Duration) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func (failingGovernor) Remaining(context.Context, string, int, time.Duration) (int, error) {
	return 0, errors.New("redis down")
}

func (failingGovernor) ResetAt(context.Context, string, time.Duration) (*time.Time, error) {
	return nil, errors.New("redis down")
}

func (failingGovernor) Reset(context.Context) error { return nil }
func (failingGovernor) Sweep(context.Context) error { return nil }
