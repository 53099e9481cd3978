package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"market-radar/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	yahooBaseURL = "https://query1.finance.yahoo.com"

	compactHistoryDays = 100
	fullHistoryYears   = 20
	fallbackYears      = 5
	minFullBars        = 100
)

// YahooProvider reads quotes, daily history and symbol metadata from the
// public Yahoo Finance chart and search endpoints.
type YahooProvider struct {
	upstream
	baseURL string
	now     func() time.Time
}

func NewYahooProvider(tracer trace.Tracer, observer Observer) *YahooProvider {
	u := newUpstream("yahoo", tracer, 5, 5)
	u.observer = observer
	return &YahooProvider{upstream: u, baseURL: yahooBaseURL, now: time.Now}
}

type chartMeta struct {
	Currency             string  `json:"currency"`
	Symbol               string  `json:"symbol"`
	ExchangeName         string  `json:"exchangeName"`
	FullExchangeName     string  `json:"fullExchangeName"`
	InstrumentType       string  `json:"instrumentType"`
	RegularMarketPrice   float64 `json:"regularMarketPrice"`
	RegularMarketTime    int64   `json:"regularMarketTime"`
	RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
	RegularMarketVolume  float64 `json:"regularMarketVolume"`
	ChartPreviousClose   float64 `json:"chartPreviousClose"`
	PreviousClose        float64 `json:"previousClose"`
	LongName             string  `json:"longName"`
	ShortName            string  `json:"shortName"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *YahooProvider) chart(ctx context.Context, op, symbol string, params url.Values) (*chartResult, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(symbol), params.Encode())

	body, err := p.get(ctx, op, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var raw chartResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewUpstreamError(p.name, op, 0, fmt.Errorf("parse chart for %s: %w", symbol, err))
	}
	if raw.Chart.Error != nil {
		if strings.EqualFold(raw.Chart.Error.Code, "Not Found") {
			return nil, domain.NewUpstreamError(p.name, op, 0, domain.ErrNotFound)
		}
		return nil, domain.NewUpstreamError(p.name, op, 0, errors.New(raw.Chart.Error.Description))
	}
	if len(raw.Chart.Result) == 0 {
		return nil, domain.NewUpstreamError(p.name, op, 0, domain.ErrNotFound)
	}
	return &raw.Chart.Result[0], nil
}

// FetchHistory returns daily bars sorted ascending. Compact covers the last
// 100 days; full covers 20 years and retries with 5 years when the long range
// comes back with fewer than 100 bars.
func (p *YahooProvider) FetchHistory(ctx context.Context, symbol string, size domain.OutputSize) ([]domain.PricePoint, error) {
	now := p.now().UTC()
	if size != domain.OutputFull {
		return p.history(ctx, symbol, now.AddDate(0, 0, -compactHistoryDays), now)
	}

	points, err := p.history(ctx, symbol, now.AddDate(-fullHistoryYears, 0, 0), now)
	if err == nil && len(points) >= minFullBars {
		return points, nil
	}
	fallback, ferr := p.history(ctx, symbol, now.AddDate(-fallbackYears, 0, 0), now)
	if ferr != nil {
		if err != nil {
			return nil, err
		}
		return points, nil
	}
	if len(fallback) > len(points) {
		return fallback, nil
	}
	return points, nil
}

func (p *YahooProvider) history(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", from.Unix()))
	params.Set("period2", fmt.Sprintf("%d", to.Unix()))
	params.Set("interval", "1d")
	params.Set("includePrePost", "false")

	res, err := p.chart(ctx, "history", symbol, params)
	if err != nil {
		return nil, err
	}
	return chartToPoints(res), nil
}

func chartToPoints(res *chartResult) []domain.PricePoint {
	if len(res.Indicators.Quote) == 0 {
		return []domain.PricePoint{}
	}
	q := res.Indicators.Quote[0]
	points := make([]domain.PricePoint, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		points = append(points, domain.PricePoint{
			Date:   time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:   valueAt(q.Open, i),
			High:   valueAt(q.High, i),
			Low:    valueAt(q.Low, i),
			Close:  valueAt(q.Close, i),
			Volume: valueAt(q.Volume, i),
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}

func valueAt(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}

// FetchQuote derives the latest quote from a short chart window.
func (p *YahooProvider) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	params := url.Values{}
	params.Set("range", "5d")
	params.Set("interval", "1d")

	res, err := p.chart(ctx, "quote", symbol, params)
	if err != nil {
		return nil, err
	}

	meta := res.Meta
	points := chartToPoints(res)
	quote := &domain.Quote{
		Symbol:    strings.ToUpper(symbol),
		Price:     meta.RegularMarketPrice,
		High:      meta.RegularMarketDayHigh,
		Low:       meta.RegularMarketDayLow,
		Volume:    meta.RegularMarketVolume,
		Currency:  meta.Currency,
		FetchedAt: p.now().UTC(),
	}
	if meta.RegularMarketTime > 0 {
		quote.LatestTradingDay = time.Unix(meta.RegularMarketTime, 0).UTC().Format("2006-01-02")
	}

	prev := meta.PreviousClose
	if n := len(points); n > 0 {
		last := points[n-1]
		quote.Open = finiteOr(last.Open, 0)
		if quote.High == 0 {
			quote.High = finiteOr(last.High, 0)
		}
		if quote.Low == 0 {
			quote.Low = finiteOr(last.Low, 0)
		}
		if quote.Volume == 0 {
			quote.Volume = finiteOr(last.Volume, 0)
		}
		if quote.Price == 0 {
			quote.Price = finiteOr(last.Close, 0)
		}
		if quote.LatestTradingDay == "" {
			quote.LatestTradingDay = last.Date.Format("2006-01-02")
		}
		if prev == 0 && n > 1 {
			prev = finiteOr(points[n-2].Close, 0)
		}
	}
	if prev == 0 {
		prev = meta.ChartPreviousClose
	}
	quote.PreviousClose = prev
	if prev > 0 {
		quote.Change = round(quote.Price-prev, 4)
		quote.ChangePercent = round((quote.Price-prev)/prev*100, 4)
	}
	return quote, nil
}

// FetchCompanyOverview combines chart metadata with the search listing's
// sector and industry.
func (p *YahooProvider) FetchCompanyOverview(ctx context.Context, symbol string) (*domain.CompanyOverview, error) {
	params := url.Values{}
	params.Set("range", "1d")
	params.Set("interval", "1d")

	res, err := p.chart(ctx, "overview", symbol, params)
	if err != nil {
		return nil, err
	}

	meta := res.Meta
	overview := &domain.CompanyOverview{
		Symbol:         strings.ToUpper(symbol),
		Name:           firstNonEmpty(meta.LongName, meta.ShortName),
		Exchange:       firstNonEmpty(meta.FullExchangeName, meta.ExchangeName),
		Currency:       meta.Currency,
		InstrumentType: meta.InstrumentType,
	}

	if hits, err := p.search(ctx, symbol, 5); err == nil {
		for _, hit := range hits {
			if !strings.EqualFold(hit.Symbol, symbol) {
				continue
			}
			overview.Name = firstNonEmpty(overview.Name, hit.LongName, hit.ShortName)
			overview.Sector = firstNonEmpty(hit.SectorDisp, hit.Sector)
			overview.Industry = firstNonEmpty(hit.IndustryDisp, hit.Industry)
			break
		}
	}
	if overview.Name != "" {
		overview.Description = fmt.Sprintf("%s (%s) trades on %s.", overview.Name, overview.Symbol, firstNonEmpty(overview.Exchange, "an unknown exchange"))
	}
	return overview, nil
}

// FetchCompanyDisplayName returns the company's long name.
func (p *YahooProvider) FetchCompanyDisplayName(ctx context.Context, symbol string) (string, error) {
	overview, err := p.FetchCompanyOverview(ctx, symbol)
	if err != nil {
		return "", err
	}
	if overview.Name == "" {
		return "", domain.NewUpstreamError(p.name, "overview", 0, domain.ErrNotFound)
	}
	return overview.Name, nil
}

type searchQuote struct {
	Symbol       string `json:"symbol"`
	ShortName    string `json:"shortname"`
	LongName     string `json:"longname"`
	QuoteType    string `json:"quoteType"`
	Exchange     string `json:"exchange"`
	ExchDisp     string `json:"exchDisp"`
	Sector       string `json:"sector"`
	SectorDisp   string `json:"sectorDisp"`
	Industry     string `json:"industry"`
	IndustryDisp string `json:"industryDisp"`
}

func (p *YahooProvider) search(ctx context.Context, keywords string, limit int) ([]searchQuote, error) {
	params := url.Values{}
	params.Set("q", keywords)
	params.Set("quotesCount", fmt.Sprintf("%d", limit))
	params.Set("newsCount", "0")
	params.Set("listsCount", "0")

	body, err := p.get(ctx, "search", p.baseURL+"/v1/finance/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Quotes []searchQuote `json:"quotes"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewUpstreamError(p.name, "search", 0, fmt.Errorf("parse search: %w", err))
	}
	return raw.Quotes, nil
}

// SearchSymbols returns listings matching keywords.
func (p *YahooProvider) SearchSymbols(ctx context.Context, keywords string) ([]domain.SymbolMatch, error) {
	hits, err := p.search(ctx, keywords, 10)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SymbolMatch, 0, len(hits))
	for _, hit := range hits {
		if hit.Symbol == "" {
			continue
		}
		out = append(out, domain.SymbolMatch{
			Symbol:   hit.Symbol,
			Name:     sanitizeText(firstNonEmpty(hit.LongName, hit.ShortName), 200),
			Type:     hit.QuoteType,
			Exchange: firstNonEmpty(hit.ExchDisp, hit.Exchange),
		})
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
