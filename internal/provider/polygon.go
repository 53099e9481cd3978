package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"market-radar/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const polygonBaseURL = "https://api.polygon.io"

// PolygonProvider reads quarterly financials from Polygon.io.
type PolygonProvider struct {
	upstream
	baseURL string
	apiKey  string
}

func NewPolygonProvider(apiKey string, tracer trace.Tracer, observer Observer) *PolygonProvider {
	// Free tier allows 5 calls per minute.
	u := newUpstream("polygon", tracer, 5.0/60.0, 5)
	u.observer = observer
	return &PolygonProvider{upstream: u, baseURL: polygonBaseURL, apiKey: strings.TrimSpace(apiKey)}
}

type polygonValue struct {
	Value *float64 `json:"value"`
}

// FetchEarnings returns up to limit quarterly reports, newest first.
func (p *PolygonProvider) FetchEarnings(ctx context.Context, symbol string, limit int) ([]domain.EarningsReport, error) {
	if p.apiKey == "" {
		return nil, domain.NewUpstreamError(p.name, "financials", 0, fmt.Errorf("POLYGON_API_KEY: %w", domain.ErrMissingCredentials))
	}
	if limit <= 0 {
		limit = 4
	}

	params := url.Values{}
	params.Set("ticker", strings.ToUpper(symbol))
	params.Set("timeframe", "quarterly")
	params.Set("order", "desc")
	params.Set("sort", "period_of_report_date")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("apiKey", p.apiKey)

	body, err := p.get(ctx, "financials", p.baseURL+"/vX/reference/financials?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Status  string `json:"status"`
		Error   string `json:"error"`
		Results []struct {
			FiscalPeriod string `json:"fiscal_period"`
			FiscalYear   string `json:"fiscal_year"`
			EndDate      string `json:"end_date"`
			FilingDate   string `json:"filing_date"`
			Financials   struct {
				IncomeStatement struct {
					BasicEPS   polygonValue `json:"basic_earnings_per_share"`
					DilutedEPS polygonValue `json:"diluted_earnings_per_share"`
					Revenues   polygonValue `json:"revenues"`
					NetIncome  polygonValue `json:"net_income_loss"`
				} `json:"income_statement"`
			} `json:"financials"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewUpstreamError(p.name, "financials", 0, fmt.Errorf("parse financials: %w", err))
	}
	if !strings.EqualFold(raw.Status, "OK") {
		return nil, domain.NewUpstreamError(p.name, "financials", 0, fmt.Errorf("financials status %q: %s", raw.Status, raw.Error))
	}

	reports := make([]domain.EarningsReport, 0, len(raw.Results))
	for _, row := range raw.Results {
		is := row.Financials.IncomeStatement
		reports = append(reports, domain.EarningsReport{
			FiscalPeriod: row.FiscalPeriod,
			FiscalYear:   row.FiscalYear,
			PeriodEnd:    row.EndDate,
			FilingDate:   row.FilingDate,
			BasicEPS:     is.BasicEPS.Value,
			DilutedEPS:   is.DilutedEPS.Value,
			Revenue:      is.Revenues.Value,
			NetIncome:    is.NetIncome.Value,
		})
	}
	return reports, nil
}
