package domain

import (
	"encoding/json"
	"math"
	"time"
)

// OutputSize selects how much daily history a provider returns.
type OutputSize string

const (
	OutputCompact OutputSize = "compact"
	OutputFull    OutputSize = "full"
)

func (s OutputSize) IsValid() bool {
	return s == OutputCompact || s == OutputFull
}

// PricePoint is one trading day of OHLCV data. A nil-free slice of points
// sorted ascending by Date forms a price series. A Close of NaN marks a day
// the provider reported without a usable close.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type pricePointJSON struct {
	Date   time.Time `json:"date"`
	Open   *float64  `json:"open"`
	High   *float64  `json:"high"`
	Low    *float64  `json:"low"`
	Close  *float64  `json:"close"`
	Volume *float64  `json:"volume"`
}

// MarshalJSON writes non-finite values as null.
func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(pricePointJSON{
		Date:   p.Date,
		Open:   finite(p.Open),
		High:   finite(p.High),
		Low:    finite(p.Low),
		Close:  finite(p.Close),
		Volume: finite(p.Volume),
	})
}

// UnmarshalJSON reads null as NaN.
func (p *PricePoint) UnmarshalJSON(data []byte) error {
	var raw pricePointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = PricePoint{
		Date:   raw.Date,
		Open:   orNaN(raw.Open),
		High:   orNaN(raw.High),
		Low:    orNaN(raw.Low),
		Close:  orNaN(raw.Close),
		Volume: orNaN(raw.Volume),
	}
	return nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// Quote is the latest trading snapshot for a symbol.
type Quote struct {
	Symbol           string    `json:"symbol"`
	Open             float64   `json:"open"`
	High             float64   `json:"high"`
	Low              float64   `json:"low"`
	Price            float64   `json:"price"`
	Volume           float64   `json:"volume"`
	LatestTradingDay string    `json:"latest_trading_day"`
	PreviousClose    float64   `json:"previous_close"`
	Change           float64   `json:"change"`
	ChangePercent    float64   `json:"change_percent"`
	Currency         string    `json:"currency,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// CompanyOverview holds descriptive data about a listed company.
type CompanyOverview struct {
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Exchange       string `json:"exchange,omitempty"`
	Currency       string `json:"currency,omitempty"`
	InstrumentType string `json:"instrument_type,omitempty"`
	Sector         string `json:"sector"`
	Industry       string `json:"industry"`
}

// SymbolMatch is one search hit.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Exchange string `json:"exchange"`
}

// EarningsReport summarises one fiscal period's income statement.
type EarningsReport struct {
	FiscalPeriod string   `json:"fiscal_period"`
	FiscalYear   string   `json:"fiscal_year"`
	PeriodEnd    string   `json:"period_end"`
	FilingDate   string   `json:"filing_date,omitempty"`
	BasicEPS     *float64 `json:"basic_eps,omitempty"`
	DilutedEPS   *float64 `json:"diluted_eps,omitempty"`
	Revenue      *float64 `json:"revenue,omitempty"`
	NetIncome    *float64 `json:"net_income,omitempty"`
}
