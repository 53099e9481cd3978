package repository

import (
	"context"
	"math"
	"time"

	"market-radar/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const createPriceBarsTable = `
CREATE TABLE IF NOT EXISTS price_bars (
    symbol      TEXT        NOT NULL,
    trade_date  DATE        NOT NULL,
    open        NUMERIC,
    high        NUMERIC,
    low         NUMERIC,
    close       NUMERIC,
    volume      NUMERIC,
    source      TEXT        NOT NULL DEFAULT 'yahoo',
    fetched_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (symbol, trade_date)
);

CREATE INDEX IF NOT EXISTS idx_price_bars_symbol_date
    ON price_bars (symbol, trade_date DESC);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PriceBarRepository stores raw daily bars so history can be served when the
// upstream provider is unavailable.
type PriceBarRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPriceBarRepository(pool PgxPool, tracer trace.Tracer) *PriceBarRepository {
	return &PriceBarRepository{pool: pool, tracer: tracer}
}

func (r *PriceBarRepository) RunMigrations(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "price-bar-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createPriceBarsTable)
	return err
}

// UpsertBars writes bars for symbol, replacing existing rows for the same day.
// Non-finite values are stored as NULL.
func (r *PriceBarRepository) UpsertBars(ctx context.Context, symbol, source string, bars []domain.PricePoint) error {
	if len(bars) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "price-bar-repo.upsert-bars")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("bars", len(bars)))

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(
			`INSERT INTO price_bars (symbol, trade_date, open, high, low, close, volume, source, fetched_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			 ON CONFLICT (symbol, trade_date) DO UPDATE SET
			     open = EXCLUDED.open,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     close = EXCLUDED.close,
			     volume = EXCLUDED.volume,
			     source = EXCLUDED.source,
			     fetched_at = EXCLUDED.fetched_at`,
			symbol, b.Date.UTC().Truncate(24*time.Hour), nullable(b.Open), nullable(b.High), nullable(b.Low), nullable(b.Close), nullable(b.Volume), source,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// GetBarsSince returns bars on or after from, ascending by date.
func (r *PriceBarRepository) GetBarsSince(ctx context.Context, symbol string, from time.Time) ([]domain.PricePoint, error) {
	ctx, span := r.tracer.Start(ctx, "price-bar-repo.get-bars-since")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT trade_date, open, high, low, close, volume
		 FROM price_bars
		 WHERE symbol = $1 AND trade_date >= $2
		 ORDER BY trade_date ASC`,
		symbol, from.UTC().Truncate(24*time.Hour),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bars := []domain.PricePoint{}
	for rows.Next() {
		var (
			date                             time.Time
			open, high, low, closing, volume *float64
		)
		if err := rows.Scan(&date, &open, &high, &low, &closing, &volume); err != nil {
			return nil, err
		}
		bars = append(bars, domain.PricePoint{
			Date:   date.UTC(),
			Open:   orNaN(open),
			High:   orNaN(high),
			Low:    orNaN(low),
			Close:  orNaN(closing),
			Volume: orNaN(volume),
		})
	}
	return bars, rows.Err()
}

func nullable(v float64) *float64 {
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
