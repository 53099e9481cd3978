package job

import (
	"context"
	"time"

	"market-radar/internal/domain"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyInterval      = 30 * time.Minute
	historySymbolsPerRun = 2
	historyStartDelay    = 10 * time.Second
)

type MarketRefresher interface {
	Quote(ctx context.Context, symbol string) (*domain.Quote, error)
	History(ctx context.Context, symbol string, size domain.OutputSize) ([]domain.PricePoint, error)
}

// WatchlistPoller keeps quotes for a fixed symbol list warm in the cache and
// walks the list round-robin to refresh persisted daily history.
type WatchlistPoller struct {
	tracer       trace.Tracer
	log          zerolog.Logger
	market       MarketRefresher
	symbols      []string
	pollInterval time.Duration
	historyDelay time.Duration
}

func NewWatchlistPoller(tracer trace.Tracer, log zerolog.Logger, market MarketRefresher, symbols []string, pollIntervalSecs int) *WatchlistPoller {
	if pollIntervalSecs <= 0 {
		pollIntervalSecs = 60
	}
	return &WatchlistPoller{
		tracer:       tracer,
		log:          log.With().Str("job", "watchlist-poller").Logger(),
		market:       market,
		symbols:      symbols,
		pollInterval: time.Duration(pollIntervalSecs) * time.Second,
		historyDelay: historyStartDelay,
	}
}

// Start launches the polling goroutines and blocks until ctx is cancelled.
// An empty watchlist returns immediately.
func (p *WatchlistPoller) Start(ctx context.Context) {
	if len(p.symbols) == 0 {
		p.log.Info().Msg("watchlist empty, poller disabled")
		return
	}
	p.log.Info().Strs("symbols", p.symbols).Msg("watchlist poller starting")

	go pollLoop(ctx, p.log, "quotes", p.pollInterval, p.refreshQuotes)
	go p.pollHistory(ctx)

	<-ctx.Done()
	p.log.Info().Msg("watchlist poller stopped")
}

func (p *WatchlistPoller) refreshQuotes(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "job.refresh-quotes")
	defer span.End()
	span.SetAttributes(attribute.Int("symbols", len(p.symbols)))

	var lastErr error
	for _, symbol := range p.symbols {
		if _, err := p.market.Quote(ctx, symbol); err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("quote refresh failed")
			lastErr = err
		}
	}
	return lastErr
}

func (p *WatchlistPoller) pollHistory(ctx context.Context) {
	// Stagger against the quote loop.
	select {
	case <-ctx.Done():
		return
	case <-time.After(p.historyDelay):
	}

	index := 0
	pollLoop(ctx, p.log, "history", historyInterval, func(ctx context.Context) error {
		p.refreshHistoryBatch(ctx, &index, historySymbolsPerRun)
		return nil
	})
}

func (p *WatchlistPoller) refreshHistoryBatch(ctx context.Context, index *int, count int) {
	for i := 0; i < count && i < len(p.symbols); i++ {
		symbol := p.symbols[*index%len(p.symbols)]
		*index++

		if _, err := p.market.History(ctx, symbol, domain.OutputCompact); err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("history refresh failed")
		}
	}
}
