package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"market-radar/internal/domain"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func TestNewWatchlistPollerInterval(t *testing.T) {
	poller := NewWatchlistPoller(testTracer, zerolog.Nop(), &stubMarket{}, []string{"AAPL"}, 2)
	if poller.pollInterval != 2*time.Second {
		t.Fatalf("expected 2s interval, got %v", poller.pollInterval)
	}
	if def := NewWatchlistPoller(testTracer, zerolog.Nop(), &stubMarket{}, nil, 0); def.pollInterval != time.Minute {
		t.Fatalf("expected default interval, got %v", def.pollInterval)
	}
}

func TestWatchlistPollerStart(t *testing.T) {
	t.Parallel()

	stub := &stubMarket{}
	poller := NewWatchlistPoller(testTracer, zerolog.Nop(), stub, []string{"AAPL", "MSFT"}, 1)
	poller.historyDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	eventually(t, func() bool { return stub.quoteCount() >= 2 && stub.historyCount() >= 2 })
	cancel()
	<-done
}

func TestWatchlistPollerEmptyReturns(t *testing.T) {
	poller := NewWatchlistPoller(testTracer, zerolog.Nop(), &stubMarket{}, nil, 1)

	done := make(chan struct{})
	go func() {
		poller.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return for an empty watchlist")
	}
}

func TestRefreshQuotesContinuesAfterFailure(t *testing.T) {
	stub := &stubMarket{failQuote: "AAPL"}
	poller := NewWatchlistPoller(testTracer, zerolog.Nop(), stub, []string{"AAPL", "MSFT"}, 1)

	if err := poller.refreshQuotes(context.Background()); err == nil {
		t.Fatal("expected error to be reported")
	}
	if got := stub.quoteSymbols; len(got) != 2 || got[1] != "MSFT" {
		t.Fatalf("expected both symbols attempted, got %v", got)
	}
}

func TestRefreshHistoryBatchRoundRobin(t *testing.T) {
	stub := &stubMarket{}
	poller := NewWatchlistPoller(testTracer, zerolog.Nop(), stub, []string{"AAPL", "MSFT", "TSLA"}, 1)

	idx := 0
	poller.refreshHistoryBatch(context.Background(), &idx, 2)
	poller.refreshHistoryBatch(context.Background(), &idx, 2)

	want := []string{"AAPL", "MSFT", "TSLA", "AAPL"}
	if len(stub.historySymbols) != len(want) {
		t.Fatalf("expected %d refreshes, got %v", len(want), stub.historySymbols)
	}
	for i, s := range want {
		if stub.historySymbols[i] != s {
			t.Fatalf("unexpected order: %v", stub.historySymbols)
		}
	}
}

func TestGovernorSweeperRunsUntilCancelled(t *testing.T) {
	t.Parallel()

	sweeper := &stubSweeper{err: errors.New("transient")}
	job := NewGovernorSweeper(zerolog.Nop(), sweeper, 1)
	if job.interval != time.Second {
		t.Fatalf("expected 1s interval, got %v", job.interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	eventually(t, func() bool { return sweeper.count() >= 1 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

type stubMarket struct {
	mu             sync.Mutex
	failQuote      string
	quoteSymbols   []string
	historySymbols []string
}

func (s *stubMarket) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quoteSymbols = append(s.quoteSymbols, symbol)
	if symbol == s.failQuote {
		return nil, errors.New("quote failed")
	}
	return &domain.Quote{Symbol: symbol}, nil
}

func (s *stubMarket) History(ctx context.Context, symbol string, size domain.OutputSize) ([]domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historySymbols = append(s.historySymbols, symbol)
	return nil, nil
}

func (s *stubMarket) quoteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quoteSymbols)
}

func (s *stubMarket) historyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.historySymbols)
}

type stubSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSweeper) Sweep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *stubSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
