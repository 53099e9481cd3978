package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Sweeper interface {
	Sweep(ctx context.Context) error
}

// GovernorSweeper evicts expired rate limit entries on a fixed interval.
type GovernorSweeper struct {
	log      zerolog.Logger
	governor Sweeper
	interval time.Duration
}

func NewGovernorSweeper(log zerolog.Logger, governor Sweeper, intervalSecs int) *GovernorSweeper {
	if intervalSecs <= 0 {
		intervalSecs = 60
	}
	return &GovernorSweeper{
		log:      log.With().Str("job", "governor-sweeper").Logger(),
		governor: governor,
		interval: time.Duration(intervalSecs) * time.Second,
	}
}

// Start blocks until ctx is cancelled.
func (s *GovernorSweeper) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("governor sweeper starting")
	pollLoop(ctx, s.log, "governor-sweep", s.interval, s.governor.Sweep)
	s.log.Info().Msg("governor sweeper stopped")
}
