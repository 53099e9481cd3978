// Package job runs the background loops: watchlist refresh and governor
// sweeping.
package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// pollLoop runs fn immediately and then every interval until ctx is done.
func pollLoop(ctx context.Context, log zerolog.Logger, name string, interval time.Duration, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("loop", name).Msg("initial run failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Warn().Err(err).Str("loop", name).Msg("run failed")
			}
		}
	}
}
