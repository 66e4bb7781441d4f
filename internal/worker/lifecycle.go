package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// LifecycleService applies due sale transitions.
type LifecycleService interface {
	TransitionDue(ctx context.Context) error
}

// sweepTimeout caps one lifecycle sweep. Transitions are two UPDATEs plus
// cache invalidations; anything longer means the database is in trouble and
// the next tick should start fresh.
const sweepTimeout = 5 * time.Second

// StartLifecycleTicker registers the 1s sale-transition sweep and starts the
// scheduler. The 1s granularity keeps transitions tight at window
// boundaries; the advisory lock inside TransitionDue keeps multiple nodes
// from sweeping at once.
//
// The returned *cron.Cron must be stopped on shutdown:
//
//	c, err := StartLifecycleTicker(saleService)
//	defer c.Stop() // waits for a running sweep to finish
func StartLifecycleTicker(sales LifecycleService) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("* * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		if err := sales.TransitionDue(ctx); err != nil {
			log.Error().Err(err).Msg("sale lifecycle sweep failed")
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	log.Info().Msg("lifecycle ticker started")
	return c, nil
}
