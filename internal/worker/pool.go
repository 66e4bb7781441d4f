// Package worker owns the long-lived background tasks of the purchase
// pipeline: the purchase worker pool and the lifecycle scheduler. Both are
// started by the supervisor in main and stopped by context cancellation.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/metrics"
	"github.com/fairyhunter13/flash-sale-processor/internal/queue"
)

// PurchaseProcessor runs the purchase transaction for one job.
type PurchaseProcessor interface {
	ProcessJob(ctx context.Context, job *queue.Job) error
}

// Pool drains the purchase queue with a fixed number of workers. The queue
// smooths the sale-open thundering herd into this bounded concurrency so the
// database sees a steady offered load.
type Pool struct {
	q           queue.Queue
	purchases   PurchaseProcessor
	concurrency int
}

// NewPool creates a worker pool over the given queue.
func NewPool(q queue.Queue, purchases PurchaseProcessor, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{q: q, purchases: purchases, concurrency: concurrency}
}

// Run starts consuming jobs and blocks until ctx is cancelled and in-flight
// jobs have drained.
func (p *Pool) Run(ctx context.Context) error {
	log.Info().Int("concurrency", p.concurrency).Msg("purchase worker pool started")
	err := p.q.Process(ctx, p.concurrency, p.handle)
	log.Info().Msg("purchase worker pool stopped")
	return err
}

func (p *Pool) handle(ctx context.Context, job *queue.Job) error {
	start := time.Now()
	err := p.purchases.ProcessJob(ctx, job)
	metrics.PurchaseDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.PurchasesTotal.WithLabelValues("completed").Inc()
	}
	return err
}
