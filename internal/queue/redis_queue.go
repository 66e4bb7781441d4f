package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/config"
)

const (
	pollInterval    = 100 * time.Millisecond
	promoteInterval = time.Second
	sweepInterval   = 5 * time.Second
	recordTTL       = time.Hour // terminal job records are GC'd by key expiry
)

// ErrJobNotFound is returned by GetJob/GetJobStatus for unknown or expired ids.
var ErrJobNotFound = errors.New("queue: job not found")

// Job lifecycle states as stored in the job record.
const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateDelayed   = "delayed"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// RedisQueue is the coordination-store-backed Queue provider.
//
// Layout (prefix queue:<name>):
//
//	:wait:<priority>   list of waiting job ids, LPUSH/LMOVE
//	:processing        list of leased job ids
//	:lease             zset jobId -> lease expiry (unix)
//	:delayed           zset jobId -> retry ready time (unix)
//	:job:<id>          JSON job record, TTL 1h
//	:completed/:failed id retention lists, trimmed to the configured keep counts
//	:completed_count/:failed_count  monotonic counters for stats
type RedisQueue struct {
	rdb    *redis.Client
	cfg    config.QueueConfig
	events Events
	prefix string

	wg sync.WaitGroup
}

// NewRedisQueue creates a queue over the given Redis client. The queue owns
// the client and closes it on Close.
func NewRedisQueue(rdb *redis.Client, cfg config.QueueConfig, events Events) *RedisQueue {
	return &RedisQueue{
		rdb:    rdb,
		cfg:    cfg,
		events: events,
		prefix: "queue:" + cfg.Name,
	}
}

func (q *RedisQueue) waitKey(p Priority) string { return q.prefix + ":wait:" + p.String() }
func (q *RedisQueue) processingKey() string     { return q.prefix + ":processing" }
func (q *RedisQueue) leaseKey() string          { return q.prefix + ":lease" }
func (q *RedisQueue) delayedKey() string        { return q.prefix + ":delayed" }
func (q *RedisQueue) jobKey(id string) string   { return q.prefix + ":job:" + id }

type jobRecord struct {
	Job
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (q *RedisQueue) saveRecord(ctx context.Context, rec *jobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, q.jobKey(rec.ID), data, recordTTL).Err()
}

func (q *RedisQueue) loadRecord(ctx context.Context, id string) (*jobRecord, error) {
	data, err := q.rdb.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// AddJob enqueues a payload and returns the job id.
func (q *RedisQueue) AddJob(ctx context.Context, payload Payload, opts Options) (string, error) {
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.cfg.MaxAttempts
	}

	rec := &jobRecord{
		Job: Job{
			ID:          id,
			Payload:     payload,
			Priority:    opts.Priority,
			MaxAttempts: maxAttempts,
			EnqueuedAt:  time.Now(),
		},
		State: StateWaiting,
	}
	if err := q.saveRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("queue: save job record: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.waitKey(opts.Priority), id).Err(); err != nil {
		return "", fmt.Errorf("queue: push job: %w", err)
	}
	return id, nil
}

// Process runs the consuming side: concurrency worker loops plus the delayed
// promoter and the stalled sweeper. It blocks until ctx is cancelled and all
// loops have drained.
func (q *RedisQueue) Process(ctx context.Context, concurrency int, h Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	q.wg.Add(2)
	go q.promoteLoop(ctx)
	go q.sweepLoop(ctx)

	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx, h)
	}

	<-ctx.Done()
	q.wg.Wait()
	return nil
}

func (q *RedisQueue) workerLoop(ctx context.Context, h Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec, err := q.lease(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("queue: lease failed")
			time.Sleep(pollInterval)
			continue
		}
		if rec == nil {
			time.Sleep(pollInterval)
			continue
		}

		q.run(ctx, rec, h)
	}
}

// lease pops the next waiting id (high priority first) into the processing
// list and registers its lease expiry. Returns nil when all lists are empty.
func (q *RedisQueue) lease(ctx context.Context) (*jobRecord, error) {
	for _, p := range []Priority{PriorityHigh, PriorityNormal, PriorityLow} {
		id, err := q.rdb.LMove(ctx, q.waitKey(p), q.processingKey(), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}

		rec, err := q.loadRecord(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			// Record expired while waiting; drop the orphan id.
			q.rdb.LRem(ctx, q.processingKey(), 1, id)
			continue
		}
		if err != nil {
			return nil, err
		}

		rec.Attempts++
		rec.State = StateActive
		if err := q.saveRecord(ctx, rec); err != nil {
			return nil, err
		}
		expiry := float64(time.Now().Add(q.cfg.Lease()).Unix())
		if err := q.rdb.ZAdd(ctx, q.leaseKey(), redis.Z{Score: expiry, Member: id}).Err(); err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, nil
}

// run executes the handler under the lease timeout and settles the job.
func (q *RedisQueue) run(ctx context.Context, rec *jobRecord, h Handler) {
	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.Lease())
	err := h(jobCtx, &rec.Job)
	cancel()

	// The job may have stalled (lease expired and the sweeper requeued it)
	// while the handler ran; settling is last-writer-wins and the consumer
	// side is idempotent, so a duplicate settle is harmless.
	switch {
	case err == nil:
		q.settle(rec, StateCompleted, "")

	default:
		var perm *PermanentError
		if errors.As(err, &perm) {
			q.settle(rec, StateFailed, perm.Reason)
			return
		}
		if rec.Attempts >= rec.MaxAttempts {
			log.Warn().Str("job_id", rec.ID).Int("attempts", rec.Attempts).Err(err).
				Msg("queue: retries exhausted")
			q.settle(rec, StateFailed, "MAX_ATTEMPTS")
			return
		}
		q.retryLater(rec, err)
	}
}

// settle records a terminal state, trims retention and emits the event.
// Settlement runs on a background context so cancellation of the worker pool
// cannot lose an already-processed result.
func (q *RedisQueue) settle(rec *jobRecord, state, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q.rdb.LRem(ctx, q.processingKey(), 1, rec.ID)
	q.rdb.ZRem(ctx, q.leaseKey(), rec.ID)

	rec.State = state
	rec.Reason = reason
	if err := q.saveRecord(ctx, rec); err != nil {
		log.Error().Err(err).Str("job_id", rec.ID).Msg("queue: save terminal record failed")
	}

	retention := q.prefix + ":" + state
	keep := int64(q.cfg.RemoveOnComplete)
	if state == StateFailed {
		keep = int64(q.cfg.RemoveOnFail)
	}
	q.rdb.LPush(ctx, retention, rec.ID)
	q.rdb.LTrim(ctx, retention, 0, keep-1)
	q.rdb.Incr(ctx, retention+"_count")

	if state == StateCompleted && q.events.OnCompleted != nil {
		q.events.OnCompleted(&rec.Job)
	}
	if state == StateFailed && q.events.OnFailed != nil {
		q.events.OnFailed(&rec.Job, reason)
	}
}

// retryLater schedules the next attempt with exponential backoff.
func (q *RedisQueue) retryLater(rec *jobRecord, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q.rdb.LRem(ctx, q.processingKey(), 1, rec.ID)
	q.rdb.ZRem(ctx, q.leaseKey(), rec.ID)

	delay := Backoff(q.cfg.BackoffBase(), rec.Attempts)
	rec.State = StateDelayed
	rec.Retried = true
	if err := q.saveRecord(ctx, rec); err != nil {
		log.Error().Err(err).Str("job_id", rec.ID).Msg("queue: save delayed record failed")
		return
	}
	readyAt := float64(time.Now().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: readyAt, Member: rec.ID}).Err(); err != nil {
		log.Error().Err(err).Str("job_id", rec.ID).Msg("queue: schedule retry failed")
		return
	}

	log.Warn().Str("job_id", rec.ID).Int("attempt", rec.Attempts).Dur("retry_in", delay).
		Err(cause).Msg("queue: transient failure, retrying")
}

// promoteLoop moves delayed jobs whose backoff has elapsed back to their
// priority list.
func (q *RedisQueue) promoteLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promoteDue(ctx)
		}
	}
}

func (q *RedisQueue) promoteDue(ctx context.Context) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	ids, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("queue: promote scan failed")
		}
		return
	}

	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), id).Result()
		if err != nil || removed == 0 {
			continue // another node promoted it
		}
		rec, err := q.loadRecord(ctx, id)
		if err != nil {
			continue
		}
		rec.State = StateWaiting
		if err := q.saveRecord(ctx, rec); err != nil {
			continue
		}
		q.rdb.LPush(ctx, q.waitKey(rec.Priority), id)
	}
}

// sweepLoop requeues jobs whose lease expired without settlement, typically
// because a worker died mid-job.
func (q *RedisQueue) sweepLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweepStalled(ctx)
		}
	}
}

func (q *RedisQueue) sweepStalled(ctx context.Context) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	ids, err := q.rdb.ZRangeByScore(ctx, q.leaseKey(), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("queue: stall scan failed")
		}
		return
	}

	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.leaseKey(), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		q.rdb.LRem(ctx, q.processingKey(), 1, id)

		rec, err := q.loadRecord(ctx, id)
		if err != nil {
			continue
		}
		if rec.State != StateActive {
			continue // settled between scan and here
		}
		rec.State = StateWaiting
		rec.Retried = true
		if err := q.saveRecord(ctx, rec); err != nil {
			continue
		}
		q.rdb.LPush(ctx, q.waitKey(rec.Priority), id)

		log.Warn().Str("job_id", id).Msg("queue: stalled job requeued")
		if q.events.OnStalled != nil {
			q.events.OnStalled(&rec.Job)
		}
	}
}

// GetJob returns the job view of a record.
func (q *RedisQueue) GetJob(ctx context.Context, id string) (*Job, error) {
	rec, err := q.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec.Job, nil
}

// GetJobStatus returns the queue-level state of a job.
func (q *RedisQueue) GetJobStatus(ctx context.Context, id string) (string, error) {
	rec, err := q.loadRecord(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.State, nil
}

// GetStats returns the queue depth snapshot.
func (q *RedisQueue) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	for _, p := range []Priority{PriorityHigh, PriorityNormal, PriorityLow} {
		n, err := q.rdb.LLen(ctx, q.waitKey(p)).Result()
		if err != nil {
			return nil, fmt.Errorf("queue: stats: %w", err)
		}
		stats.Waiting += n
	}
	active, err := q.rdb.ZCard(ctx, q.leaseKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: stats: %w", err)
	}
	stats.Active = active

	delayed, err := q.rdb.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: stats: %w", err)
	}
	stats.Delayed = delayed

	stats.Completed, _ = q.rdb.Get(ctx, q.prefix+":"+StateCompleted+"_count").Int64()
	stats.Failed, _ = q.rdb.Get(ctx, q.prefix+":"+StateFailed+"_count").Int64()
	stats.Total = stats.Waiting + stats.Active + stats.Delayed + stats.Completed + stats.Failed
	return &stats, nil
}

// Close releases the underlying Redis connection.
func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}
