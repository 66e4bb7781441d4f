// Package cache wraps the Redis coordination store.
//
// It owns the ephemeral key layout:
//
//	purchase_job:<jobId>            TTL 3600s  per-job state
//	purchase_status:<userId>        TTL 1800s  user's most recent job (dedup record)
//	flash_sale_status[_<saleId>]    TTL 30s    sale status read cache
//	sale_stats:<saleId>             TTL 300s   derived stats cache
//	rate_limit:<userId>             TTL 60s    sliding admission counter
//	reservation:<jobId>             TTL 60s    in-flight reserve marker (crash compensation)
//
// The durable store (Postgres) remains the source of truth; everything here
// self-heals at the TTL boundary.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/flash-sale-processor/internal/config"
	"github.com/fairyhunter13/flash-sale-processor/internal/model"
)

const (
	jobKeyPrefix         = "purchase_job:"
	userStateKeyPrefix   = "purchase_status:"
	saleStatusKey        = "flash_sale_status"
	saleStatsKeyPrefix   = "sale_stats:"
	rateKeyPrefix        = "rate_limit:"
	reservationKeyPrefix = "reservation:"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// Client wraps the Redis client and exposes domain-level operations.
type Client struct {
	rdb  *redis.Client
	ttls config.CacheConfig
}

// New creates a Redis client and verifies the connection with a PING.
func New(cfg config.RedisConfig, ttls config.CacheConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return &Client{rdb: rdb, ttls: ttls}, nil
}

// NewWithClient wraps an existing Redis client. Primarily used for testing.
func NewWithClient(rdb *redis.Client, ttls config.CacheConfig) *Client {
	return &Client{rdb: rdb, ttls: ttls}
}

// Ping checks connectivity to the coordination store.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close shuts down the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Client) getJSON(ctx context.Context, key string, v any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (c *Client) seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// SetJob stores or overwrites the per-job record.
func (c *Client) SetJob(ctx context.Context, job *model.PurchaseJob) error {
	return c.setJSON(ctx, jobKeyPrefix+job.JobID, job, c.seconds(c.ttls.JobTTL))
}

// GetJob fetches a job record by id. Returns ErrNotFound when absent or expired.
func (c *Client) GetJob(ctx context.Context, jobID string) (*model.PurchaseJob, error) {
	var job model.PurchaseJob
	if err := c.getJSON(ctx, jobKeyPrefix+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// PutUserStateNX writes the user purchase state only when no state exists.
// This conditional write is the admission critical section: of two
// simultaneous admissions for one user, exactly one wins.
func (c *Client) PutUserStateNX(ctx context.Context, state *model.UserPurchaseState) (bool, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, userStateKeyPrefix+state.UserID, data, c.seconds(c.ttls.UserStateTTL)).Result()
}

// replaceUserStateScript swaps the admission record only while it still holds
// the job id the caller observed. Finding a different id means a concurrent
// admission already took the slot.
var replaceUserStateScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, state = pcall(cjson.decode, cur)
  if not ok or state.job_id ~= ARGV[2] then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
return 1
`)

// ReplaceUserState writes the user purchase state only while the stored state
// still carries prevJobID, or the key has expired. It is the
// compare-and-swap companion to PutUserStateNX for re-admission after a
// terminal failure: the takeover and the write are one atomic step.
func (c *Client) ReplaceUserState(ctx context.Context, state *model.UserPurchaseState, prevJobID string) (bool, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return false, err
	}
	won, err := replaceUserStateScript.Run(ctx, c.rdb,
		[]string{userStateKeyPrefix + state.UserID},
		data, prevJobID, c.ttls.UserStateTTL,
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache: replace user state: %w", err)
	}
	return won == 1, nil
}

// SetUserState overwrites the user purchase state (worker-side updates).
func (c *Client) SetUserState(ctx context.Context, state *model.UserPurchaseState) error {
	return c.setJSON(ctx, userStateKeyPrefix+state.UserID, state, c.seconds(c.ttls.UserStateTTL))
}

// GetUserState fetches the user's most recent purchase state.
// Returns ErrNotFound when the user has no state (no purchase in flight).
func (c *Client) GetUserState(ctx context.Context, userID string) (*model.UserPurchaseState, error) {
	var state model.UserPurchaseState
	if err := c.getJSON(ctx, userStateKeyPrefix+userID, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// DeleteUserState frees the admission slot again when enqueueing fails after
// the slot was won.
func (c *Client) DeleteUserState(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, userStateKeyPrefix+userID).Err()
}

// IncrRate increments the user's sliding admission counter and returns the
// new count. The window TTL is set when the counter is created.
func (c *Client) IncrRate(ctx context.Context, userID string) (int64, error) {
	key := rateKeyPrefix + userID
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: incr rate: %w", err)
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, c.seconds(c.ttls.RateWindowTTL)).Err(); err != nil {
			return count, fmt.Errorf("cache: expire rate window: %w", err)
		}
	}
	return count, nil
}

func saleStatusCacheKey(saleID string) string {
	if saleID == "" {
		return saleStatusKey
	}
	return saleStatusKey + "_" + saleID
}

// SetSaleStatus caches the sale status projection under both the generic and
// the sale-scoped key when the projection belongs to the active sale.
func (c *Client) SetSaleStatus(ctx context.Context, status *model.SaleStatusResponse, generic bool) error {
	ttl := c.seconds(c.ttls.SaleStatusTTL)
	if err := c.setJSON(ctx, saleStatusCacheKey(status.SaleID), status, ttl); err != nil {
		return err
	}
	if generic {
		return c.setJSON(ctx, saleStatusCacheKey(""), status, ttl)
	}
	return nil
}

// GetSaleStatus fetches a cached sale status projection.
// Pass an empty saleID for the "current active sale" key.
func (c *Client) GetSaleStatus(ctx context.Context, saleID string) (*model.SaleStatusResponse, error) {
	var status model.SaleStatusResponse
	if err := c.getJSON(ctx, saleStatusCacheKey(saleID), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// InvalidateSaleStatus drops the sale-scoped and generic status keys.
// Write paths call this after mutating stock or sale state.
func (c *Client) InvalidateSaleStatus(ctx context.Context, saleID string) error {
	return c.rdb.Del(ctx, saleStatusCacheKey(saleID), saleStatusCacheKey("")).Err()
}

// SetSaleStats caches the derived stats aggregate.
func (c *Client) SetSaleStats(ctx context.Context, stats *model.SaleStats) error {
	return c.setJSON(ctx, saleStatsKeyPrefix+stats.SaleID, stats, c.seconds(c.ttls.SaleStatsTTL))
}

// GetSaleStats fetches a cached stats aggregate.
func (c *Client) GetSaleStats(ctx context.Context, saleID string) (*model.SaleStats, error) {
	var stats model.SaleStats
	if err := c.getJSON(ctx, saleStatsKeyPrefix+saleID, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// InvalidateSaleStats drops the cached stats aggregate for a sale.
func (c *Client) InvalidateSaleStats(ctx context.Context, saleID string) error {
	return c.rdb.Del(ctx, saleStatsKeyPrefix+saleID).Err()
}

// SetReservation records an in-flight reservation for a job. If the worker
// dies between reserve and confirm, the retry finds the marker and releases
// the dangling units before re-reserving.
func (c *Client) SetReservation(ctx context.Context, jobID, productID string) error {
	return c.rdb.Set(ctx, reservationKeyPrefix+jobID, productID, c.seconds(c.ttls.StockTTL)).Err()
}

// GetReservation returns the productID of an outstanding reservation marker.
// Returns ErrNotFound when the job has no outstanding reservation.
func (c *Client) GetReservation(ctx context.Context, jobID string) (string, error) {
	productID, err := c.rdb.Get(ctx, reservationKeyPrefix+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return productID, nil
}

// ClearReservation removes the reservation marker after confirm or release.
func (c *Client) ClearReservation(ctx context.Context, jobID string) error {
	return c.rdb.Del(ctx, reservationKeyPrefix+jobID).Err()
}
