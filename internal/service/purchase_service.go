package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/cache"
	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/queue"
	"github.com/fairyhunter13/flash-sale-processor/pkg/database"
)

// OrderRepositoryInterface defines the interface for order data access.
type OrderRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error
	GetByUserProduct(ctx context.Context, tx database.TxQuerier, userID, productID string) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx database.TxQuerier, orderID, status string) error
}

// StockMutator is the reserve/confirm/release protocol the worker drives.
type StockMutator interface {
	Reserve(ctx context.Context, productID string, qty int) (*model.Stock, error)
	Release(ctx context.Context, productID string, qty int) (*model.Stock, error)
	ConfirmTx(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error)
}

// SaleReader is the uncached sale lookup the gateway and worker validate against.
type SaleReader interface {
	Detail(ctx context.Context, saleID string) (*model.SaleDetail, error)
	ActiveDetail(ctx context.Context) (*model.SaleDetail, error)
}

// PurchaseQueue is the producer-side queue surface.
type PurchaseQueue interface {
	AddJob(ctx context.Context, payload queue.Payload, opts queue.Options) (string, error)
	GetStats(ctx context.Context) (*queue.Stats, error)
}

// CoordinationStore defines the ephemeral-state operations of the purchase
// pipeline: job records, user purchase state, rate tokens, reservation
// markers and cache invalidation.
type CoordinationStore interface {
	SetJob(ctx context.Context, job *model.PurchaseJob) error
	GetJob(ctx context.Context, jobID string) (*model.PurchaseJob, error)

	PutUserStateNX(ctx context.Context, state *model.UserPurchaseState) (bool, error)
	ReplaceUserState(ctx context.Context, state *model.UserPurchaseState, prevJobID string) (bool, error)
	SetUserState(ctx context.Context, state *model.UserPurchaseState) error
	GetUserState(ctx context.Context, userID string) (*model.UserPurchaseState, error)
	DeleteUserState(ctx context.Context, userID string) error

	IncrRate(ctx context.Context, userID string) (int64, error)

	SetReservation(ctx context.Context, jobID, productID string) error
	GetReservation(ctx context.Context, jobID string) (string, error)
	ClearReservation(ctx context.Context, jobID string) error

	InvalidateSaleStatus(ctx context.Context, saleID string) error
	InvalidateSaleStats(ctx context.Context, saleID string) error
}

// PurchaseService implements the admission gateway and the worker-side
// purchase transaction.
type PurchaseService struct {
	pool      TxBeginner
	store     CoordinationStore
	q         PurchaseQueue
	sales     SaleReader
	stock     StockMutator
	orderRepo OrderRepositoryInterface

	maxAttemptsPerMinute int64
}

// NewPurchaseService creates a new PurchaseService.
func NewPurchaseService(
	pool *pgxpool.Pool,
	store CoordinationStore,
	q PurchaseQueue,
	sales SaleReader,
	stock StockMutator,
	orderRepo OrderRepositoryInterface,
	maxAttemptsPerMinute int,
) *PurchaseService {
	return NewPurchaseServiceWithTxBeginner(pool, store, q, sales, stock, orderRepo, maxAttemptsPerMinute)
}

// NewPurchaseServiceWithTxBeginner creates a PurchaseService with a custom
// TxBeginner. Primarily used for testing.
func NewPurchaseServiceWithTxBeginner(
	pool TxBeginner,
	store CoordinationStore,
	q PurchaseQueue,
	sales SaleReader,
	stock StockMutator,
	orderRepo OrderRepositoryInterface,
	maxAttemptsPerMinute int,
) *PurchaseService {
	return &PurchaseService{
		pool:                 pool,
		store:                store,
		q:                    q,
		sales:                sales,
		stock:                stock,
		orderRepo:            orderRepo,
		maxAttemptsPerMinute: int64(maxAttemptsPerMinute),
	}
}

// Admit validates a purchase intent, enforces dedup and rate limiting, and
// enqueues a purchase job. saleID may be empty; the most recent active sale
// is resolved in that case.
//
// Returns:
//   - ErrDuplicateInFlight when the user already has a queued/processing job
//   - ErrAlreadyPurchased when the user's last job completed successfully
//   - ErrTooManyAttempts when the 60s window count exceeds the limit
//   - ErrSaleNotActive when saleID is empty and no sale is active
func (s *PurchaseService) Admit(ctx context.Context, userID, saleID string) (*model.AdmitResponse, error) {
	// 1. Dedup against the user's most recent job.
	prev, err := s.store.GetUserState(ctx, userID)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("get user state: %w", err)
	}
	if prev != nil {
		if prev.InFlight() {
			return nil, ErrDuplicateInFlight
		}
		if prev.Status == model.JobCompleted && prev.Success {
			return nil, ErrAlreadyPurchased
		}
	}

	// 2. Rate token. Counted before enqueueing so rejected admissions also
	// count against the window.
	count, err := s.store.IncrRate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("increment rate token: %w", err)
	}
	if count > s.maxAttemptsPerMinute {
		return nil, ErrTooManyAttempts
	}

	// 3. Resolve the sale when the client did not name one. A caller-supplied
	// saleID is not re-validated here; the worker validates at commit time.
	if saleID == "" {
		detail, err := s.sales.ActiveDetail(ctx)
		if err != nil {
			if errors.Is(err, ErrSaleNotFound) {
				return nil, ErrSaleNotActive
			}
			return nil, fmt.Errorf("resolve active sale: %w", err)
		}
		saleID = detail.Sale.ID
	}

	// 4. Take the per-user admission slot. With no prior state, SetNX lets
	// exactly one of two racing admissions in. A stale terminal state is
	// taken over with a compare-and-swap keyed on its job id: a plain
	// delete-then-SetNX would let a second racer delete the first racer's
	// fresh record and claim the slot again.
	now := time.Now()
	jobID := uuid.NewString()
	newState := &model.UserPurchaseState{
		UserID:    userID,
		Status:    model.JobQueued,
		JobID:     jobID,
		UpdatedAt: now,
	}
	var won bool
	if prev == nil {
		won, err = s.store.PutUserStateNX(ctx, newState)
	} else {
		won, err = s.store.ReplaceUserState(ctx, newState, prev.JobID)
	}
	if err != nil {
		return nil, fmt.Errorf("claim admission slot: %w", err)
	}
	if !won {
		return nil, ErrDuplicateInFlight
	}

	job := &model.PurchaseJob{
		JobID:      jobID,
		UserID:     userID,
		SaleID:     saleID,
		Status:     model.JobQueued,
		EnqueuedAt: now,
	}
	if err := s.store.SetJob(ctx, job); err != nil {
		_ = s.store.DeleteUserState(ctx, userID)
		return nil, fmt.Errorf("store job record: %w", err)
	}

	// 5. Enqueue with normal priority.
	_, err = s.q.AddJob(ctx, queue.Payload{
		UserID:     userID,
		SaleID:     saleID,
		EnqueuedAt: now,
	}, queue.Options{JobID: jobID, Priority: queue.PriorityNormal})
	if err != nil {
		_ = s.store.DeleteUserState(ctx, userID)
		return nil, fmt.Errorf("enqueue purchase job: %w", err)
	}

	// 6. Estimate wait from queue depth: ~5s per outstanding job, min 5s.
	var wait int64 = 5
	if stats, statsErr := s.q.GetStats(ctx); statsErr == nil {
		if est := 5 * (stats.Waiting + stats.Active); est > wait {
			wait = est
		}
	}

	log.Info().
		Str("user_id", userID).
		Str("sale_id", saleID).
		Str("job_id", jobID).
		Msg("purchase admitted")

	return &model.AdmitResponse{
		JobID:             jobID,
		Status:            model.JobQueued,
		EstimatedWaitTime: wait,
	}, nil
}

// ProcessJob runs the purchase transaction for one leased job. It is the
// queue handler: a nil return completes the job, a *queue.PermanentError
// fails it terminally, anything else is retried with backoff.
//
// The job may be a replay (stalled lease, transient retry). Replays first
// release any reservation the previous attempt left dangling, and an order
// row inserted by a previous attempt is resumed rather than failed.
func (s *PurchaseService) ProcessJob(ctx context.Context, job *queue.Job) error {
	userID := job.Payload.UserID
	saleID := job.Payload.SaleID

	s.markProcessing(ctx, job)

	// Crash compensation: a dangling reservation marker means a previous
	// attempt reserved stock but never confirmed or released it. Keyed on
	// the marker itself rather than the redelivery flag, so a replay whose
	// delivery metadata was lost still compensates.
	if err := s.releaseDangling(ctx, job); err != nil {
		return fmt.Errorf("release dangling reservation: %w", err)
	}

	// Validate the sale at commit time, against the uncached path.
	detail, err := s.sales.Detail(ctx, saleID)
	if err != nil {
		if errors.Is(err, ErrSaleNotFound) {
			return queue.Permanent(CodeSaleNotActive, err)
		}
		return fmt.Errorf("load sale %s: %w", saleID, err)
	}
	if detail.Sale.StatusAt(time.Now()) != model.SaleActive {
		return queue.Permanent(CodeSaleNotActive, ErrSaleNotActive)
	}
	productID := detail.Product.ID

	// Reserve one unit. The conditional update is the oversell gate.
	if _, err := s.stock.Reserve(ctx, productID, 1); err != nil {
		if errors.Is(err, ErrOutOfStock) {
			return queue.Permanent(CodeOutOfStock, err)
		}
		return fmt.Errorf("reserve stock: %w", err)
	}
	if err := s.store.SetReservation(ctx, job.ID, productID); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("reservation marker write failed")
	}

	orderID, err := s.commitOrder(ctx, job, userID, productID)
	if err != nil {
		return err
	}
	_ = s.store.ClearReservation(ctx, job.ID)

	s.markCompleted(ctx, job, userID, saleID, orderID)
	return nil
}

// commitOrder inserts the order row between reserve and confirm, inside one
// transaction with the confirm, so the UNIQUE(user_id, product_id) backstop
// has a clean rollback point.
func (s *PurchaseService) commitOrder(ctx context.Context, job *queue.Job, userID, productID string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	order := &model.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Status:    model.OrderPending,
	}
	err = s.orderRepo.Insert(ctx, tx, order)
	if errors.Is(err, ErrAlreadyPurchased) {
		return s.resumeOrFail(ctx, job, userID, productID)
	}
	if err != nil {
		// Reservation stays; the retry's releaseDangling compensates.
		return "", fmt.Errorf("insert order: %w", err)
	}

	if _, err := s.stock.ConfirmTx(ctx, tx, productID, 1); err != nil {
		return "", fmt.Errorf("confirm stock: %w", err)
	}
	if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderConfirmed); err != nil {
		return "", fmt.Errorf("confirm order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit order tx: %w", err)
	}
	return order.ID, nil
}

// resumeOrFail handles the UNIQUE violation branch. A replayed job whose
// previous attempt already inserted the pending order resumes it with the
// fresh reservation; anything else is a genuine duplicate purchase and the
// reservation is compensated with a release.
func (s *PurchaseService) resumeOrFail(ctx context.Context, job *queue.Job, userID, productID string) (string, error) {
	if job.Retried {
		orderID, resumed, err := s.resumePending(ctx, userID, productID)
		if err != nil {
			return "", err
		}
		if resumed {
			log.Info().Str("job_id", job.ID).Str("order_id", orderID).
				Msg("resumed pending order from replayed job")
			return orderID, nil
		}
	}

	if _, err := s.stock.Release(ctx, productID, 1); err != nil {
		return "", fmt.Errorf("release after duplicate order: %w", err)
	}
	_ = s.store.ClearReservation(ctx, job.ID)
	return "", queue.Permanent(CodeAlreadyPurchased, ErrAlreadyPurchased)
}

// resumePending confirms a pending order left by a previous attempt of the
// same job, consuming the current reservation.
func (s *PurchaseService) resumePending(ctx context.Context, userID, productID string) (string, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", false, fmt.Errorf("begin resume tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := s.orderRepo.GetByUserProduct(ctx, tx, userID, productID)
	if err != nil {
		return "", false, err
	}
	if existing == nil || existing.Status != model.OrderPending {
		return "", false, nil
	}

	if _, err := s.stock.ConfirmTx(ctx, tx, productID, 1); err != nil {
		return "", false, fmt.Errorf("confirm stock on resume: %w", err)
	}
	if err := s.orderRepo.UpdateStatus(ctx, tx, existing.ID, model.OrderConfirmed); err != nil {
		return "", false, fmt.Errorf("confirm order on resume: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", false, fmt.Errorf("commit resume tx: %w", err)
	}
	return existing.ID, true, nil
}

// releaseDangling compensates a reservation whose attempt died between
// reserve and confirm (lease-expiry recovery, scenario: worker crash). A
// marker left by an attempt that committed its order but died before the
// cleanup delete is only cleared: the reserved count no longer includes that
// unit, and releasing would free a unit some other job still holds.
func (s *PurchaseService) releaseDangling(ctx context.Context, job *queue.Job) error {
	productID, err := s.store.GetReservation(ctx, job.ID)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	confirmed, err := s.hasConfirmedOrder(ctx, job.Payload.UserID, productID)
	if err != nil {
		return err
	}
	if confirmed {
		return s.store.ClearReservation(ctx, job.ID)
	}

	if _, err := s.stock.Release(ctx, productID, 1); err != nil && !errors.Is(err, ErrInvariantViolation) {
		return err
	}
	return s.store.ClearReservation(ctx, job.ID)
}

func (s *PurchaseService) hasConfirmedOrder(ctx context.Context, userID, productID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin order lookup: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := s.orderRepo.GetByUserProduct(ctx, tx, userID, productID)
	if err != nil {
		return false, err
	}
	return order != nil && order.Status == model.OrderConfirmed, nil
}

func (s *PurchaseService) markProcessing(ctx context.Context, job *queue.Job) {
	rec, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		// Expired or lost record: rebuild from the payload so pollers still
		// see the lifecycle.
		rec = &model.PurchaseJob{
			JobID:      job.ID,
			UserID:     job.Payload.UserID,
			SaleID:     job.Payload.SaleID,
			EnqueuedAt: job.Payload.EnqueuedAt,
		}
	}
	rec.Status = model.JobProcessing
	if err := s.store.SetJob(ctx, rec); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("job state write failed")
	}
	if err := s.store.SetUserState(ctx, &model.UserPurchaseState{
		UserID:    job.Payload.UserID,
		Status:    model.JobProcessing,
		JobID:     job.ID,
		UpdatedAt: time.Now(),
	}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("user state write failed")
	}
}

func (s *PurchaseService) markCompleted(ctx context.Context, job *queue.Job, userID, saleID, orderID string) {
	now := time.Now()
	if err := s.store.SetJob(ctx, &model.PurchaseJob{
		JobID:       job.ID,
		UserID:      userID,
		SaleID:      saleID,
		Status:      model.JobCompleted,
		Success:     true,
		OrderID:     orderID,
		EnqueuedAt:  job.Payload.EnqueuedAt,
		PurchasedAt: &now,
	}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("job state write failed")
	}
	if err := s.store.SetUserState(ctx, &model.UserPurchaseState{
		UserID:    userID,
		Status:    model.JobCompleted,
		Success:   true,
		JobID:     job.ID,
		OrderID:   orderID,
		UpdatedAt: now,
	}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("user state write failed")
	}

	// Invalidation failures self-heal at the TTL boundary.
	if err := s.store.InvalidateSaleStatus(ctx, saleID); err != nil {
		log.Warn().Err(err).Str("sale_id", saleID).Msg("sale status invalidation failed")
	}
	if err := s.store.InvalidateSaleStats(ctx, saleID); err != nil {
		log.Warn().Err(err).Str("sale_id", saleID).Msg("sale stats invalidation failed")
	}

	log.Info().
		Str("user_id", userID).
		Str("sale_id", saleID).
		Str("job_id", job.ID).
		Str("order_id", orderID).
		Msg("purchase completed")
}

// MarkJobFailed records a terminal failure in the coordination store. The
// worker pool calls this from the queue's failed event.
func (s *PurchaseService) MarkJobFailed(ctx context.Context, job *queue.Job, reason string) {
	// Retry exhaustion can leave the final attempt's reservation behind;
	// return the unit before recording the terminal state.
	if err := s.releaseDangling(ctx, job); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("reservation release on terminal failure failed")
	}

	now := time.Now()
	if err := s.store.SetJob(ctx, &model.PurchaseJob{
		JobID:      job.ID,
		UserID:     job.Payload.UserID,
		SaleID:     job.Payload.SaleID,
		Status:     model.JobFailed,
		Reason:     reason,
		EnqueuedAt: job.Payload.EnqueuedAt,
	}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("job state write failed")
	}
	if err := s.store.SetUserState(ctx, &model.UserPurchaseState{
		UserID:    job.Payload.UserID,
		Status:    model.JobFailed,
		JobID:     job.ID,
		Reason:    reason,
		UpdatedAt: now,
	}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("user state write failed")
	}

	log.Info().
		Str("user_id", job.Payload.UserID).
		Str("job_id", job.ID).
		Str("reason", reason).
		Msg("purchase failed")
}
