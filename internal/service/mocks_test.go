package service

import (
	"context"
	"time"

	"github.com/fairyhunter13/flash-sale-processor/internal/cache"
	"github.com/fairyhunter13/flash-sale-processor/internal/model"
	"github.com/fairyhunter13/flash-sale-processor/internal/queue"
	"github.com/fairyhunter13/flash-sale-processor/pkg/database"
)

// mockStore is a mock coordination store. It satisfies CoordinationStore,
// SaleStatusCache, StatsCache and StatusStore; unset getters behave like an
// empty store and return cache.ErrNotFound.
type mockStore struct {
	setJobFn         func(ctx context.Context, job *model.PurchaseJob) error
	getJobFn         func(ctx context.Context, jobID string) (*model.PurchaseJob, error)
	putUserStateNXFn func(ctx context.Context, state *model.UserPurchaseState) (bool, error)
	replaceUserFn    func(ctx context.Context, state *model.UserPurchaseState, prevJobID string) (bool, error)
	setUserStateFn   func(ctx context.Context, state *model.UserPurchaseState) error
	getUserStateFn   func(ctx context.Context, userID string) (*model.UserPurchaseState, error)
	deleteUserFn     func(ctx context.Context, userID string) error
	incrRateFn       func(ctx context.Context, userID string) (int64, error)
	setReservationFn func(ctx context.Context, jobID, productID string) error
	getReservationFn func(ctx context.Context, jobID string) (string, error)
	clearReservFn    func(ctx context.Context, jobID string) error
	getSaleStatusFn  func(ctx context.Context, saleID string) (*model.SaleStatusResponse, error)
	setSaleStatusFn  func(ctx context.Context, status *model.SaleStatusResponse, generic bool) error
	invalStatusFn    func(ctx context.Context, saleID string) error
	getSaleStatsFn   func(ctx context.Context, saleID string) (*model.SaleStats, error)
	setSaleStatsFn   func(ctx context.Context, stats *model.SaleStats) error
	invalStatsFn     func(ctx context.Context, saleID string) error
}

func (m *mockStore) SetJob(ctx context.Context, job *model.PurchaseJob) error {
	if m.setJobFn != nil {
		return m.setJobFn(ctx, job)
	}
	return nil
}

func (m *mockStore) GetJob(ctx context.Context, jobID string) (*model.PurchaseJob, error) {
	if m.getJobFn != nil {
		return m.getJobFn(ctx, jobID)
	}
	return nil, cache.ErrNotFound
}

func (m *mockStore) PutUserStateNX(ctx context.Context, state *model.UserPurchaseState) (bool, error) {
	if m.putUserStateNXFn != nil {
		return m.putUserStateNXFn(ctx, state)
	}
	return true, nil
}

func (m *mockStore) ReplaceUserState(ctx context.Context, state *model.UserPurchaseState, prevJobID string) (bool, error) {
	if m.replaceUserFn != nil {
		return m.replaceUserFn(ctx, state, prevJobID)
	}
	return true, nil
}

func (m *mockStore) SetUserState(ctx context.Context, state *model.UserPurchaseState) error {
	if m.setUserStateFn != nil {
		return m.setUserStateFn(ctx, state)
	}
	return nil
}

func (m *mockStore) GetUserState(ctx context.Context, userID string) (*model.UserPurchaseState, error) {
	if m.getUserStateFn != nil {
		return m.getUserStateFn(ctx, userID)
	}
	return nil, cache.ErrNotFound
}

func (m *mockStore) DeleteUserState(ctx context.Context, userID string) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, userID)
	}
	return nil
}

func (m *mockStore) IncrRate(ctx context.Context, userID string) (int64, error) {
	if m.incrRateFn != nil {
		return m.incrRateFn(ctx, userID)
	}
	return 1, nil
}

func (m *mockStore) SetReservation(ctx context.Context, jobID, productID string) error {
	if m.setReservationFn != nil {
		return m.setReservationFn(ctx, jobID, productID)
	}
	return nil
}

func (m *mockStore) GetReservation(ctx context.Context, jobID string) (string, error) {
	if m.getReservationFn != nil {
		return m.getReservationFn(ctx, jobID)
	}
	return "", cache.ErrNotFound
}

func (m *mockStore) ClearReservation(ctx context.Context, jobID string) error {
	if m.clearReservFn != nil {
		return m.clearReservFn(ctx, jobID)
	}
	return nil
}

func (m *mockStore) GetSaleStatus(ctx context.Context, saleID string) (*model.SaleStatusResponse, error) {
	if m.getSaleStatusFn != nil {
		return m.getSaleStatusFn(ctx, saleID)
	}
	return nil, cache.ErrNotFound
}

func (m *mockStore) SetSaleStatus(ctx context.Context, status *model.SaleStatusResponse, generic bool) error {
	if m.setSaleStatusFn != nil {
		return m.setSaleStatusFn(ctx, status, generic)
	}
	return nil
}

func (m *mockStore) InvalidateSaleStatus(ctx context.Context, saleID string) error {
	if m.invalStatusFn != nil {
		return m.invalStatusFn(ctx, saleID)
	}
	return nil
}

func (m *mockStore) GetSaleStats(ctx context.Context, saleID string) (*model.SaleStats, error) {
	if m.getSaleStatsFn != nil {
		return m.getSaleStatsFn(ctx, saleID)
	}
	return nil, cache.ErrNotFound
}

func (m *mockStore) SetSaleStats(ctx context.Context, stats *model.SaleStats) error {
	if m.setSaleStatsFn != nil {
		return m.setSaleStatsFn(ctx, stats)
	}
	return nil
}

func (m *mockStore) InvalidateSaleStats(ctx context.Context, saleID string) error {
	if m.invalStatsFn != nil {
		return m.invalStatsFn(ctx, saleID)
	}
	return nil
}

// mockPurchaseQueue is a mock implementation of PurchaseQueue.
type mockPurchaseQueue struct {
	addJobFn   func(ctx context.Context, payload queue.Payload, opts queue.Options) (string, error)
	getStatsFn func(ctx context.Context) (*queue.Stats, error)
}

func (m *mockPurchaseQueue) AddJob(ctx context.Context, payload queue.Payload, opts queue.Options) (string, error) {
	if m.addJobFn != nil {
		return m.addJobFn(ctx, payload, opts)
	}
	return opts.JobID, nil
}

func (m *mockPurchaseQueue) GetStats(ctx context.Context) (*queue.Stats, error) {
	if m.getStatsFn != nil {
		return m.getStatsFn(ctx)
	}
	return &queue.Stats{}, nil
}

// mockSaleReader is a mock implementation of SaleReader.
type mockSaleReader struct {
	detailFn       func(ctx context.Context, saleID string) (*model.SaleDetail, error)
	activeDetailFn func(ctx context.Context) (*model.SaleDetail, error)
}

func (m *mockSaleReader) Detail(ctx context.Context, saleID string) (*model.SaleDetail, error) {
	if m.detailFn != nil {
		return m.detailFn(ctx, saleID)
	}
	return nil, ErrSaleNotFound
}

func (m *mockSaleReader) ActiveDetail(ctx context.Context) (*model.SaleDetail, error) {
	if m.activeDetailFn != nil {
		return m.activeDetailFn(ctx)
	}
	return nil, ErrSaleNotFound
}

// mockStockMutator is a mock implementation of StockMutator.
type mockStockMutator struct {
	reserveFn   func(ctx context.Context, productID string, qty int) (*model.Stock, error)
	releaseFn   func(ctx context.Context, productID string, qty int) (*model.Stock, error)
	confirmTxFn func(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error)
}

func (m *mockStockMutator) Reserve(ctx context.Context, productID string, qty int) (*model.Stock, error) {
	if m.reserveFn != nil {
		return m.reserveFn(ctx, productID, qty)
	}
	return &model.Stock{ProductID: productID}, nil
}

func (m *mockStockMutator) Release(ctx context.Context, productID string, qty int) (*model.Stock, error) {
	if m.releaseFn != nil {
		return m.releaseFn(ctx, productID, qty)
	}
	return &model.Stock{ProductID: productID}, nil
}

func (m *mockStockMutator) ConfirmTx(ctx context.Context, tx database.TxQuerier, productID string, qty int) (*model.Stock, error) {
	if m.confirmTxFn != nil {
		return m.confirmTxFn(ctx, tx, productID, qty)
	}
	return &model.Stock{ProductID: productID}, nil
}

// mockOrderRepository is a mock implementation of OrderRepositoryInterface.
type mockOrderRepository struct {
	insertFn           func(ctx context.Context, tx database.TxQuerier, order *model.Order) error
	getByUserProductFn func(ctx context.Context, tx database.TxQuerier, userID, productID string) (*model.Order, error)
	updateStatusFn     func(ctx context.Context, tx database.TxQuerier, orderID, status string) error
}

func (m *mockOrderRepository) Insert(ctx context.Context, tx database.TxQuerier, order *model.Order) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, tx, order)
	}
	return nil
}

func (m *mockOrderRepository) GetByUserProduct(ctx context.Context, tx database.TxQuerier, userID, productID string) (*model.Order, error) {
	if m.getByUserProductFn != nil {
		return m.getByUserProductFn(ctx, tx, userID, productID)
	}
	return nil, nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, tx database.TxQuerier, orderID, status string) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, tx, orderID, status)
	}
	return nil
}

// mockSaleRepository is a mock implementation of SaleRepositoryInterface.
type mockSaleRepository struct {
	getDetailFn       func(ctx context.Context, saleID string) (*model.SaleDetail, error)
	getActiveDetailFn func(ctx context.Context, now time.Time) (*model.SaleDetail, error)
	activateDueFn     func(ctx context.Context, now time.Time) ([]string, error)
	endDueFn          func(ctx context.Context, now time.Time) ([]string, error)
}

func (m *mockSaleRepository) GetDetail(ctx context.Context, saleID string) (*model.SaleDetail, error) {
	if m.getDetailFn != nil {
		return m.getDetailFn(ctx, saleID)
	}
	return nil, ErrSaleNotFound
}

func (m *mockSaleRepository) GetActiveDetail(ctx context.Context, now time.Time) (*model.SaleDetail, error) {
	if m.getActiveDetailFn != nil {
		return m.getActiveDetailFn(ctx, now)
	}
	return nil, ErrSaleNotFound
}

func (m *mockSaleRepository) ActivateDue(ctx context.Context, now time.Time) ([]string, error) {
	if m.activateDueFn != nil {
		return m.activateDueFn(ctx, now)
	}
	return nil, nil
}

func (m *mockSaleRepository) EndDue(ctx context.Context, now time.Time) ([]string, error) {
	if m.endDueFn != nil {
		return m.endDueFn(ctx, now)
	}
	return nil, nil
}

// mockLocker is a mock implementation of GlobalLocker. held simulates the
// lock being owned by another node.
type mockLocker struct {
	held bool
}

func (m *mockLocker) WithLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error) {
	if m.held {
		return false, nil
	}
	return true, fn(ctx)
}

// mockOrderCounter is a mock implementation of OrderCounter.
type mockOrderCounter struct {
	countByStatusFn func(ctx context.Context, productID string) (map[string]int, error)
}

func (m *mockOrderCounter) CountByStatus(ctx context.Context, productID string) (map[string]int, error) {
	if m.countByStatusFn != nil {
		return m.countByStatusFn(ctx, productID)
	}
	return map[string]int{}, nil
}
