package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/flash-sale-processor/internal/cache"
	"github.com/fairyhunter13/flash-sale-processor/internal/model"
)

// lifecycleLockID serializes sale lifecycle transitions across nodes.
const lifecycleLockID int64 = 774120001

// SaleRepositoryInterface defines the interface for sale data access.
type SaleRepositoryInterface interface {
	GetDetail(ctx context.Context, saleID string) (*model.SaleDetail, error)
	GetActiveDetail(ctx context.Context, now time.Time) (*model.SaleDetail, error)
	ActivateDue(ctx context.Context, now time.Time) ([]string, error)
	EndDue(ctx context.Context, now time.Time) ([]string, error)
}

// SaleStatusCache defines the coordination-store operations the sale read
// path needs.
type SaleStatusCache interface {
	GetSaleStatus(ctx context.Context, saleID string) (*model.SaleStatusResponse, error)
	SetSaleStatus(ctx context.Context, status *model.SaleStatusResponse, generic bool) error
	InvalidateSaleStatus(ctx context.Context, saleID string) error
	InvalidateSaleStats(ctx context.Context, saleID string) error
}

// GlobalLocker serializes global sections across nodes.
type GlobalLocker interface {
	WithLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error)
}

// SaleService owns the sale-status read path and the lifecycle transitions.
// It is the sole writer of the sale-status cache.
type SaleService struct {
	repo   SaleRepositoryInterface
	store  SaleStatusCache
	locker GlobalLocker
}

// NewSaleService creates a new SaleService.
func NewSaleService(repo SaleRepositoryInterface, store SaleStatusCache, locker GlobalLocker) *SaleService {
	return &SaleService{repo: repo, store: store, locker: locker}
}

// GetStatus returns the sale status projection, serving from the short-TTL
// cache when possible. An empty saleID means "the current active sale".
// Returns ErrSaleNotFound when no matching sale exists.
func (s *SaleService) GetStatus(ctx context.Context, saleID string) (*model.SaleStatusResponse, error) {
	status, err := s.store.GetSaleStatus(ctx, saleID)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		// Cache trouble degrades to the uncached path.
		log.Warn().Err(err).Str("sale_id", saleID).Msg("sale status cache read failed")
	}

	now := time.Now()
	var detail *model.SaleDetail
	if saleID == "" {
		detail, err = s.repo.GetActiveDetail(ctx, now)
	} else {
		detail, err = s.repo.GetDetail(ctx, saleID)
	}
	if err != nil {
		if errors.Is(err, ErrSaleNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("load sale detail: %w", err)
	}

	status = model.NewSaleStatusResponse(detail, now)
	if cacheErr := s.store.SetSaleStatus(ctx, status, saleID == "" || detail.Sale.StatusAt(now) == model.SaleActive); cacheErr != nil {
		log.Warn().Err(cacheErr).Str("sale_id", status.SaleID).Msg("sale status cache write failed")
	}
	return status, nil
}

// Detail loads the joined (sale, product, stock) row, bypassing the cache.
// The purchase worker validates against this path; the cache is read-only
// for status.
func (s *SaleService) Detail(ctx context.Context, saleID string) (*model.SaleDetail, error) {
	return s.repo.GetDetail(ctx, saleID)
}

// ActiveDetail loads the current active sale, bypassing the cache.
// Returns ErrSaleNotFound when no sale window contains now.
func (s *SaleService) ActiveDetail(ctx context.Context) (*model.SaleDetail, error) {
	return s.repo.GetActiveDetail(ctx, time.Now())
}

// TransitionDue flips upcoming sales to active and active sales to ended
// according to the wall clock, under the global advisory lock so only one
// node performs the sweep. Affected cache keys are invalidated.
func (s *SaleService) TransitionDue(ctx context.Context) error {
	ran, err := s.locker.WithLock(ctx, lifecycleLockID, func(ctx context.Context) error {
		now := time.Now()

		activated, err := s.repo.ActivateDue(ctx, now)
		if err != nil {
			return fmt.Errorf("activate due sales: %w", err)
		}
		ended, err := s.repo.EndDue(ctx, now)
		if err != nil {
			return fmt.Errorf("end due sales: %w", err)
		}

		for _, id := range append(activated, ended...) {
			if cacheErr := s.store.InvalidateSaleStatus(ctx, id); cacheErr != nil {
				log.Warn().Err(cacheErr).Str("sale_id", id).Msg("sale status invalidation failed")
			}
		}
		if len(activated) > 0 || len(ended) > 0 {
			log.Info().
				Strs("activated", activated).
				Strs("ended", ended).
				Msg("sale lifecycle transitions applied")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !ran {
		log.Debug().Msg("lifecycle sweep skipped: lock held by another node")
	}
	return nil
}
