package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairyhunter13/flash-sale-processor/internal/cache"
	"github.com/fairyhunter13/flash-sale-processor/internal/model"
)

// StatusStore defines the coordination-store reads the status service needs.
type StatusStore interface {
	GetUserState(ctx context.Context, userID string) (*model.UserPurchaseState, error)
	GetJob(ctx context.Context, jobID string) (*model.PurchaseJob, error)
}

// StatusService serves per-user purchase state and per-job state. Both are
// pure coordination-store reads with no database fallback: an absent entry
// means no purchase in flight.
type StatusService struct {
	store StatusStore
}

// NewStatusService creates a new StatusService.
func NewStatusService(store StatusStore) *StatusService {
	return &StatusService{store: store}
}

// GetUserStatus returns the user's most recent purchase state, or nil when
// the user has none (expired or never admitted).
func (s *StatusService) GetUserStatus(ctx context.Context, userID string) (*model.UserPurchaseState, error) {
	state, err := s.store.GetUserState(ctx, userID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user status: %w", err)
	}
	return state, nil
}

// GetJobStatus returns the job record for jobID.
// Returns ErrJobNotFound when the record is absent or expired.
func (s *StatusService) GetJobStatus(ctx context.Context, jobID string) (*model.PurchaseJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job status: %w", err)
	}
	return job, nil
}
