package model

import "time"

// Purchase job states. queued -> processing -> completed | failed.
// Terminal states never transition.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// PurchaseJob is the ephemeral per-job record kept in the coordination store
// under purchase_job:<jobId>. It expires one hour after creation.
type PurchaseJob struct {
	JobID       string     `json:"job_id"`
	UserID      string     `json:"user_id"`
	SaleID      string     `json:"sale_id"`
	Status      string     `json:"status"`
	Success     bool       `json:"success"`
	OrderID     string     `json:"order_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *PurchaseJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// UserPurchaseState mirrors the user's most recent job, keyed by userId
// under purchase_status:<userId>. It is the admission dedup record.
type UserPurchaseState struct {
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	JobID     string    `json:"job_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InFlight reports whether the state blocks a new admission.
func (s *UserPurchaseState) InFlight() bool {
	return s.Status == JobQueued || s.Status == JobProcessing
}

// AdmitResponse is the 202 payload returned by the admission gateway.
type AdmitResponse struct {
	JobID             string `json:"job_id"`
	Status            string `json:"status"`
	EstimatedWaitTime int64  `json:"estimated_wait_time"` // seconds
}

// PurchaseRequest is the optional body of POST /purchase.
type PurchaseRequest struct {
	SaleID string `json:"sale_id" validate:"omitempty,max=255"`
}
