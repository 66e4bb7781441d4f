package service

import "errors"

// Stable business error codes. These travel as the reason string on
// terminal-failed jobs and as the error code in API responses.
const (
	CodeSaleNotActive      = "SALE_NOT_ACTIVE"
	CodeOutOfStock         = "OUT_OF_STOCK"
	CodeAlreadyPurchased   = "ALREADY_PURCHASED"
	CodeDuplicateInFlight  = "DUPLICATE_IN_FLIGHT"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeMaxAttempts        = "MAX_ATTEMPTS"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
)

var (
	// ErrSaleNotActive is returned when the sale is outside its window or not active.
	ErrSaleNotActive = errors.New("sale is not active")

	// ErrSaleNotFound is returned when no sale matches the given id.
	ErrSaleNotFound = errors.New("sale not found")

	// ErrOutOfStock is returned when no available stock remains at reserve time.
	ErrOutOfStock = errors.New("out of stock")

	// ErrAlreadyPurchased is returned when the user already holds an order for the product.
	ErrAlreadyPurchased = errors.New("already purchased")

	// ErrDuplicateInFlight is returned when the user already has a queued or processing job.
	ErrDuplicateInFlight = errors.New("purchase already in flight")

	// ErrTooManyAttempts is returned when the per-user rate limit is exceeded.
	ErrTooManyAttempts = errors.New("too many purchase attempts")

	// ErrJobNotFound is returned when no job matches the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidRequest is returned when request data is invalid or incomplete.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvariantViolation is returned when a stock mutation would break
	// total = available + reserved.
	ErrInvariantViolation = errors.New("stock invariant violation")
)

// Code maps a business error to its stable code string. Unknown errors map
// to the empty string (callers treat those as transient/internal).
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSaleNotActive), errors.Is(err, ErrSaleNotFound):
		return CodeSaleNotActive
	case errors.Is(err, ErrOutOfStock):
		return CodeOutOfStock
	case errors.Is(err, ErrAlreadyPurchased):
		return CodeAlreadyPurchased
	case errors.Is(err, ErrDuplicateInFlight):
		return CodeDuplicateInFlight
	case errors.Is(err, ErrTooManyAttempts):
		return CodeTooManyAttempts
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrInvariantViolation):
		return CodeInvariantViolation
	default:
		return ""
	}
}
