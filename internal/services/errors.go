package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Error kinds. Every error returned by this package wraps exactly one of
// these, so callers classify with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnavailable       = errors.New("unavailable")
	ErrAIFailure         = errors.New("recommendation model failure")
)

// Specific failures.
var (
	ErrEmptyCart        = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrNotCompleted     = fmt.Errorf("%w: order is not completed", ErrValidation)
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	ErrInvalidRating    = fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	ErrInvalidStatus    = fmt.Errorf("%w: unknown order status", ErrValidation)
	ErrInvalidPayment   = fmt.Errorf("%w: unknown payment status", ErrValidation)
	ErrInvalidRange     = fmt.Errorf("%w: price range index must be between 0 and 4", ErrValidation)
	ErrStoryTooShort    = fmt.Errorf("%w: story must be at least 10 characters", ErrValidation)
	ErrVariantMismatch  = fmt.Errorf("%w: variant does not belong to product", ErrConflict)
	ErrDuplicateReview  = fmt.Errorf("%w: order item already reviewed", ErrConflict)
	ErrOrderNotEditable = fmt.Errorf("%w: order is in a final status", ErrConflict)
	ErrStatusRegression = fmt.Errorf("%w: order cannot move back to an earlier status", ErrConflict)
	ErrNotCancelable    = fmt.Errorf("%w: order can no longer be canceled", ErrConflict)
	ErrEmailTaken       = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrBadCredentials   = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrNoCandidates     = fmt.Errorf("%w: no products match this category and budget", ErrNotFound)
)

// OrderValidationError carries every per-line problem found during checkout.
type OrderValidationError struct {
	Problems []string
}

func (e *OrderValidationError) Error() string {
	return "order validation failed: " + strings.Join(e.Problems, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *OrderValidationError) Is(target error) bool { return target == ErrValidation }

func notFound(entity string) error {
	return fmt.Errorf("%w: %s not found", ErrNotFound, entity)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// lookupErr maps a gorm lookup error to NotFound for entity, leaving other
// errors untouched.
func lookupErr(err error, entity string) error {
	if isNotFound(err) {
		return notFound(entity)
	}
	return err
}
