/*
errors.go - Centralized error types for the earnings engine

ERROR CATEGORIES:
  1. Booking state errors - The snapshot cannot be allocated
  2. Lookup errors - Referenced booking/partner does not exist
  3. Concurrency errors - Another writer holds the booking
  4. Batch errors - Some bookings in a recalculation failed

USAGE:
  if errors.Is(err, earnings.ErrInvalidBookingState) {
      // client problem, do not retry
  }

  var partial *earnings.PartialBatchFailure
  if errors.As(err, &partial) {
      for _, f := range partial.Failures { ... }
  }
*/
package earnings

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidBookingState is returned when a booking is missing mandatory
	// inputs or carries values outside their domain.
	ErrInvalidBookingState = errors.New("invalid booking state")

	ErrBookingNotFound = errors.New("booking not found")
	ErrPartnerNotFound = errors.New("partner not found")

	// ErrLockNotAcquired is returned when another writer is recalculating
	// the same booking.
	ErrLockNotAcquired = errors.New("booking is locked by another writer")

	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrInvalidPercentage is returned when a party percentage update falls
	// outside [0,100].
	ErrInvalidPercentage = errors.New("percentage outside [0,100]")

	// ErrStoreRequired is returned when an operation needs a store capability
	// the configured store does not implement.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidBookingStateError carries the booking and the violated rule.
type InvalidBookingStateError struct {
	BookingID BookingID
	Reason    string
}

func (e *InvalidBookingStateError) Error() string {
	return fmt.Sprintf("invalid booking state for %s: %s", e.BookingID, e.Reason)
}

func (e *InvalidBookingStateError) Unwrap() error {
	return ErrInvalidBookingState
}

func invalidState(id BookingID, format string, args ...any) error {
	return &InvalidBookingStateError{BookingID: id, Reason: fmt.Sprintf(format, args...)}
}

// BookingFailure is one failed booking inside a batch.
type BookingFailure struct {
	BookingID BookingID `json:"booking_id"`
	Message   string    `json:"message"`
}

// PartialBatchFailure is returned by RecalculationReport.Err when at least
// one booking failed. Committed bookings stay committed.
type PartialBatchFailure struct {
	Processed int
	Failures  []BookingFailure
}

func (e *PartialBatchFailure) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, string(f.BookingID))
	}
	return fmt.Sprintf("%d of %d bookings failed: %s", len(e.Failures), e.Processed, strings.Join(ids, ", "))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockNotAcquired)
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidBookingState) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrInvalidPercentage)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrPartnerNotFound)
}
