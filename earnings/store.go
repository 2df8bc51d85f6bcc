/*
store.go - Persistence interfaces for bookings and earnings

KEY INTERFACES:
  Store:         Snapshot assembly and earning rows for one booking
  TxStore:       Store + per-booking transaction
  BookingFinder: Keyset-paginated booking search for batch recalculation
  PartnerStore:  Partner lookup and percentage updates

REPLACE SEMANTICS:
  Earnings for a booking are replaced wholesale: DeleteEarnings followed by
  AppendEarnings inside one WithTx call. A failure rolls back that booking
  only; other bookings in the same batch keep their committed state.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - earnings/store/memory.go: In-memory for testing
*/
package earnings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store reads booking snapshots and writes earning rows.
type Store interface {
	// LoadSnapshot assembles the booking with every associated party.
	// Returns ErrBookingNotFound if the booking does not exist.
	LoadSnapshot(ctx context.Context, id BookingID) (BookingSnapshot, error)

	// DeleteEarnings removes every earning row of the booking.
	DeleteEarnings(ctx context.Context, id BookingID) error

	// AppendEarnings persists earning rows.
	AppendEarnings(ctx context.Context, es []Earning) error

	// SetPlatformEarnings records the platform residual on the booking.
	SetPlatformEarnings(ctx context.Context, id BookingID, amount Cents) error

	// MarkConfirmed flags the booking as confirmed and fee-bearing.
	MarkConfirmed(ctx context.Context, id BookingID, at time.Time) error

	// Earnings returns the booking's rows in insertion order.
	Earnings(ctx context.Context, id BookingID) ([]Earning, error)

	// EarningsByUser returns a recipient's rows; unpaidOnly filters out rows
	// already attached to a payment.
	EarningsByUser(ctx context.Context, user UserID, unpaidOnly bool) ([]Earning, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// BookingFilter selects bookings for batch recalculation. Zero fields
// match everything.
type BookingFilter struct {
	PartnerID     PartnerID   // either side
	VenueID       VenueID
	ConciergeID   ConciergeID
	PrimeOnly     bool
	ConfirmedOnly bool
}

// BookingFinder pages through bookings in ascending id order.
type BookingFinder interface {
	FindBookings(ctx context.Context, filter BookingFilter, after BookingID, limit int) ([]BookingID, error)
}

// PartnerStore manages partner records.
type PartnerStore interface {
	GetPartner(ctx context.Context, id PartnerID) (Partner, error)
	UpdatePartnerPercentage(ctx context.Context, id PartnerID, pct decimal.Decimal) error
}

// Publisher announces freshly calculated allocations. Implementations must
// not block the caller for long; failures are logged and dropped.
type Publisher interface {
	PublishCalculated(ctx context.Context, alloc Allocation) error
}

type nopPublisher struct{}

func (nopPublisher) PublishCalculated(context.Context, Allocation) error { return nil }

// ResolveReferrers fills c.ReferredBy up to MaxReferralLevels deep using
// lookup. Missing referrers end the chain; a cycle ends it too.
func ResolveReferrers(ctx context.Context, c *Concierge, lookup func(context.Context, ConciergeID) (*Concierge, error)) error {
	seen := map[ConciergeID]bool{c.ID: true}
	cur := c
	for level := 1; level <= MaxReferralLevels && cur.ReferrerID != ""; level++ {
		if seen[cur.ReferrerID] {
			return nil
		}
		ref, err := lookup(ctx, cur.ReferrerID)
		if err != nil {
			return err
		}
		if ref == nil {
			return nil
		}
		seen[ref.ID] = true
		cur.ReferredBy = ref
		cur = ref
	}
	return nil
}
