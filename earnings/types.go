/*
Package earnings provides the booking fee allocation engine.

PURPOSE:
  This package splits the money attached to a confirmed booking across every
  party involved in it: the venue, the concierge who booked it, the
  concierge's referrers, the partners attached to either side, and the
  platform. The same engine serves first-time confirmation and bulk
  recalculation, so identical inputs always produce identical earnings.

KEY CONCEPTS IN THIS FILE (types.go):
  - Cents: Signed integer minor currency units
  - Earning: One party's monetary entitlement from one booking
  - BookingSnapshot: Everything the engine reads, assembled by the caller
  - Allocation: The engine's output (earnings + platform residual)

DESIGN PRINCIPLES:
  1. No I/O: The engine only sees a snapshot; stores assemble it
  2. Precision: Percentage math runs on decimal.Decimal, results are cents
  3. Conservation: The platform residual absorbs every rounding remainder
  4. Determinism: No hidden state, same snapshot = same allocation

USAGE:
  engine := earnings.NewEngine(earnings.DefaultPolicy())
  alloc, err := engine.Calculate(snapshot)
  if err != nil {
      var invalid *earnings.InvalidBookingStateError
      errors.As(err, &invalid)
  }

SEE ALSO:
  - engine.go: Prime / non-prime allocation
  - policy.go: Fixed policy percentages
  - service.go: Confirmation workflow (lock + transaction + persist)
  - recalc.go: Chunked bulk recalculation
*/
package earnings

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Cents is an amount in minor currency units. It may be negative for debits.
type Cents int64

func (c Cents) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(c)) }
func (c Cents) IsZero() bool             { return c == 0 }
func (c Cents) IsNegative() bool         { return c < 0 }

// String renders the amount as major units with two decimals (e.g. "120.50").
func (c Cents) String() string {
	return c.Decimal().Shift(-2).StringFixed(2)
}

// PercentOf returns round(c * pct / 100) using half-up rounding on cents.
// Negative amounts are rounded on their magnitude so that a debit mirrors
// the matching credit exactly.
func PercentOf(c Cents, pct decimal.Decimal) Cents {
	v := c.Decimal().Mul(pct).Div(hundred)
	if v.IsNegative() {
		return -Cents(v.Neg().Round(0).IntPart())
	}
	return Cents(v.Round(0).IntPart())
}

var hundred = decimal.NewFromInt(100)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BookingID string
type UserID string
type VenueID string
type ConciergeID string
type PartnerID string
type EarningID string
type PaymentID string

// =============================================================================
// EARNING - One party's share of one booking
// =============================================================================

type EarningType string

const (
	EarningVenue              EarningType = "venue"
	EarningPartnerVenue       EarningType = "partner_venue"
	EarningConcierge          EarningType = "concierge"
	EarningPartnerConcierge   EarningType = "partner_concierge"
	EarningConciergeReferral1 EarningType = "concierge_referral_1"
	EarningConciergeReferral2 EarningType = "concierge_referral_2"
	EarningVenuePaid          EarningType = "venue_paid"
	EarningConciergeBounty    EarningType = "concierge_bounty"
)

var earningTypes = map[EarningType]bool{
	EarningVenue:              true,
	EarningPartnerVenue:       true,
	EarningConcierge:          true,
	EarningPartnerConcierge:   true,
	EarningConciergeReferral1: true,
	EarningConciergeReferral2: true,
	EarningVenuePaid:          true,
	EarningConciergeBounty:    true,
}

// ParseEarningType validates a stored or user-supplied earning type.
func ParseEarningType(s string) (EarningType, error) {
	t := EarningType(s)
	if !earningTypes[t] {
		return "", fmt.Errorf("unknown earning type %q", s)
	}
	return t, nil
}

// IsPartner reports whether the earning belongs to a partner relationship.
func (t EarningType) IsPartner() bool {
	return t == EarningPartnerVenue || t == EarningPartnerConcierge
}

type Earning struct {
	ID        EarningID
	BookingID BookingID
	UserID    UserID
	Type      EarningType
	Amount    Cents
	Currency  string

	// PaymentID is empty until the earning is folded into a payout batch.
	PaymentID PaymentID
	CreatedAt time.Time
}

func (e Earning) IsPaid() bool { return e.PaymentID != "" }

// =============================================================================
// BOOKING SNAPSHOT - Read-only engine input
// =============================================================================

type Venue struct {
	ID                 VenueID
	UserID             UserID
	Name               string
	PayoutVenue        decimal.Decimal // 0-100
	NonPrimeFeePerHead Cents
}

type Concierge struct {
	ID               ConciergeID
	UserID           UserID
	Name             string
	PayoutPercentage decimal.Decimal // 0-100
	ReferrerID       ConciergeID     // stored key of ReferredBy, empty if none

	// ReferredBy is the concierge that referred this one, if any.
	// Chains are walked at most MaxReferralLevels deep.
	ReferredBy *Concierge
}

type Partner struct {
	ID         PartnerID
	UserID     UserID
	Name       string
	Percentage decimal.Decimal // 0-100, applied to the post venue+concierge remainder
}

// BookingSnapshot is assembled once by the caller. Nil parties mean the
// association does not exist.
type BookingSnapshot struct {
	ID         BookingID
	TotalFee   Cents
	GuestCount int
	IsPrime    bool
	Currency   string

	Venue            *Venue
	Concierge        *Concierge
	PartnerVenue     *Partner
	PartnerConcierge *Partner
}

// Booking is the stored booking row. Stores resolve its foreign keys into a
// BookingSnapshot.
type Booking struct {
	ID         BookingID
	TotalFee   Cents
	GuestCount int
	IsPrime    bool
	Currency   string

	VenueID            VenueID
	ConciergeID        ConciergeID
	PartnerVenueID     PartnerID
	PartnerConciergeID PartnerID

	PlatformEarnings Cents
	ConfirmedAt      *time.Time
	CreatedAt        time.Time
}

func (b Booking) IsConfirmed() bool { return b.ConfirmedAt != nil }

// =============================================================================
// ALLOCATION - Engine output
// =============================================================================

type Allocation struct {
	BookingID BookingID
	Currency  string
	TotalFee  Cents
	IsPrime   bool
	Earnings  []Earning

	// PlatformEarnings is persisted on the booking, not as an Earning row.
	PlatformEarnings Cents
}

// Total returns the sum of all earning rows plus the platform residual.
// For prime bookings this always equals TotalFee.
func (a Allocation) Total() Cents {
	total := a.PlatformEarnings
	for _, e := range a.Earnings {
		total += e.Amount
	}
	return total
}

// Find returns the first earning of the given type.
func (a Allocation) Find(t EarningType) (Earning, bool) {
	for _, e := range a.Earnings {
		if e.Type == t {
			return e, true
		}
	}
	return Earning{}, false
}

// Amount returns the amount for the given type, or 0 when absent.
func (a Allocation) Amount(t EarningType) Cents {
	e, _ := a.Find(t)
	return e.Amount
}
