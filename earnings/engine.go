/*
engine.go - Booking fee allocation

PRIME BOOKINGS:
  The guest paid TotalFee up front. Venue and concierge take their payout
  percentages of the fee, partners take their percentage of what is left,
  and the platform keeps the residual:

    venue      = round(fee * payout_venue / 100)
    concierge  = round(fee * payout_percentage / 100)
    remainder  = fee - venue - concierge
    partner_v  = round(remainder * partner_venue% / 100)       (0 if absent)
    partner_c  = round(remainder * partner_concierge% / 100)   (0 if absent)
    platform   = remainder - partner_v - partner_c

  Referrers of the concierge are paid out of the concierge's own share:
  level 1 gets 10%, level 2 gets 5%, deeper levels get nothing.

NON-PRIME BOOKINGS:
  No guest fee. The venue is debited the per-head fee plus a processing
  surcharge, the concierge gets 80% of the per-head fee, the platform keeps
  the difference:

    per_head   = non_prime_fee_per_head * guest_count
    concierge  = round(per_head * 80 / 100)
    venue_paid = round(per_head * 107 / 100)     (recorded as a debit)
    platform   = venue_paid - concierge

CONSERVATION:
  Sum of earning rows + platform residual == TotalFee (0 for non-prime).
  Rounding error is never handed to a party.
*/
package earnings

import (
	"github.com/shopspring/decimal"
)

// Engine computes allocations. It is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine returns an engine bound to a copy of policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy { return e.policy }

// Calculate allocates the booking's money across its parties. Existing
// earnings are not touched; callers replace them.
func (e *Engine) Calculate(b BookingSnapshot) (Allocation, error) {
	if b.TotalFee < 0 {
		return Allocation{}, invalidState(b.ID, "total fee %d is negative", b.TotalFee)
	}
	if b.IsPrime {
		return e.calculatePrime(b)
	}
	return e.calculateNonPrime(b)
}

func (e *Engine) calculatePrime(b BookingSnapshot) (Allocation, error) {
	if b.Venue == nil {
		return Allocation{}, invalidState(b.ID, "prime booking has no venue")
	}
	if b.Concierge == nil {
		return Allocation{}, invalidState(b.ID, "prime booking has no concierge")
	}
	if err := checkPercent(b.ID, "venue payout", b.Venue.PayoutVenue); err != nil {
		return Allocation{}, err
	}
	if err := checkPercent(b.ID, "concierge payout", b.Concierge.PayoutPercentage); err != nil {
		return Allocation{}, err
	}

	partnerV, partnerC := decimal.Zero, decimal.Zero
	if b.PartnerVenue != nil {
		if err := checkPercent(b.ID, "venue partner", b.PartnerVenue.Percentage); err != nil {
			return Allocation{}, err
		}
		partnerV = b.PartnerVenue.Percentage
	}
	if b.PartnerConcierge != nil {
		if err := checkPercent(b.ID, "concierge partner", b.PartnerConcierge.Percentage); err != nil {
			return Allocation{}, err
		}
		partnerC = b.PartnerConcierge.Percentage
	}

	venueAmt := PercentOf(b.TotalFee, b.Venue.PayoutVenue)
	conciergeGross := PercentOf(b.TotalFee, b.Concierge.PayoutPercentage)
	remainder := b.TotalFee - venueAmt - conciergeGross

	var partnerVenueAmt, partnerConciergeAmt Cents
	if b.PartnerVenue != nil {
		partnerVenueAmt = PercentOf(remainder, partnerV)
	}
	if b.PartnerConcierge != nil {
		partnerConciergeAmt = PercentOf(remainder, partnerC)
	}

	alloc := newAllocation(b)
	alloc.add(b.Venue.UserID, EarningVenue, venueAmt)

	referrals := e.referrals(b.Concierge, conciergeGross)
	conciergeNet := conciergeGross
	for _, r := range referrals {
		conciergeNet -= r.Amount
	}
	alloc.add(b.Concierge.UserID, EarningConcierge, conciergeNet)
	for _, r := range referrals {
		alloc.add(r.UserID, r.Type, r.Amount)
	}

	if b.PartnerVenue != nil {
		alloc.add(b.PartnerVenue.UserID, EarningPartnerVenue, partnerVenueAmt)
	}
	if b.PartnerConcierge != nil {
		alloc.add(b.PartnerConcierge.UserID, EarningPartnerConcierge, partnerConciergeAmt)
	}

	alloc.PlatformEarnings = remainder - partnerVenueAmt - partnerConciergeAmt
	return alloc, nil
}

// referrals walks up the concierge's referral chain. Each level is paid a
// share of the concierge's gross earning; the walk stops at the policy
// cutoff or on a cycle.
func (e *Engine) referrals(c *Concierge, conciergeGross Cents) []Earning {
	var out []Earning
	seen := map[ConciergeID]bool{c.ID: true}
	ref := c.ReferredBy
	for level := 1; level <= MaxReferralLevels && ref != nil; level++ {
		if seen[ref.ID] {
			break
		}
		seen[ref.ID] = true
		out = append(out, Earning{
			UserID: ref.UserID,
			Type:   referralType(level),
			Amount: PercentOf(conciergeGross, e.policy.ReferralPercentage(level)),
		})
		ref = ref.ReferredBy
	}
	return out
}

func referralType(level int) EarningType {
	if level == 1 {
		return EarningConciergeReferral1
	}
	return EarningConciergeReferral2
}

func (e *Engine) calculateNonPrime(b BookingSnapshot) (Allocation, error) {
	if b.GuestCount < 1 {
		return Allocation{}, invalidState(b.ID, "non-prime booking has guest count %d", b.GuestCount)
	}
	if b.Venue == nil {
		return Allocation{}, invalidState(b.ID, "non-prime booking has no venue")
	}
	if b.Venue.NonPrimeFeePerHead < 0 {
		return Allocation{}, invalidState(b.ID, "venue per-head fee %d is negative", b.Venue.NonPrimeFeePerHead)
	}

	perHead := b.Venue.NonPrimeFeePerHead * Cents(b.GuestCount)
	venuePaid := PercentOf(perHead, e.policy.NonPrimeVenuePercentage)

	// Without a concierge the platform keeps the whole venue debit.
	alloc := newAllocation(b)
	var conciergeAmt Cents
	if b.Concierge != nil {
		conciergeAmt = PercentOf(perHead, e.policy.NonPrimeConciergePercentage)
		alloc.add(b.Concierge.UserID, EarningConcierge, conciergeAmt)
	}
	alloc.add(b.Venue.UserID, EarningVenuePaid, venuePaid)
	alloc.PlatformEarnings = -venuePaid - conciergeAmt
	return alloc, nil
}

func newAllocation(b BookingSnapshot) Allocation {
	return Allocation{
		BookingID: b.ID,
		Currency:  b.Currency,
		TotalFee:  b.TotalFee,
		IsPrime:   b.IsPrime,
		Earnings:  make([]Earning, 0, 6),
	}
}

func (a *Allocation) add(user UserID, t EarningType, amount Cents) {
	a.Earnings = append(a.Earnings, Earning{
		BookingID: a.BookingID,
		UserID:    user,
		Type:      t,
		Amount:    amount,
		Currency:  a.Currency,
	})
}

func checkPercent(id BookingID, name string, pct decimal.Decimal) error {
	if !inPercentRange(pct) {
		return invalidState(id, "%s percentage %s outside [0,100]", name, pct)
	}
	return nil
}
