package earnings

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy holds the fixed commission percentages applied to every booking.
// It is a value: engines copy it at construction and never mutate it.
type Policy struct {
	// Reference constants. The live platform share is always the residual.
	PlatformPercentageConcierge decimal.Decimal
	PlatformPercentageVenue     decimal.Decimal

	NonPrimeConciergePercentage     decimal.Decimal
	NonPrimeProcessingFeePercentage decimal.Decimal
	// NonPrimeVenuePercentage is negative: the venue pays the per-head fee
	// plus the processing surcharge.
	NonPrimeVenuePercentage decimal.Decimal

	ReferralLevel1Percentage decimal.Decimal
	ReferralLevel2Percentage decimal.Decimal
}

// MaxReferralLevels is the depth at which the referral chain stops paying.
const MaxReferralLevels = 2

// DefaultPolicy returns the production percentages.
func DefaultPolicy() Policy {
	return Policy{
		PlatformPercentageConcierge:     decimal.NewFromInt(20),
		PlatformPercentageVenue:         decimal.NewFromInt(10),
		NonPrimeConciergePercentage:     decimal.NewFromInt(80),
		NonPrimeProcessingFeePercentage: decimal.NewFromInt(7),
		NonPrimeVenuePercentage:         decimal.NewFromInt(-107),
		ReferralLevel1Percentage:        decimal.NewFromInt(10),
		ReferralLevel2Percentage:        decimal.NewFromInt(5),
	}
}

// ReferralPercentage returns the share of the concierge earning paid to the
// referrer at the given level (1-based), or zero past the cutoff.
func (p Policy) ReferralPercentage(level int) decimal.Decimal {
	switch level {
	case 1:
		return p.ReferralLevel1Percentage
	case 2:
		return p.ReferralLevel2Percentage
	default:
		return decimal.Zero
	}
}

// Validate checks every percentage is inside its domain.
func (p Policy) Validate() error {
	checks := []struct {
		name string
		v    decimal.Decimal
	}{
		{"platform_percentage_concierge", p.PlatformPercentageConcierge},
		{"platform_percentage_venue", p.PlatformPercentageVenue},
		{"non_prime_concierge_percentage", p.NonPrimeConciergePercentage},
		{"non_prime_processing_fee_percentage", p.NonPrimeProcessingFeePercentage},
		{"referral_level_1_percentage", p.ReferralLevel1Percentage},
		{"referral_level_2_percentage", p.ReferralLevel2Percentage},
	}
	for _, c := range checks {
		if !inPercentRange(c.v) {
			return fmt.Errorf("%w: %s must be within [0,100], got %s", ErrInvalidPolicy, c.name, c.v)
		}
	}
	if p.NonPrimeVenuePercentage.IsPositive() {
		return fmt.Errorf("%w: non_prime_venue_percentage must not be positive, got %s", ErrInvalidPolicy, p.NonPrimeVenuePercentage)
	}
	if want := hundred.Add(p.NonPrimeProcessingFeePercentage).Neg(); !p.NonPrimeVenuePercentage.Equal(want) {
		return fmt.Errorf("%w: non_prime_venue_percentage %s does not match processing fee %s%% (want %s)",
			ErrInvalidPolicy, p.NonPrimeVenuePercentage, p.NonPrimeProcessingFeePercentage, want)
	}
	if p.NonPrimeVenuePercentage.Neg().LessThan(p.NonPrimeConciergePercentage) {
		return fmt.Errorf("%w: venue debit %s%% is smaller than the concierge share %s%%",
			ErrInvalidPolicy, p.NonPrimeVenuePercentage.Neg(), p.NonPrimeConciergePercentage)
	}
	if p.ReferralLevel1Percentage.Add(p.ReferralLevel2Percentage).GreaterThan(hundred) {
		return fmt.Errorf("%w: referral levels exceed 100%%", ErrInvalidPolicy)
	}
	return nil
}

func inPercentRange(d decimal.Decimal) bool {
	return !d.IsNegative() && !d.GreaterThan(hundred)
}
