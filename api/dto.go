/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  earnings domain types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers around several DTOs

MONEY:
  Amounts are integer minor units (cents). Percentages are decimals and
  accept either JSON numbers or strings ("6.5").

VALIDATION:
  Validation is done in handlers, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/prima/earnings-engine/earnings"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PARTIES
// =============================================================================

type CreateVenueRequest struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	Name               string          `json:"name"`
	PayoutVenue        decimal.Decimal `json:"payout_venue"`
	NonPrimeFeePerHead int64           `json:"non_prime_fee_per_head"`
}

type VenueDTO struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	Name               string          `json:"name"`
	PayoutVenue        decimal.Decimal `json:"payout_venue"`
	NonPrimeFeePerHead int64           `json:"non_prime_fee_per_head"`
}

type CreateConciergeRequest struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Name             string          `json:"name"`
	PayoutPercentage decimal.Decimal `json:"payout_percentage"`
	ReferredBy       string          `json:"referred_by,omitempty"`
}

type ConciergeDTO struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Name             string          `json:"name"`
	PayoutPercentage decimal.Decimal `json:"payout_percentage"`
	ReferredBy       string          `json:"referred_by,omitempty"`
}

type CreatePartnerRequest struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
}

type PartnerDTO struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
}

// =============================================================================
// BOOKINGS
// =============================================================================

type CreateBookingRequest struct {
	ID                 string `json:"id"`
	TotalFee           int64  `json:"total_fee"`
	GuestCount         int    `json:"guest_count"`
	IsPrime            bool   `json:"is_prime"`
	Currency           string `json:"currency"`
	VenueID            string `json:"venue_id"`
	ConciergeID        string `json:"concierge_id"`
	PartnerVenueID     string `json:"partner_venue_id,omitempty"`
	PartnerConciergeID string `json:"partner_concierge_id,omitempty"`
}

type BookingDTO struct {
	ID                 string `json:"id"`
	TotalFee           int64  `json:"total_fee"`
	GuestCount         int    `json:"guest_count"`
	IsPrime            bool   `json:"is_prime"`
	Currency           string `json:"currency"`
	VenueID            string `json:"venue_id,omitempty"`
	ConciergeID        string `json:"concierge_id,omitempty"`
	PartnerVenueID     string `json:"partner_venue_id,omitempty"`
	PartnerConciergeID string `json:"partner_concierge_id,omitempty"`
	PlatformEarnings   int64  `json:"platform_earnings"`
	Status             string `json:"status"`
	ConfirmedAt        string `json:"confirmed_at,omitempty"`
}

// =============================================================================
// EARNINGS
// =============================================================================

type EarningDTO struct {
	ID        string `json:"id,omitempty"`
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Paid      bool   `json:"paid"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AllocationDTO is the result of confirming, recalculating or previewing
// one booking.
type AllocationDTO struct {
	BookingID        string       `json:"booking_id"`
	Currency         string       `json:"currency"`
	IsPrime          bool         `json:"is_prime"`
	TotalFee         int64        `json:"total_fee"`
	PlatformEarnings int64        `json:"platform_earnings"`
	Earnings         []EarningDTO `json:"earnings"`
	Persisted        bool         `json:"persisted"`
}

type UserEarningsResponse struct {
	UserID   string           `json:"user_id"`
	Total    int64            `json:"total"`
	ByType   map[string]int64 `json:"by_type"`
	Earnings []EarningDTO     `json:"earnings"`
}

// =============================================================================
// ADMIN
// =============================================================================

type RecalculateRequest struct {
	PartnerID     string `json:"partner_id,omitempty"`
	VenueID       string `json:"venue_id,omitempty"`
	ConciergeID   string `json:"concierge_id,omitempty"`
	PrimeOnly     bool   `json:"prime_only,omitempty"`
	ConfirmedOnly bool   `json:"confirmed_only,omitempty"`
	DryRun        bool   `json:"dry_run"`
}

type ResetPartnerRequest struct {
	Percentage *decimal.Decimal `json:"percentage"`
	DryRun     bool             `json:"dry_run"`
}

type RecalculationReportDTO struct {
	DryRun               bool                      `json:"dry_run"`
	PartnersUpdated      int                       `json:"partners_updated"`
	BookingsFound        int                       `json:"bookings_found"`
	BookingsRecalculated int                       `json:"bookings_recalculated"`
	Errors               []earnings.BookingFailure `json:"errors"`
	RevenueByUser        map[string]int64          `json:"revenue_by_user,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toVenueDTO(v earnings.Venue) VenueDTO {
	return VenueDTO{
		ID:                 string(v.ID),
		UserID:             string(v.UserID),
		Name:               v.Name,
		PayoutVenue:        v.PayoutVenue,
		NonPrimeFeePerHead: int64(v.NonPrimeFeePerHead),
	}
}

func toConciergeDTO(c earnings.Concierge) ConciergeDTO {
	return ConciergeDTO{
		ID:               string(c.ID),
		UserID:           string(c.UserID),
		Name:             c.Name,
		PayoutPercentage: c.PayoutPercentage,
		ReferredBy:       string(c.ReferrerID),
	}
}

func toPartnerDTO(p earnings.Partner) PartnerDTO {
	return PartnerDTO{
		ID:         string(p.ID),
		UserID:     string(p.UserID),
		Name:       p.Name,
		Percentage: p.Percentage,
	}
}

func toBookingDTO(b earnings.Booking) BookingDTO {
	dto := BookingDTO{
		ID:                 string(b.ID),
		TotalFee:           int64(b.TotalFee),
		GuestCount:         b.GuestCount,
		IsPrime:            b.IsPrime,
		Currency:           b.Currency,
		VenueID:            string(b.VenueID),
		ConciergeID:        string(b.ConciergeID),
		PartnerVenueID:     string(b.PartnerVenueID),
		PartnerConciergeID: string(b.PartnerConciergeID),
		PlatformEarnings:   int64(b.PlatformEarnings),
		Status:             "pending",
	}
	if b.IsConfirmed() {
		dto.Status = "confirmed"
		dto.ConfirmedAt = b.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toEarningDTOs(es []earnings.Earning) []EarningDTO {
	out := make([]EarningDTO, 0, len(es))
	for _, e := range es {
		dto := EarningDTO{
			ID:        string(e.ID),
			BookingID: string(e.BookingID),
			UserID:    string(e.UserID),
			Type:      string(e.Type),
			Amount:    int64(e.Amount),
			Currency:  e.Currency,
			Paid:      e.IsPaid(),
		}
		if !e.CreatedAt.IsZero() {
			dto.CreatedAt = e.CreatedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, dto)
	}
	return out
}

func toAllocationDTO(a earnings.Allocation, persisted bool) AllocationDTO {
	return AllocationDTO{
		BookingID:        string(a.BookingID),
		Currency:         a.Currency,
		IsPrime:          a.IsPrime,
		TotalFee:         int64(a.TotalFee),
		PlatformEarnings: int64(a.PlatformEarnings),
		Earnings:         toEarningDTOs(a.Earnings),
		Persisted:        persisted,
	}
}

func toReportDTO(r *earnings.RecalculationReport) RecalculationReportDTO {
	dto := RecalculationReportDTO{
		DryRun:               r.DryRun,
		PartnersUpdated:      r.PartnersUpdated,
		BookingsFound:        r.BookingsFound,
		BookingsRecalculated: r.BookingsRecalculated,
		Errors:               r.Errors,
	}
	if dto.Errors == nil {
		dto.Errors = []earnings.BookingFailure{}
	}
	if len(r.RevenueByUser) > 0 {
		dto.RevenueByUser = make(map[string]int64, len(r.RevenueByUser))
		for u, c := range r.RevenueByUser {
			dto.RevenueByUser[string(u)] = int64(c)
		}
	}
	return dto
}
