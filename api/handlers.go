/*
handlers.go - HTTP API handlers for the earnings engine

PURPOSE:
  Exposes booking confirmation, earnings queries and batch recalculation
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the earnings package.

ENDPOINTS:
  Parties:
    POST   /api/venues                    Create or update a venue
    POST   /api/concierges                Create or update a concierge
    POST   /api/partners                  Create or update a partner
    GET    /api/partners/{id}             Partner details

  Bookings:
    POST   /api/bookings                  Create or update a booking
    GET    /api/bookings/{id}             Booking with platform earnings
    POST   /api/bookings/{id}/confirm     Confirm and allocate the fee
    POST   /api/bookings/{id}/recalculate Replace earnings of one booking
    POST   /api/bookings/{id}/preview     Allocation without persisting
    GET    /api/bookings/{id}/earnings    Stored earning rows

  Users:
    GET    /api/users/{id}/earnings       Earnings of one user (?unpaid=true)

  Admin:
    POST   /api/admin/recalculate         Batch recalculation (filter, dry_run)
    POST   /api/admin/partners/{id}/reset Set partner percentage and recalculate
                                          (both accept ?format=xlsx)
    GET    /api/admin/policy              Active commission policy

  Reports:
    GET    /api/reports/earnings.xlsx     XLSX export (?user_id=)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid booking state, invalid percentage
  - 404: Booking or partner not found
  - 409: Booking locked by another writer
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Admin routes must sit behind a
  gateway in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prima/earnings-engine/earnings"
	"github.com/prima/earnings-engine/factory"
	"github.com/prima/earnings-engine/report"
	"github.com/prima/earnings-engine/store/sqlite"
	"github.com/shopspring/decimal"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Service      *earnings.Service
	Recalculator *earnings.Recalculator
	Logger       *slog.Logger
}

// NewHandler wires a service and recalculator on top of store.
func NewHandler(store *sqlite.Store, svc *earnings.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:        store,
		Service:      svc,
		Recalculator: earnings.NewRecalculator(svc, store, store),
		Logger:       logger,
	}
}

// =============================================================================
// PARTY ENDPOINTS
// =============================================================================

// CreateVenue handles POST /api/venues
func (h *Handler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	var req CreateVenueRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "id and user_id are required", nil)
		return
	}
	if req.PayoutVenue.IsNegative() || req.PayoutVenue.GreaterThan(hundred) {
		writeError(w, http.StatusBadRequest, "payout_venue must be within [0,100]", nil)
		return
	}
	if req.NonPrimeFeePerHead < 0 {
		writeError(w, http.StatusBadRequest, "non_prime_fee_per_head must not be negative", nil)
		return
	}

	v := earnings.Venue{
		ID:                 earnings.VenueID(req.ID),
		UserID:             earnings.UserID(req.UserID),
		Name:               req.Name,
		PayoutVenue:        req.PayoutVenue,
		NonPrimeFeePerHead: earnings.Cents(req.NonPrimeFeePerHead),
	}
	if err := h.Store.SaveVenue(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save venue", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVenueDTO(v))
}

// CreateConcierge handles POST /api/concierges
func (h *Handler) CreateConcierge(w http.ResponseWriter, r *http.Request) {
	var req CreateConciergeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "id and user_id are required", nil)
		return
	}
	if req.PayoutPercentage.IsNegative() || req.PayoutPercentage.GreaterThan(hundred) {
		writeError(w, http.StatusBadRequest, "payout_percentage must be within [0,100]", nil)
		return
	}
	if req.ReferredBy == req.ID {
		writeError(w, http.StatusBadRequest, "a concierge cannot refer itself", nil)
		return
	}

	c := earnings.Concierge{
		ID:               earnings.ConciergeID(req.ID),
		UserID:           earnings.UserID(req.UserID),
		Name:             req.Name,
		PayoutPercentage: req.PayoutPercentage,
		ReferrerID:       earnings.ConciergeID(req.ReferredBy),
	}
	if err := h.Store.SaveConcierge(r.Context(), c); err != nil {
		writeStoreError(w, "failed to save concierge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toConciergeDTO(c))
}

// CreatePartner handles POST /api/partners
func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req CreatePartnerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "id and user_id are required", nil)
		return
	}
	if req.Percentage.IsNegative() || req.Percentage.GreaterThan(hundred) {
		writeError(w, http.StatusBadRequest, "percentage must be within [0,100]", nil)
		return
	}

	p := earnings.Partner{
		ID:         earnings.PartnerID(req.ID),
		UserID:     earnings.UserID(req.UserID),
		Name:       req.Name,
		Percentage: req.Percentage,
	}
	if err := h.Store.SavePartner(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save partner", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartnerDTO(p))
}

// GetPartner handles GET /api/partners/{id}
func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	id := earnings.PartnerID(chi.URLParam(r, "id"))
	p, err := h.Store.GetPartner(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get partner", err)
		return
	}
	writeJSON(w, http.StatusOK, toPartnerDTO(p))
}

// =============================================================================
// BOOKING ENDPOINTS
// =============================================================================

// CreateBooking handles POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	if req.TotalFee < 0 || req.GuestCount < 0 {
		writeError(w, http.StatusBadRequest, "total_fee and guest_count must not be negative", nil)
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	b := earnings.Booking{
		ID:                 earnings.BookingID(req.ID),
		TotalFee:           earnings.Cents(req.TotalFee),
		GuestCount:         req.GuestCount,
		IsPrime:            req.IsPrime,
		Currency:           strings.ToUpper(req.Currency),
		VenueID:            earnings.VenueID(req.VenueID),
		ConciergeID:        earnings.ConciergeID(req.ConciergeID),
		PartnerVenueID:     earnings.PartnerID(req.PartnerVenueID),
		PartnerConciergeID: earnings.PartnerID(req.PartnerConciergeID),
	}
	if err := h.Store.SaveBooking(r.Context(), b); err != nil {
		writeStoreError(w, "failed to save booking", err)
		return
	}
	saved, err := h.Store.GetBooking(r.Context(), b.ID)
	if err != nil {
		writeDomainError(w, "failed to load booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(saved))
}

// GetBooking handles GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Store.GetBooking(r.Context(), bookingID(r))
	if err != nil {
		writeDomainError(w, "failed to get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// ConfirmBooking handles POST /api/bookings/{id}/confirm
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	alloc, err := h.Service.Confirm(r.Context(), bookingID(r))
	if err != nil {
		writeDomainError(w, "failed to confirm booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(alloc, true))
}

// RecalculateBooking handles POST /api/bookings/{id}/recalculate
func (h *Handler) RecalculateBooking(w http.ResponseWriter, r *http.Request) {
	alloc, err := h.Service.Recalculate(r.Context(), bookingID(r))
	if err != nil {
		writeDomainError(w, "failed to recalculate booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(alloc, true))
}

// PreviewBooking handles POST /api/bookings/{id}/preview
func (h *Handler) PreviewBooking(w http.ResponseWriter, r *http.Request) {
	alloc, err := h.Service.Preview(r.Context(), bookingID(r))
	if err != nil {
		writeDomainError(w, "failed to preview booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(alloc, false))
}

// GetBookingEarnings handles GET /api/bookings/{id}/earnings
func (h *Handler) GetBookingEarnings(w http.ResponseWriter, r *http.Request) {
	id := bookingID(r)
	if _, err := h.Store.GetBooking(r.Context(), id); err != nil {
		writeDomainError(w, "failed to get booking", err)
		return
	}
	es, err := h.Store.Earnings(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get earnings", err)
		return
	}
	writeJSON(w, http.StatusOK, toEarningDTOs(es))
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// GetUserEarnings handles GET /api/users/{id}/earnings
func (h *Handler) GetUserEarnings(w http.ResponseWriter, r *http.Request) {
	user := earnings.UserID(chi.URLParam(r, "id"))
	unpaid, err := boolQuery(r, "unpaid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unpaid parameter", err)
		return
	}

	es, err := h.Store.EarningsByUser(r.Context(), user, unpaid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get earnings", err)
		return
	}

	resp := UserEarningsResponse{
		UserID:   string(user),
		ByType:   make(map[string]int64),
		Earnings: toEarningDTOs(es),
	}
	for t, c := range earnings.SumByType(es) {
		resp.ByType[string(t)] = int64(c)
		resp.Total += int64(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// Recalculate handles POST /api/admin/recalculate
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if !checkReportFormat(w, r) || !decode(w, r, &req) {
		return
	}
	filter := earnings.BookingFilter{
		PartnerID:     earnings.PartnerID(req.PartnerID),
		VenueID:       earnings.VenueID(req.VenueID),
		ConciergeID:   earnings.ConciergeID(req.ConciergeID),
		PrimeOnly:     req.PrimeOnly,
		ConfirmedOnly: req.ConfirmedOnly,
	}
	rep, err := h.Recalculator.Run(r.Context(), filter, req.DryRun)
	h.writeReport(w, r, rep, err)
}

// ResetPartner handles POST /api/admin/partners/{id}/reset
func (h *Handler) ResetPartner(w http.ResponseWriter, r *http.Request) {
	var req ResetPartnerRequest
	if !checkReportFormat(w, r) || !decode(w, r, &req) {
		return
	}
	if req.Percentage == nil {
		writeError(w, http.StatusBadRequest, "percentage is required", nil)
		return
	}
	id := earnings.PartnerID(chi.URLParam(r, "id"))
	rep, err := h.Recalculator.ResetPartnerPercentage(r.Context(), id, *req.Percentage, req.DryRun)
	h.writeReport(w, r, rep, err)
}

// writeReport answers 200 for a clean run and 207 when some bookings
// failed; the failures are listed in the body either way. ?format=xlsx
// returns the report as a workbook instead of JSON.
func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, rep *earnings.RecalculationReport, err error) {
	if err != nil && !earnings.IsPartialFailure(err) {
		writeDomainError(w, "recalculation failed", err)
		return
	}
	status := http.StatusOK
	if len(rep.Errors) > 0 {
		status = http.StatusMultiStatus
	}

	if r.URL.Query().Get("format") != "xlsx" {
		writeJSON(w, status, toReportDTO(rep))
		return
	}
	var buf bytes.Buffer
	if err := report.WriteRecalculation(&buf, rep); err != nil {
		h.Logger.Error("render recalculation report failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render report", err)
		return
	}
	writeXLSX(w, status, "recalculation.xlsx", buf.Bytes())
}

// checkReportFormat rejects unknown formats before any booking is touched.
func checkReportFormat(w http.ResponseWriter, r *http.Request) bool {
	switch r.URL.Query().Get("format") {
	case "", "json", "xlsx":
		return true
	}
	writeError(w, http.StatusBadRequest, "format must be json or xlsx", nil)
	return false
}

// GetPolicy handles GET /api/admin/policy
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.ToDocument(h.Service.Engine.Policy()))
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// EarningsReport handles GET /api/reports/earnings.xlsx?user_id=
func (h *Handler) EarningsReport(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user_id")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	unpaid, err := boolQuery(r, "unpaid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unpaid parameter", err)
		return
	}
	es, err := h.Store.EarningsByUser(r.Context(), earnings.UserID(user), unpaid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get earnings", err)
		return
	}

	// Render into a buffer so a failed write still gets a JSON error.
	var buf bytes.Buffer
	if err := report.WriteEarnings(&buf, es); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render report", err)
		return
	}
	writeXLSX(w, http.StatusOK, fmt.Sprintf("earnings-%s.xlsx", user), buf.Bytes())
}

// ResetDatabase handles POST /api/reset (dev only)
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

func bookingID(r *http.Request) earnings.BookingID {
	return earnings.BookingID(chi.URLParam(r, "id"))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeXLSX(w http.ResponseWriter, status int, filename string, body []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps earnings errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case earnings.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case earnings.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	case earnings.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, earnings.ErrStoreRequired):
		writeError(w, http.StatusNotImplemented, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// writeStoreError reports dangling party references as client errors.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	if sqlite.IsForeignKeyViolation(err) {
		writeError(w, http.StatusBadRequest, message, errors.New("referenced venue, concierge or partner does not exist"))
		return
	}
	writeError(w, http.StatusInternalServerError, message, err)
}
