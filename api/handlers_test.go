/*
handlers_test.go - HTTP tests for the earnings API

Tests for:
- Party and booking registration
- Confirmation, preview and earnings queries
- Batch recalculation and partner reset
- Error status mapping
- XLSX export
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prima/earnings-engine/earnings"
	"github.com/prima/earnings-engine/report"
	"github.com/prima/earnings-engine/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *sqlite.Store
	svc    *earnings.Service
}

func newTestServer(t *testing.T) *testServer {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := earnings.NewService(earnings.NewEngine(earnings.DefaultPolicy()), store, logger)
	h := NewHandler(store, svc, logger)
	return &testServer{
		t:      t,
		router: NewRouter(h, RouterOptions{EnableReset: true}),
		store:  store,
		svc:    svc,
	}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed registers venue v1 (60%), concierge c0 (10%), partner p1 (6%) and a
// $200 prime booking bk-1 attached to p1 on the venue side.
func (s *testServer) seed() {
	s.t.Helper()
	require.Equal(s.t, http.StatusCreated, s.do("POST", "/api/venues", map[string]any{
		"id": "v1", "user_id": "u-v1", "name": "Bistro", "payout_venue": 60, "non_prime_fee_per_head": 1000,
	}).Code)
	require.Equal(s.t, http.StatusCreated, s.do("POST", "/api/concierges", map[string]any{
		"id": "c0", "user_id": "u-c0", "payout_percentage": "10",
	}).Code)
	require.Equal(s.t, http.StatusCreated, s.do("POST", "/api/partners", map[string]any{
		"id": "p1", "user_id": "u-p1", "percentage": 6,
	}).Code)
	require.Equal(s.t, http.StatusCreated, s.do("POST", "/api/bookings", map[string]any{
		"id": "bk-1", "total_fee": 20000, "is_prime": true, "currency": "usd",
		"venue_id": "v1", "concierge_id": "c0", "partner_venue_id": "p1",
	}).Code)
}

// =============================================================================
// BOOKING FLOW
// =============================================================================

func TestConfirmBooking_AllocatesFee(t *testing.T) {
	// GIVEN: A seeded prime booking
	s := newTestServer(t)
	s.seed()

	// WHEN: Confirming it
	rec := s.do("POST", "/api/bookings/bk-1/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The allocation is returned and persisted
	alloc := decodeBody[AllocationDTO](t, rec)
	assert.True(t, alloc.Persisted)
	assert.Equal(t, "USD", alloc.Currency)
	assert.Equal(t, int64(5640), alloc.PlatformEarnings)
	require.Len(t, alloc.Earnings, 3)
	assert.Equal(t, "venue", alloc.Earnings[0].Type)
	assert.Equal(t, int64(12000), alloc.Earnings[0].Amount)
	assert.Equal(t, int64(360), alloc.Earnings[2].Amount)

	booking := decodeBody[BookingDTO](t, s.do("GET", "/api/bookings/bk-1", nil))
	assert.Equal(t, "confirmed", booking.Status)
	assert.NotEmpty(t, booking.ConfirmedAt)
	assert.Equal(t, int64(5640), booking.PlatformEarnings)

	rows := decodeBody[[]EarningDTO](t, s.do("GET", "/api/bookings/bk-1/earnings", nil))
	assert.Len(t, rows, 3)
}

func TestPreviewBooking_DoesNotPersist(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	rec := s.do("POST", "/api/bookings/bk-1/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	alloc := decodeBody[AllocationDTO](t, rec)
	assert.False(t, alloc.Persisted)
	assert.Len(t, alloc.Earnings, 3)

	rows := decodeBody[[]EarningDTO](t, s.do("GET", "/api/bookings/bk-1/earnings", nil))
	assert.Empty(t, rows)
	booking := decodeBody[BookingDTO](t, s.do("GET", "/api/bookings/bk-1", nil))
	assert.Equal(t, "pending", booking.Status)
}

func TestGetUserEarnings(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusOK, s.do("POST", "/api/bookings/bk-1/confirm", nil).Code)

	rec := s.do("GET", "/api/users/u-v1/earnings?unpaid=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[UserEarningsResponse](t, rec)
	assert.Equal(t, int64(12000), resp.Total)
	assert.Equal(t, map[string]int64{"venue": 12000}, resp.ByType)

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/users/u-v1/earnings?unpaid=maybe", nil).Code)
}

func TestConfirmBooking_NonPrime(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/bookings", map[string]any{
		"id": "bk-np", "guest_count": 4, "venue_id": "v1", "concierge_id": "c0",
	}).Code)

	rec := s.do("POST", "/api/bookings/bk-np/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	alloc := decodeBody[AllocationDTO](t, rec)
	assert.Equal(t, int64(1080), alloc.PlatformEarnings)
	require.Len(t, alloc.Earnings, 2)
	assert.Equal(t, "venue_paid", alloc.Earnings[1].Type)
	assert.Equal(t, int64(-4280), alloc.Earnings[1].Amount)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/bookings", map[string]any{
		"id": "bk-bad", "total_fee": 100, "is_prime": true, "concierge_id": "c0",
	}).Code)

	// Unknown booking
	rec := s.do("POST", "/api/bookings/missing/confirm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "failed to confirm booking", decodeBody[ErrorResponse](t, rec).Error)

	// Prime booking without a venue
	rec = s.do("POST", "/api/bookings/bk-bad/confirm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "no venue")

	// Dangling party reference
	rec = s.do("POST", "/api/bookings", map[string]any{"id": "bk-x", "venue_id": "ghost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Percentage out of range
	rec = s.do("POST", "/api/partners", map[string]any{"id": "p9", "user_id": "u", "percentage": 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed body
	req := httptest.NewRequest("POST", "/api/venues", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/partners/ghost", nil).Code)
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, earnings.BookingID) (func(), error) {
	return nil, earnings.ErrLockNotAcquired
}

func TestConfirmBooking_LockedIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	s.svc.Locker = busyLocker{}

	assert.Equal(t, http.StatusConflict, s.do("POST", "/api/bookings/bk-1/confirm", nil).Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestRecalculate_ReportsPartialFailure(t *testing.T) {
	// GIVEN: One valid booking and one that can never be allocated
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/bookings", map[string]any{
		"id": "bk-2", "total_fee": 100, "is_prime": true, "concierge_id": "c0",
	}).Code)

	// WHEN: Recalculating all prime bookings
	rec := s.do("POST", "/api/admin/recalculate", RecalculateRequest{PrimeOnly: true})

	// THEN: The batch completes and lists the failure
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	rep := decodeBody[RecalculationReportDTO](t, rec)
	assert.Equal(t, 2, rep.BookingsFound)
	assert.Equal(t, 1, rep.BookingsRecalculated)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, earnings.BookingID("bk-2"), rep.Errors[0].BookingID)
}

func TestResetPartner(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusOK, s.do("POST", "/api/bookings/bk-1/confirm", nil).Code)

	// Dry run leaves the partner untouched
	rec := s.do("POST", "/api/admin/partners/p1/reset", map[string]any{"percentage": 10, "dry_run": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decodeBody[RecalculationReportDTO](t, rec)
	assert.True(t, rep.DryRun)
	assert.Equal(t, map[string]int64{"u-p1": 600}, rep.RevenueByUser)
	assert.Equal(t, "6", decodeBody[PartnerDTO](t, s.do("GET", "/api/partners/p1", nil)).Percentage.String())

	// Live run updates it and rewrites the booking
	rec = s.do("POST", "/api/admin/partners/p1/reset", map[string]any{"percentage": "10"})
	require.Equal(t, http.StatusOK, rec.Code)
	rep = decodeBody[RecalculationReportDTO](t, rec)
	assert.Equal(t, 1, rep.PartnersUpdated)
	assert.Equal(t, "10", decodeBody[PartnerDTO](t, s.do("GET", "/api/partners/p1", nil)).Percentage.String())

	booking := decodeBody[BookingDTO](t, s.do("GET", "/api/bookings/bk-1", nil))
	assert.Equal(t, int64(5400), booking.PlatformEarnings)

	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/admin/partners/p1/reset", map[string]any{"percentage": 101}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/admin/partners/p1/reset", map[string]any{}).Code)
	assert.Equal(t, http.StatusNotFound, s.do("POST", "/api/admin/partners/ghost/reset", map[string]any{"percentage": 5}).Code)
}

func TestRecalculate_XLSXFormat(t *testing.T) {
	// GIVEN: A confirmed booking attached to partner p1
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusOK, s.do("POST", "/api/bookings/bk-1/confirm", nil).Code)

	// WHEN: Asking for the partner reset report as a workbook
	rec := s.do("POST", "/api/admin/partners/p1/reset?format=xlsx", map[string]any{"percentage": 10, "dry_run": true})

	// THEN: The recalculation sheet carries the counts and partner revenue
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "recalculation.xlsx")
	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.SheetRecalc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dry run", "TRUE"}, rows[0])
	assert.Equal(t, []string{"Bookings recalculated", "1"}, rows[3])
	assert.Equal(t, []string{"u-p1", "600", "6.00"}, rows[len(rows)-1])

	// Batch recalculation serves the same format
	rec = s.do("POST", "/api/admin/recalculate?format=xlsx", RecalculateRequest{DryRun: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
}

func TestRecalculate_UnknownFormatRejectedBeforeRunning(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	rec := s.do("POST", "/api/admin/partners/p1/reset?format=csv", map[string]any{"percentage": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "6", decodeBody[PartnerDTO](t, s.do("GET", "/api/partners/p1", nil)).Percentage.String())
}

func TestGetPolicy(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("GET", "/api/admin/policy", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "10", doc["referral"]["level_1_percentage"])
	assert.Equal(t, "-107", doc["non_prime"]["venue_percentage"])
}

// =============================================================================
// REPORTS
// =============================================================================

func TestEarningsReport_XLSX(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusOK, s.do("POST", "/api/bookings/bk-1/confirm", nil).Code)

	rec := s.do("GET", "/api/reports/earnings.xlsx?user_id=u-c0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "earnings-u-c0.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Earnings")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2000", rows[1][3])

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/reports/earnings.xlsx", nil).Code)
}

func TestResetDatabase(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusOK, s.do("POST", "/api/reset", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/bookings/bk-1", nil).Code)
}
