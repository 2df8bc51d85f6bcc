package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/prima/earnings-engine/earnings"
	"github.com/prima/earnings-engine/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteEarnings(t *testing.T) {
	// GIVEN: Earnings for two users, one of them paid
	created := time.Date(2025, time.May, 4, 18, 30, 0, 0, time.UTC)
	es := []earnings.Earning{
		{BookingID: "bk-1", UserID: "u-b", Type: earnings.EarningConcierge, Amount: 2000, Currency: "USD", CreatedAt: created},
		{BookingID: "bk-1", UserID: "u-a", Type: earnings.EarningVenue, Amount: 12000, Currency: "USD", PaymentID: "pay-1"},
		{BookingID: "bk-2", UserID: "u-a", Type: earnings.EarningVenuePaid, Amount: -4280, Currency: "USD"},
	}

	// WHEN: Rendering the workbook
	var buf bytes.Buffer
	require.NoError(t, report.WriteEarnings(&buf, es))

	// THEN: It reopens with one row per earning and per-user totals
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{report.SheetEarnings, report.SheetTotals}, f.GetSheetList())

	rows, err := f.GetRows(report.SheetEarnings)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Booking", rows[0][0])
	assert.Equal(t, []string{"bk-1", "u-b", "concierge", "2000", "20.00", "USD", "FALSE", "2025-05-04 18:30:00"}, rows[1])
	assert.Equal(t, "TRUE", rows[2][6])
	assert.Equal(t, "-42.80", rows[3][4])

	totals, err := f.GetRows(report.SheetTotals)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, []string{"u-a", "7720", "77.20"}, totals[1])
	assert.Equal(t, []string{"u-b", "2000", "20.00"}, totals[2])
}

func TestWriteRecalculation(t *testing.T) {
	rep := &earnings.RecalculationReport{
		PartnersUpdated:      1,
		BookingsFound:        3,
		BookingsRecalculated: 2,
		Errors:               []earnings.BookingFailure{{BookingID: "bk-9", Message: "invalid booking state"}},
		RevenueByUser:        map[earnings.UserID]earnings.Cents{"u-p1": 1200},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteRecalculation(&buf, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(report.SheetRecalc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bookings found", "3"}, rows[2])
	assert.Equal(t, []string{"Failures", "1"}, rows[4])

	var found bool
	for _, r := range rows {
		if len(r) >= 2 && r[0] == "bk-9" {
			found = true
			assert.Equal(t, "invalid booking state", r[1])
		}
	}
	assert.True(t, found)

	last := rows[len(rows)-1]
	assert.Equal(t, []string{"u-p1", "1200", "12.00"}, last)
}
