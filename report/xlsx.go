/*
Package report renders earnings data as XLSX workbooks for finance.

SHEETS:
  Earnings:  One row per earning (booking, user, type, amount, paid)
  Totals:    Per-user sums, sorted by user id
  Recalc:    Outcome of a batch recalculation, failures listed by booking

Amounts are written in minor units and as a formatted major-unit string so
spreadsheets can sum the integers without float drift.
*/
package report

import (
	"fmt"
	"io"

	"github.com/prima/earnings-engine/earnings"
	"github.com/xuri/excelize/v2"
)

const (
	SheetEarnings = "Earnings"
	SheetTotals   = "Totals"
	SheetRecalc   = "Recalc"
)

var earningHeaders = []string{"Booking", "User", "Type", "Amount (cents)", "Amount", "Currency", "Paid", "Created"}

// WriteEarnings writes the earnings and per-user totals sheets to w.
func WriteEarnings(w io.Writer, es []earnings.Earning) error {
	f, err := newWorkbook(SheetEarnings, SheetTotals)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeRow(f, SheetEarnings, 1, toAny(earningHeaders)); err != nil {
		return err
	}
	for i, e := range es {
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.UTC().Format("2006-01-02 15:04:05")
		}
		row := []any{
			string(e.BookingID), string(e.UserID), string(e.Type),
			int64(e.Amount), e.Amount.String(), e.Currency, e.IsPaid(), created,
		}
		if err := writeRow(f, SheetEarnings, i+2, row); err != nil {
			return err
		}
	}

	if err := writeRow(f, SheetTotals, 1, []any{"User", "Amount (cents)", "Amount"}); err != nil {
		return err
	}
	for i, t := range earnings.SortedTotals(earnings.SumByUser(es)) {
		if err := writeRow(f, SheetTotals, i+2, []any{string(t.UserID), int64(t.Amount), t.Amount.String()}); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// WriteRecalculation writes a batch report: a summary block, then one row
// per failed booking.
func WriteRecalculation(w io.Writer, r *earnings.RecalculationReport) error {
	f, err := newWorkbook(SheetRecalc)
	if err != nil {
		return err
	}
	defer f.Close()

	summary := [][]any{
		{"Dry run", r.DryRun},
		{"Partners updated", r.PartnersUpdated},
		{"Bookings found", r.BookingsFound},
		{"Bookings recalculated", r.BookingsRecalculated},
		{"Failures", len(r.Errors)},
	}
	row := 1
	for _, s := range summary {
		if err := writeRow(f, SheetRecalc, row, s); err != nil {
			return err
		}
		row++
	}

	row++
	if err := writeRow(f, SheetRecalc, row, []any{"Booking", "Error"}); err != nil {
		return err
	}
	for _, fail := range r.Errors {
		row++
		if err := writeRow(f, SheetRecalc, row, []any{string(fail.BookingID), fail.Message}); err != nil {
			return err
		}
	}

	if len(r.RevenueByUser) > 0 {
		row += 2
		if err := writeRow(f, SheetRecalc, row, []any{"Partner user", "Revenue (cents)", "Revenue"}); err != nil {
			return err
		}
		for _, t := range earnings.SortedTotals(r.RevenueByUser) {
			row++
			if err := writeRow(f, SheetRecalc, row, []any{string(t.UserID), int64(t.Amount), t.Amount.String()}); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

// newWorkbook creates a file with the named sheets and drops the default
// "Sheet1". The first named sheet is active.
func newWorkbook(sheets ...string) (*excelize.File, error) {
	f := excelize.NewFile()
	for _, name := range sheets {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(sheets[0])
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(idx)
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
