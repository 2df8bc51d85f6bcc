/*
recalc.go - Bulk earnings recalculation

PURPOSE:
  Re-runs the allocation for a filtered set of bookings after a percentage
  change, e.g. when an operator resets a partner's percentage.

DESIGN:
  - Bookings are paged in chunks (ChunkSize, default 100) by ascending id
  - Each chunk runs with bounded parallelism (Concurrency, default 4)
  - Each booking holds its own lock and its own store transaction, so a
    failure rolls back that booking only
  - Failures are logged with the booking id and collected, sorted by
    booking id; the batch continues. Nothing is retried here.
  - Dry runs compute allocations without writing anything

OUTPUT:
  RecalculationReport: counts, per-booking failures and the partner revenue
  totals of the recalculated bookings.
*/
package earnings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize   = 100
	DefaultConcurrency = 4
)

// RecalculationReport summarizes one batch run.
type RecalculationReport struct {
	DryRun               bool
	PartnersUpdated      int
	BookingsFound        int
	BookingsRecalculated int
	Errors               []BookingFailure

	// RevenueByUser totals partner earnings of the processed bookings.
	RevenueByUser map[UserID]Cents
}

// Err returns a *PartialBatchFailure when any booking failed.
func (r *RecalculationReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &PartialBatchFailure{Processed: r.BookingsFound, Failures: r.Errors}
}

// Recalculator drives Service over many bookings.
type Recalculator struct {
	Service     *Service
	Finder      BookingFinder
	Partners    PartnerStore
	ChunkSize   int
	Concurrency int
}

func NewRecalculator(svc *Service, finder BookingFinder, partners PartnerStore) *Recalculator {
	return &Recalculator{
		Service:     svc,
		Finder:      finder,
		Partners:    partners,
		ChunkSize:   DefaultChunkSize,
		Concurrency: DefaultConcurrency,
	}
}

// Run recalculates every booking matching filter.
func (r *Recalculator) Run(ctx context.Context, filter BookingFilter, dryRun bool) (*RecalculationReport, error) {
	return r.run(ctx, filter, dryRun, nil)
}

// ResetPartnerPercentage sets a partner's percentage and recalculates every
// booking the partner is attached to, on either side. On a dry run the
// partner is left untouched and the new percentage is applied in memory.
func (r *Recalculator) ResetPartnerPercentage(ctx context.Context, id PartnerID, pct decimal.Decimal, dryRun bool) (*RecalculationReport, error) {
	if r.Partners == nil {
		return nil, ErrStoreRequired
	}
	if !inPercentRange(pct) {
		return nil, fmt.Errorf("%w: partner %s: %s", ErrInvalidPercentage, id, pct)
	}
	if _, err := r.Partners.GetPartner(ctx, id); err != nil {
		return nil, err
	}

	var adjust func(*BookingSnapshot)
	if dryRun {
		adjust = func(b *BookingSnapshot) {
			for _, p := range []*Partner{b.PartnerVenue, b.PartnerConcierge} {
				if p != nil && p.ID == id {
					p.Percentage = pct
				}
			}
		}
	} else {
		if err := r.Partners.UpdatePartnerPercentage(ctx, id, pct); err != nil {
			return nil, fmt.Errorf("update partner %s: %w", id, err)
		}
	}

	report, err := r.run(ctx, BookingFilter{PartnerID: id, ConfirmedOnly: true}, dryRun, adjust)
	if report != nil && !dryRun {
		report.PartnersUpdated = 1
	}
	return report, err
}

func (r *Recalculator) run(ctx context.Context, filter BookingFilter, dryRun bool, adjust func(*BookingSnapshot)) (*RecalculationReport, error) {
	if r.Finder == nil {
		return nil, ErrStoreRequired
	}
	chunk := r.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	workers := r.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}

	report := &RecalculationReport{DryRun: dryRun, RevenueByUser: make(map[UserID]Cents)}
	var mu sync.Mutex
	log := r.Service.Logger

	var after BookingID
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ids, err := r.Finder.FindBookings(ctx, filter, after, chunk)
		if err != nil {
			return report, fmt.Errorf("find bookings after %q: %w", after, err)
		}
		if len(ids) == 0 {
			break
		}
		report.BookingsFound += len(ids)

		var g errgroup.Group
		g.SetLimit(workers)
		for _, id := range ids {
			g.Go(func() error {
				alloc, err := r.one(ctx, id, dryRun, adjust)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.Error("recalculate booking failed", "booking_id", id, "error", err)
					report.Errors = append(report.Errors, BookingFailure{BookingID: id, Message: err.Error()})
					return nil
				}
				report.BookingsRecalculated++
				for _, e := range alloc.Earnings {
					if e.Type.IsPartner() {
						report.RevenueByUser[e.UserID] += e.Amount
					}
				}
				return nil
			})
		}
		_ = g.Wait()

		after = ids[len(ids)-1]
		if len(ids) < chunk {
			break
		}
	}

	sort.Slice(report.Errors, func(i, j int) bool {
		return report.Errors[i].BookingID < report.Errors[j].BookingID
	})

	log.Info("recalculation finished",
		"dry_run", dryRun,
		"bookings_found", report.BookingsFound,
		"bookings_recalculated", report.BookingsRecalculated,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (r *Recalculator) one(ctx context.Context, id BookingID, dryRun bool, adjust func(*BookingSnapshot)) (Allocation, error) {
	if !dryRun {
		return r.Service.Recalculate(ctx, id)
	}
	snap, err := r.Service.Store.LoadSnapshot(ctx, id)
	if err != nil {
		return Allocation{}, err
	}
	if adjust != nil {
		adjust(&snap)
	}
	return r.Service.Engine.Calculate(snap)
}

// IsPartialFailure reports whether err is a *PartialBatchFailure.
func IsPartialFailure(err error) bool {
	var p *PartialBatchFailure
	return errors.As(err, &p)
}
