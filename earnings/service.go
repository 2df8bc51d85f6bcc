package earnings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service runs the delete-calculate-save cycle for single bookings. Every
// cycle holds the booking lock and runs in one store transaction.
type Service struct {
	Engine    *Engine
	Store     TxStore
	Locker    Locker
	Publisher Publisher
	Logger    *slog.Logger

	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() EarningID
}

// NewService wires a service with an in-process locker and no publisher.
func NewService(engine *Engine, store TxStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Engine:    engine,
		Store:     store,
		Locker:    NewKeyedLocker(),
		Publisher: nopPublisher{},
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     func() EarningID { return EarningID(uuid.NewString()) },
	}
}

// Confirm calculates and persists the earnings of a booking that just became
// fee-bearing, and marks it confirmed.
func (s *Service) Confirm(ctx context.Context, id BookingID) (Allocation, error) {
	return s.run(ctx, id, true)
}

// Recalculate replaces the earnings of an already confirmed booking.
func (s *Service) Recalculate(ctx context.Context, id BookingID) (Allocation, error) {
	return s.run(ctx, id, false)
}

// Preview calculates without persisting anything.
func (s *Service) Preview(ctx context.Context, id BookingID) (Allocation, error) {
	snap, err := s.Store.LoadSnapshot(ctx, id)
	if err != nil {
		return Allocation{}, err
	}
	return s.Engine.Calculate(snap)
}

func (s *Service) run(ctx context.Context, id BookingID, confirm bool) (Allocation, error) {
	unlock, err := s.Locker.Lock(ctx, id)
	if err != nil {
		return Allocation{}, fmt.Errorf("lock booking %s: %w", id, err)
	}
	defer unlock()

	var alloc Allocation
	err = s.Store.WithTx(ctx, func(tx Store) error {
		snap, err := tx.LoadSnapshot(ctx, id)
		if err != nil {
			return err
		}
		alloc, err = s.Engine.Calculate(snap)
		if err != nil {
			return err
		}
		return s.persist(ctx, tx, &alloc, confirm)
	})
	if err != nil {
		return Allocation{}, err
	}

	if err := s.Publisher.PublishCalculated(ctx, alloc); err != nil {
		s.Logger.Warn("publish earnings failed", "booking_id", id, "error", err)
	}
	s.Logger.Info("earnings calculated",
		"booking_id", id,
		"prime", alloc.IsPrime,
		"rows", len(alloc.Earnings),
		"platform_earnings", int64(alloc.PlatformEarnings),
	)
	return alloc, nil
}

func (s *Service) persist(ctx context.Context, tx Store, alloc *Allocation, confirm bool) error {
	now := s.Now()
	for i := range alloc.Earnings {
		alloc.Earnings[i].ID = s.NewID()
		alloc.Earnings[i].CreatedAt = now
	}
	if err := tx.DeleteEarnings(ctx, alloc.BookingID); err != nil {
		return fmt.Errorf("delete earnings: %w", err)
	}
	if err := tx.AppendEarnings(ctx, alloc.Earnings); err != nil {
		return fmt.Errorf("append earnings: %w", err)
	}
	if err := tx.SetPlatformEarnings(ctx, alloc.BookingID, alloc.PlatformEarnings); err != nil {
		return fmt.Errorf("set platform earnings: %w", err)
	}
	if confirm {
		if err := tx.MarkConfirmed(ctx, alloc.BookingID, now); err != nil {
			return fmt.Errorf("mark confirmed: %w", err)
		}
	}
	return nil
}
