// Package store provides in-memory implementations of the earnings store
// interfaces.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prima/earnings-engine/earnings"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	venues     map[earnings.VenueID]earnings.Venue
	concierges map[earnings.ConciergeID]earnings.Concierge
	partners   map[earnings.PartnerID]earnings.Partner
	bookings   map[earnings.BookingID]earnings.Booking
	earnings   map[earnings.BookingID][]earnings.Earning

	// FailAppendFor makes AppendEarnings fail for the listed bookings.
	// Used to exercise rollback paths.
	FailAppendFor map[earnings.BookingID]error
}

func NewMemory() *Memory {
	return &Memory{
		venues:        make(map[earnings.VenueID]earnings.Venue),
		concierges:    make(map[earnings.ConciergeID]earnings.Concierge),
		partners:      make(map[earnings.PartnerID]earnings.Partner),
		bookings:      make(map[earnings.BookingID]earnings.Booking),
		earnings:      make(map[earnings.BookingID][]earnings.Earning),
		FailAppendFor: make(map[earnings.BookingID]error),
	}
}

// =============================================================================
// PARTY REGISTRATION
// =============================================================================

func (m *Memory) SaveVenue(_ context.Context, v earnings.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venues[v.ID] = v
	return nil
}

func (m *Memory) SaveConcierge(_ context.Context, c earnings.Concierge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ReferredBy = nil
	m.concierges[c.ID] = c
	return nil
}

func (m *Memory) SavePartner(_ context.Context, p earnings.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partners[p.ID] = p
	return nil
}

func (m *Memory) SaveBooking(_ context.Context, b earnings.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
	return nil
}

func (m *Memory) GetBooking(_ context.Context, id earnings.BookingID) (earnings.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return earnings.Booking{}, earnings.ErrBookingNotFound
	}
	return b, nil
}

// =============================================================================
// earnings.Store
// =============================================================================

func (m *Memory) LoadSnapshot(ctx context.Context, id earnings.BookingID) (earnings.BookingSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(ctx, id)
}

// snapshotLocked builds fresh copies so callers may mutate the result.
func (m *Memory) snapshotLocked(ctx context.Context, id earnings.BookingID) (earnings.BookingSnapshot, error) {
	b, ok := m.bookings[id]
	if !ok {
		return earnings.BookingSnapshot{}, earnings.ErrBookingNotFound
	}
	snap := earnings.BookingSnapshot{
		ID:         b.ID,
		TotalFee:   b.TotalFee,
		GuestCount: b.GuestCount,
		IsPrime:    b.IsPrime,
		Currency:   b.Currency,
	}
	if v, ok := m.venues[b.VenueID]; ok {
		snap.Venue = &v
	}
	if c, ok := m.concierges[b.ConciergeID]; ok {
		snap.Concierge = &c
		lookup := func(_ context.Context, id earnings.ConciergeID) (*earnings.Concierge, error) {
			ref, ok := m.concierges[id]
			if !ok {
				return nil, nil
			}
			return &ref, nil
		}
		if err := earnings.ResolveReferrers(ctx, snap.Concierge, lookup); err != nil {
			return earnings.BookingSnapshot{}, err
		}
	}
	if p, ok := m.partners[b.PartnerVenueID]; ok {
		snap.PartnerVenue = &p
	}
	if p, ok := m.partners[b.PartnerConciergeID]; ok {
		snap.PartnerConcierge = &p
	}
	return snap, nil
}

func (m *Memory) DeleteEarnings(_ context.Context, id earnings.BookingID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.earnings, id)
	return nil
}

func (m *Memory) AppendEarnings(_ context.Context, es []earnings.Earning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(es)
}

func (m *Memory) appendLocked(es []earnings.Earning) error {
	for _, e := range es {
		if err := m.FailAppendFor[e.BookingID]; err != nil {
			return err
		}
	}
	for _, e := range es {
		m.earnings[e.BookingID] = append(m.earnings[e.BookingID], e)
	}
	return nil
}

func (m *Memory) SetPlatformEarnings(_ context.Context, id earnings.BookingID, amount earnings.Cents) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBookingLocked(id, func(b *earnings.Booking) { b.PlatformEarnings = amount })
}

func (m *Memory) MarkConfirmed(_ context.Context, id earnings.BookingID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBookingLocked(id, func(b *earnings.Booking) { b.ConfirmedAt = &at })
}

func (m *Memory) updateBookingLocked(id earnings.BookingID, fn func(*earnings.Booking)) error {
	b, ok := m.bookings[id]
	if !ok {
		return earnings.ErrBookingNotFound
	}
	fn(&b)
	m.bookings[id] = b
	return nil
}

func (m *Memory) Earnings(_ context.Context, id earnings.BookingID) ([]earnings.Earning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]earnings.Earning, len(m.earnings[id]))
	copy(result, m.earnings[id])
	return result, nil
}

func (m *Memory) EarningsByUser(_ context.Context, user earnings.UserID, unpaidOnly bool) ([]earnings.Earning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []earnings.Earning
	for _, id := range m.sortedBookingIDs() {
		for _, e := range m.earnings[id] {
			if e.UserID != user || (unpaidOnly && e.IsPaid()) {
				continue
			}
			result = append(result, e)
		}
	}
	return result, nil
}

// =============================================================================
// earnings.BookingFinder / earnings.PartnerStore
// =============================================================================

func (m *Memory) FindBookings(_ context.Context, f earnings.BookingFilter, after earnings.BookingID, limit int) ([]earnings.BookingID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []earnings.BookingID
	for _, id := range m.sortedBookingIDs() {
		if id <= after {
			continue
		}
		if !matches(m.bookings[id], f) {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func matches(b earnings.Booking, f earnings.BookingFilter) bool {
	if f.PartnerID != "" && b.PartnerVenueID != f.PartnerID && b.PartnerConciergeID != f.PartnerID {
		return false
	}
	if f.VenueID != "" && b.VenueID != f.VenueID {
		return false
	}
	if f.ConciergeID != "" && b.ConciergeID != f.ConciergeID {
		return false
	}
	if f.PrimeOnly && !b.IsPrime {
		return false
	}
	if f.ConfirmedOnly && !b.IsConfirmed() {
		return false
	}
	return true
}

func (m *Memory) sortedBookingIDs() []earnings.BookingID {
	ids := make([]earnings.BookingID, 0, len(m.bookings))
	for id := range m.bookings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Memory) GetPartner(_ context.Context, id earnings.PartnerID) (earnings.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partners[id]
	if !ok {
		return earnings.Partner{}, earnings.ErrPartnerNotFound
	}
	return p, nil
}

func (m *Memory) UpdatePartnerPercentage(_ context.Context, id earnings.PartnerID, pct decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partners[id]
	if !ok {
		return earnings.ErrPartnerNotFound
	}
	p.Percentage = pct
	m.partners[id] = p
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized by the store mutex.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(earnings.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	bookings map[earnings.BookingID]earnings.Booking
	earnings map[earnings.BookingID][]earnings.Earning
}

func (tm *TxMemory) snapshot() memorySnapshot {
	b := make(map[earnings.BookingID]earnings.Booking, len(tm.bookings))
	for k, v := range tm.bookings {
		b[k] = v
	}
	e := make(map[earnings.BookingID][]earnings.Earning, len(tm.earnings))
	for k, v := range tm.earnings {
		e[k] = append([]earnings.Earning{}, v...)
	}
	return memorySnapshot{bookings: b, earnings: e}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.bookings = s.bookings
	tm.earnings = s.earnings
}

// txMemoryView operates on the parent while its mutex is already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) LoadSnapshot(ctx context.Context, id earnings.BookingID) (earnings.BookingSnapshot, error) {
	return tv.parent.snapshotLocked(ctx, id)
}

func (tv *txMemoryView) DeleteEarnings(_ context.Context, id earnings.BookingID) error {
	delete(tv.parent.earnings, id)
	return nil
}

func (tv *txMemoryView) AppendEarnings(_ context.Context, es []earnings.Earning) error {
	return tv.parent.appendLocked(es)
}

func (tv *txMemoryView) SetPlatformEarnings(_ context.Context, id earnings.BookingID, amount earnings.Cents) error {
	return tv.parent.updateBookingLocked(id, func(b *earnings.Booking) { b.PlatformEarnings = amount })
}

func (tv *txMemoryView) MarkConfirmed(_ context.Context, id earnings.BookingID, at time.Time) error {
	return tv.parent.updateBookingLocked(id, func(b *earnings.Booking) { b.ConfirmedAt = &at })
}

func (tv *txMemoryView) Earnings(_ context.Context, id earnings.BookingID) ([]earnings.Earning, error) {
	return append([]earnings.Earning{}, tv.parent.earnings[id]...), nil
}

func (tv *txMemoryView) EarningsByUser(_ context.Context, user earnings.UserID, unpaidOnly bool) ([]earnings.Earning, error) {
	var result []earnings.Earning
	for _, id := range tv.parent.sortedBookingIDs() {
		for _, e := range tv.parent.earnings[id] {
			if e.UserID == user && !(unpaidOnly && e.IsPaid()) {
				result = append(result, e)
			}
		}
	}
	return result, nil
}
