/*
Package sqlite provides a SQLite-backed implementation of the earnings store
interfaces.

INTERFACES IMPLEMENTED:
  earnings.TxStore:       Snapshot assembly, earning rows, per-booking tx
  earnings.BookingFinder: Keyset pagination for batch recalculation
  earnings.PartnerStore:  Partner lookup and percentage updates

KEY TABLES:
  venues, concierges, partners: Party percentages (decimal strings)
  bookings:                     Fee, guest count, prime flag, party links,
                                platform residual, confirmation time
  earnings:                     One row per party per booking

REPLACE SEMANTICS:
  Earnings are deleted and re-inserted inside WithTx. Nothing outside that
  transaction sees a booking with half its rows.

CONCURRENCY:
  A single connection is kept open (SQLite serializes writers anyway, and
  ":memory:" databases are per-connection). sync.RWMutex guards the public
  methods; the tx view runs under the write lock taken by WithTx.

USAGE:
  store, err := sqlite.New("./data/prima.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/prima/earnings-engine/earnings"
	"github.com/shopspring/decimal"
)

// Store implements the earnings storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an already opened database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS venues (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		payout_venue TEXT NOT NULL,
		non_prime_fee_per_head INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS concierges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		payout_percentage TEXT NOT NULL,
		referred_by TEXT REFERENCES concierges(id),
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS partners (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		percentage TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		total_fee INTEGER NOT NULL DEFAULT 0,
		guest_count INTEGER NOT NULL DEFAULT 0,
		is_prime BOOLEAN NOT NULL DEFAULT FALSE,
		currency TEXT NOT NULL,
		venue_id TEXT REFERENCES venues(id),
		concierge_id TEXT REFERENCES concierges(id),
		partner_venue_id TEXT REFERENCES partners(id),
		partner_concierge_id TEXT REFERENCES partners(id),
		platform_earnings INTEGER NOT NULL DEFAULT 0,
		confirmed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_partner_venue
		ON bookings(partner_venue_id) WHERE partner_venue_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_bookings_partner_concierge
		ON bookings(partner_concierge_id) WHERE partner_concierge_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_bookings_venue ON bookings(venue_id);
	CREATE INDEX IF NOT EXISTS idx_bookings_concierge ON bookings(concierge_id);

	CREATE TABLE IF NOT EXISTS earnings (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payment_id TEXT,
		seq INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_earnings_booking ON earnings(booking_id, seq);
	CREATE INDEX IF NOT EXISTS idx_earnings_user_unpaid
		ON earnings(user_id) WHERE payment_id IS NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PARTY STORE
// =============================================================================

// SaveVenue inserts or updates a venue.
func (s *Store) SaveVenue(ctx context.Context, v earnings.Venue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO venues (id, user_id, name, payout_venue, non_prime_fee_per_head, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			payout_venue = excluded.payout_venue,
			non_prime_fee_per_head = excluded.non_prime_fee_per_head
	`, v.ID, v.UserID, v.Name, v.PayoutVenue.String(), int64(v.NonPrimeFeePerHead), now())
	return err
}

// SaveConcierge inserts or updates a concierge. ReferrerID is stored;
// ReferredBy is ignored.
func (s *Store) SaveConcierge(ctx context.Context, c earnings.Concierge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concierges (id, user_id, name, payout_percentage, referred_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			payout_percentage = excluded.payout_percentage,
			referred_by = excluded.referred_by
	`, c.ID, c.UserID, c.Name, c.PayoutPercentage.String(), nullString(string(c.ReferrerID)), now())
	return err
}

// SavePartner inserts or updates a partner.
func (s *Store) SavePartner(ctx context.Context, p earnings.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO partners (id, user_id, name, percentage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			percentage = excluded.percentage,
			updated_at = excluded.updated_at
	`, p.ID, p.UserID, p.Name, p.Percentage.String(), ts, ts)
	return err
}

// GetPartner retrieves a partner by ID.
func (s *Store) GetPartner(ctx context.Context, id earnings.PartnerID) (earnings.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := getPartner(ctx, s.db, id)
	if err != nil {
		return earnings.Partner{}, err
	}
	if p == nil {
		return earnings.Partner{}, earnings.ErrPartnerNotFound
	}
	return *p, nil
}

// UpdatePartnerPercentage changes the share a partner takes of the remainder.
func (s *Store) UpdatePartnerPercentage(ctx context.Context, id earnings.PartnerID, pct decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE partners SET percentage = ?, updated_at = ? WHERE id = ?",
		pct.String(), now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update partner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return earnings.ErrPartnerNotFound
	}
	return nil
}

func getVenue(ctx context.Context, q querier, id string) (*earnings.Venue, error) {
	var (
		v      earnings.Venue
		payout string
		fee    int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, user_id, name, payout_venue, non_prime_fee_per_head FROM venues WHERE id = ?", id,
	).Scan(&v.ID, &v.UserID, &v.Name, &payout, &fee)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load venue %s: %w", id, err)
	}
	if v.PayoutVenue, err = decimal.NewFromString(payout); err != nil {
		return nil, fmt.Errorf("venue %s payout_venue: %w", id, err)
	}
	v.NonPrimeFeePerHead = earnings.Cents(fee)
	return &v, nil
}

func getConcierge(ctx context.Context, q querier, id earnings.ConciergeID) (*earnings.Concierge, error) {
	var (
		c          earnings.Concierge
		pct        string
		referredBy sql.NullString
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, user_id, name, payout_percentage, referred_by FROM concierges WHERE id = ?", id,
	).Scan(&c.ID, &c.UserID, &c.Name, &pct, &referredBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load concierge %s: %w", id, err)
	}
	if c.PayoutPercentage, err = decimal.NewFromString(pct); err != nil {
		return nil, fmt.Errorf("concierge %s payout_percentage: %w", id, err)
	}
	c.ReferrerID = earnings.ConciergeID(referredBy.String)
	return &c, nil
}

func getPartner(ctx context.Context, q querier, id earnings.PartnerID) (*earnings.Partner, error) {
	var (
		p   earnings.Partner
		pct string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, user_id, name, percentage FROM partners WHERE id = ?", id,
	).Scan(&p.ID, &p.UserID, &p.Name, &pct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load partner %s: %w", id, err)
	}
	if p.Percentage, err = decimal.NewFromString(pct); err != nil {
		return nil, fmt.Errorf("partner %s percentage: %w", id, err)
	}
	return &p, nil
}

// =============================================================================
// BOOKING STORE
// =============================================================================

const bookingColumns = `id, total_fee, guest_count, is_prime, currency, venue_id, concierge_id,
	partner_venue_id, partner_concierge_id, platform_earnings, confirmed_at, created_at`

// SaveBooking inserts or updates a booking. Platform earnings and
// confirmation are only written by the earnings workflow.
func (s *Store) SaveBooking(ctx context.Context, b earnings.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, total_fee, guest_count, is_prime, currency, venue_id, concierge_id,
			partner_venue_id, partner_concierge_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_fee = excluded.total_fee,
			guest_count = excluded.guest_count,
			is_prime = excluded.is_prime,
			currency = excluded.currency,
			venue_id = excluded.venue_id,
			concierge_id = excluded.concierge_id,
			partner_venue_id = excluded.partner_venue_id,
			partner_concierge_id = excluded.partner_concierge_id
	`,
		b.ID, int64(b.TotalFee), b.GuestCount, b.IsPrime, b.Currency,
		nullString(string(b.VenueID)), nullString(string(b.ConciergeID)),
		nullString(string(b.PartnerVenueID)), nullString(string(b.PartnerConciergeID)),
		now(),
	)
	return err
}

// GetBooking retrieves a booking by ID.
func (s *Store) GetBooking(ctx context.Context, id earnings.BookingID) (earnings.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBooking(ctx, s.db, id)
}

func getBooking(ctx context.Context, q querier, id earnings.BookingID) (earnings.Booking, error) {
	var (
		b                                earnings.Booking
		totalFee, platform               int64
		venueID, conciergeID, pvID, pcID sql.NullString
		confirmedAt                      sql.NullString
		createdAt                        string
	)
	err := q.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id).Scan(
		&b.ID, &totalFee, &b.GuestCount, &b.IsPrime, &b.Currency,
		&venueID, &conciergeID, &pvID, &pcID, &platform, &confirmedAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return earnings.Booking{}, earnings.ErrBookingNotFound
	}
	if err != nil {
		return earnings.Booking{}, fmt.Errorf("failed to load booking %s: %w", id, err)
	}
	b.TotalFee = earnings.Cents(totalFee)
	b.PlatformEarnings = earnings.Cents(platform)
	b.VenueID = earnings.VenueID(venueID.String)
	b.ConciergeID = earnings.ConciergeID(conciergeID.String)
	b.PartnerVenueID = earnings.PartnerID(pvID.String)
	b.PartnerConciergeID = earnings.PartnerID(pcID.String)
	if confirmedAt.Valid {
		t, _ := time.Parse(time.RFC3339, confirmedAt.String)
		b.ConfirmedAt = &t
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return b, nil
}

// LoadSnapshot assembles the booking and all of its parties.
func (s *Store) LoadSnapshot(ctx context.Context, id earnings.BookingID) (earnings.BookingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadSnapshot(ctx, s.db, id)
}

func loadSnapshot(ctx context.Context, q querier, id earnings.BookingID) (earnings.BookingSnapshot, error) {
	b, err := getBooking(ctx, q, id)
	if err != nil {
		return earnings.BookingSnapshot{}, err
	}
	snap := earnings.BookingSnapshot{
		ID:         b.ID,
		TotalFee:   b.TotalFee,
		GuestCount: b.GuestCount,
		IsPrime:    b.IsPrime,
		Currency:   b.Currency,
	}
	if b.VenueID != "" {
		if snap.Venue, err = getVenue(ctx, q, string(b.VenueID)); err != nil {
			return earnings.BookingSnapshot{}, err
		}
	}
	if b.ConciergeID != "" {
		if snap.Concierge, err = getConcierge(ctx, q, b.ConciergeID); err != nil {
			return earnings.BookingSnapshot{}, err
		}
		if snap.Concierge != nil {
			lookup := func(ctx context.Context, id earnings.ConciergeID) (*earnings.Concierge, error) {
				return getConcierge(ctx, q, id)
			}
			if err := earnings.ResolveReferrers(ctx, snap.Concierge, lookup); err != nil {
				return earnings.BookingSnapshot{}, err
			}
		}
	}
	if b.PartnerVenueID != "" {
		if snap.PartnerVenue, err = getPartner(ctx, q, b.PartnerVenueID); err != nil {
			return earnings.BookingSnapshot{}, err
		}
	}
	if b.PartnerConciergeID != "" {
		if snap.PartnerConcierge, err = getPartner(ctx, q, b.PartnerConciergeID); err != nil {
			return earnings.BookingSnapshot{}, err
		}
	}
	return snap, nil
}

// FindBookings returns up to limit booking ids greater than after.
func (s *Store) FindBookings(ctx context.Context, f earnings.BookingFilter, after earnings.BookingID, limit int) ([]earnings.BookingID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"id > ?"}
	args := []any{after}
	if f.PartnerID != "" {
		where = append(where, "(partner_venue_id = ? OR partner_concierge_id = ?)")
		args = append(args, f.PartnerID, f.PartnerID)
	}
	if f.VenueID != "" {
		where = append(where, "venue_id = ?")
		args = append(args, f.VenueID)
	}
	if f.ConciergeID != "" {
		where = append(where, "concierge_id = ?")
		args = append(args, f.ConciergeID)
	}
	if f.PrimeOnly {
		where = append(where, "is_prime = 1")
	}
	if f.ConfirmedOnly {
		where = append(where, "confirmed_at IS NOT NULL")
	}
	query := "SELECT id FROM bookings WHERE " + strings.Join(where, " AND ") + " ORDER BY id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer rows.Close()

	var ids []earnings.BookingID
	for rows.Next() {
		var id earnings.BookingID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// EARNINGS (earnings.Store interface)
// =============================================================================

func (s *Store) DeleteEarnings(ctx context.Context, id earnings.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEarnings(ctx, s.db, id)
}

func (s *Store) AppendEarnings(ctx context.Context, es []earnings.Earning) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := appendEarnings(ctx, sqlTx, es); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) SetPlatformEarnings(ctx context.Context, id earnings.BookingID, amount earnings.Cents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setPlatformEarnings(ctx, s.db, id, amount)
}

func (s *Store) MarkConfirmed(ctx context.Context, id earnings.BookingID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markConfirmed(ctx, s.db, id, at)
}

func (s *Store) Earnings(ctx context.Context, id earnings.BookingID) ([]earnings.Earning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEarnings(ctx, s.db, "WHERE booking_id = ? ORDER BY seq ASC", id)
}

func (s *Store) EarningsByUser(ctx context.Context, user earnings.UserID, unpaidOnly bool) ([]earnings.Earning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return earningsByUser(ctx, s.db, user, unpaidOnly)
}

func deleteEarnings(ctx context.Context, q querier, id earnings.BookingID) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM earnings WHERE booking_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete earnings: %w", err)
	}
	return nil
}

func appendEarnings(ctx context.Context, q querier, es []earnings.Earning) error {
	for i, e := range es {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO earnings (id, booking_id, user_id, type, amount, currency, payment_id, seq, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID, e.BookingID, e.UserID, e.Type, int64(e.Amount), e.Currency,
			nullString(string(e.PaymentID)), i, createdAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to append earning: %w", err)
		}
	}
	return nil
}

func setPlatformEarnings(ctx context.Context, q querier, id earnings.BookingID, amount earnings.Cents) error {
	return updateBooking(ctx, q, id, "UPDATE bookings SET platform_earnings = ? WHERE id = ?", int64(amount), id)
}

func markConfirmed(ctx context.Context, q querier, id earnings.BookingID, at time.Time) error {
	return updateBooking(ctx, q, id,
		"UPDATE bookings SET confirmed_at = COALESCE(confirmed_at, ?) WHERE id = ?",
		at.UTC().Format(time.RFC3339), id)
}

func updateBooking(ctx context.Context, q querier, id earnings.BookingID, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return earnings.ErrBookingNotFound
	}
	return nil
}

func earningsByUser(ctx context.Context, q querier, user earnings.UserID, unpaidOnly bool) ([]earnings.Earning, error) {
	clause := "WHERE user_id = ?"
	if unpaidOnly {
		clause += " AND payment_id IS NULL"
	}
	return queryEarnings(ctx, q, clause+" ORDER BY booking_id ASC, seq ASC", user)
}

func queryEarnings(ctx context.Context, q querier, clause string, args ...any) ([]earnings.Earning, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, booking_id, user_id, type, amount, currency, payment_id, created_at FROM earnings "+clause,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query earnings: %w", err)
	}
	defer rows.Close()

	var out []earnings.Earning
	for rows.Next() {
		var (
			e         earnings.Earning
			typ       string
			amount    int64
			paymentID sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &e.UserID, &typ, &amount, &e.Currency, &paymentID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan earning: %w", err)
		}
		if e.Type, err = earnings.ParseEarningType(typ); err != nil {
			return nil, err
		}
		e.Amount = earnings.Cents(amount)
		e.PaymentID = earnings.PaymentID(paymentID.String)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (earnings.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store earnings.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) LoadSnapshot(ctx context.Context, id earnings.BookingID) (earnings.BookingSnapshot, error) {
	return loadSnapshot(ctx, ts.tx, id)
}

func (ts *txStore) DeleteEarnings(ctx context.Context, id earnings.BookingID) error {
	return deleteEarnings(ctx, ts.tx, id)
}

func (ts *txStore) AppendEarnings(ctx context.Context, es []earnings.Earning) error {
	return appendEarnings(ctx, ts.tx, es)
}

func (ts *txStore) SetPlatformEarnings(ctx context.Context, id earnings.BookingID, amount earnings.Cents) error {
	return setPlatformEarnings(ctx, ts.tx, id, amount)
}

func (ts *txStore) MarkConfirmed(ctx context.Context, id earnings.BookingID, at time.Time) error {
	return markConfirmed(ctx, ts.tx, id, at)
}

func (ts *txStore) Earnings(ctx context.Context, id earnings.BookingID) ([]earnings.Earning, error) {
	return queryEarnings(ctx, ts.tx, "WHERE booking_id = ? ORDER BY seq ASC", id)
}

func (ts *txStore) EarningsByUser(ctx context.Context, user earnings.UserID, unpaidOnly bool) ([]earnings.Earning, error) {
	return earningsByUser(ctx, ts.tx, user, unpaidOnly)
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data. Used by tests and local demos.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"earnings", "bookings", "partners", "concierges", "venues"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// IsForeignKeyViolation reports whether err is SQLite rejecting a reference
// to a venue, concierge or partner that does not exist.
func IsForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
