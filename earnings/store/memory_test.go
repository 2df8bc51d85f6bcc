package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prima/earnings-engine/earnings"
	"github.com/prima/earnings-engine/earnings/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) *store.TxMemory {
	t.Helper()
	ctx := context.Background()
	m := store.NewTxMemory()
	require.NoError(t, m.SaveVenue(ctx, earnings.Venue{ID: "v1", UserID: "u-v1", PayoutVenue: decimal.NewFromInt(60)}))
	for _, c := range []earnings.Concierge{
		{ID: "c0", UserID: "u-c0", PayoutPercentage: decimal.NewFromInt(10), ReferrerID: "c1"},
		{ID: "c1", UserID: "u-c1", PayoutPercentage: decimal.NewFromInt(10), ReferrerID: "c2"},
		{ID: "c2", UserID: "u-c2", PayoutPercentage: decimal.NewFromInt(10), ReferrerID: "c3"},
		{ID: "c3", UserID: "u-c3", PayoutPercentage: decimal.NewFromInt(10)},
	} {
		require.NoError(t, m.SaveConcierge(ctx, c))
	}
	require.NoError(t, m.SavePartner(ctx, earnings.Partner{ID: "p1", UserID: "u-p1", Percentage: decimal.NewFromInt(6)}))
	return m
}

func TestMemory_LoadSnapshot_ResolvesTwoReferralLevels(t *testing.T) {
	m := seed(t)
	ctx := context.Background()
	require.NoError(t, m.SaveBooking(ctx, earnings.Booking{
		ID: "bk-1", TotalFee: 100, IsPrime: true, VenueID: "v1", ConciergeID: "c0", PartnerConciergeID: "p1",
	}))

	snap, err := m.LoadSnapshot(ctx, "bk-1")
	require.NoError(t, err)
	require.NotNil(t, snap.Venue)
	require.NotNil(t, snap.Concierge)
	require.NotNil(t, snap.Concierge.ReferredBy)
	require.NotNil(t, snap.Concierge.ReferredBy.ReferredBy)
	assert.Equal(t, earnings.ConciergeID("c2"), snap.Concierge.ReferredBy.ReferredBy.ID)
	assert.Nil(t, snap.Concierge.ReferredBy.ReferredBy.ReferredBy)
	assert.Nil(t, snap.PartnerVenue)
	require.NotNil(t, snap.PartnerConcierge)

	// Mutating the snapshot leaves the store untouched
	snap.PartnerConcierge.Percentage = decimal.NewFromInt(99)
	p, err := m.GetPartner(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.Percentage.Equal(decimal.NewFromInt(6)))
}

func TestMemory_LoadSnapshot_NotFound(t *testing.T) {
	_, err := seed(t).LoadSnapshot(context.Background(), "nope")
	assert.ErrorIs(t, err, earnings.ErrBookingNotFound)
}

func TestTxMemory_WithTx_RollsBackOnError(t *testing.T) {
	m := seed(t)
	ctx := context.Background()
	require.NoError(t, m.SaveBooking(ctx, earnings.Booking{ID: "bk-1", VenueID: "v1", ConciergeID: "c0"}))
	require.NoError(t, m.AppendEarnings(ctx, []earnings.Earning{{BookingID: "bk-1", UserID: "u-v1", Type: earnings.EarningVenue, Amount: 10}}))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx earnings.Store) error {
		require.NoError(t, tx.DeleteEarnings(ctx, "bk-1"))
		require.NoError(t, tx.SetPlatformEarnings(ctx, "bk-1", 42))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := m.Earnings(ctx, "bk-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	b, err := m.GetBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, earnings.Cents(0), b.PlatformEarnings)
}

func TestMemory_FindBookings_KeysetPagination(t *testing.T) {
	m := seed(t)
	ctx := context.Background()
	for _, id := range []earnings.BookingID{"bk-3", "bk-1", "bk-2", "bk-4"} {
		b := earnings.Booking{ID: id, IsPrime: true, PartnerVenueID: "p1"}
		if id == "bk-4" {
			b.PartnerVenueID = ""
		}
		require.NoError(t, m.SaveBooking(ctx, b))
	}

	filter := earnings.BookingFilter{PartnerID: "p1"}
	first, err := m.FindBookings(ctx, filter, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []earnings.BookingID{"bk-1", "bk-2"}, first)

	next, err := m.FindBookings(ctx, filter, first[1], 2)
	require.NoError(t, err)
	assert.Equal(t, []earnings.BookingID{"bk-3"}, next)

	confirmed, err := m.FindBookings(ctx, earnings.BookingFilter{ConfirmedOnly: true}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, confirmed)
}

func TestMemory_EarningsByUser_UnpaidOnly(t *testing.T) {
	m := seed(t)
	ctx := context.Background()
	require.NoError(t, m.AppendEarnings(ctx, []earnings.Earning{
		{BookingID: "bk-1", UserID: "u-c0", Type: earnings.EarningConcierge, Amount: 100, PaymentID: "pay-1"},
		{BookingID: "bk-2", UserID: "u-c0", Type: earnings.EarningConcierge, Amount: 200},
		{BookingID: "bk-2", UserID: "u-v1", Type: earnings.EarningVenue, Amount: 300},
	}))
	require.NoError(t, m.SaveBooking(ctx, earnings.Booking{ID: "bk-1"}))
	require.NoError(t, m.SaveBooking(ctx, earnings.Booking{ID: "bk-2"}))

	all, err := m.EarningsByUser(ctx, "u-c0", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	unpaid, err := m.EarningsByUser(ctx, "u-c0", true)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, earnings.Cents(200), unpaid[0].Amount)
}

func TestMemory_UpdatePartnerPercentage(t *testing.T) {
	m := seed(t)
	ctx := context.Background()
	require.NoError(t, m.UpdatePartnerPercentage(ctx, "p1", decimal.NewFromInt(12)))
	p, err := m.GetPartner(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.Percentage.Equal(decimal.NewFromInt(12)))

	assert.ErrorIs(t, m.UpdatePartnerPercentage(ctx, "nope", decimal.NewFromInt(1)), earnings.ErrPartnerNotFound)
}
