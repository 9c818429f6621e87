package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/updown/internal/adapters/storage"
	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedEvent(id string, at time.Time, pnl float64) domain.TradeEvent {
	exit := 0.55
	return domain.TradeEvent{
		Time:       at,
		Type:       domain.EventTakeProfit.Label(domain.ModePaper),
		Window:     "btc-updown-15m-1740830400",
		PositionID: id,
		Direction:  domain.DirectionUp,
		EntryPrice: 0.48,
		ExitPrice:  &exit,
		Size:       1,
		Shares:     2.0833,
		PnL:        &pnl,
		Mode:       domain.ModePaper,
	}
}

func entryEvent(id string, at time.Time) domain.TradeEvent {
	return domain.TradeEvent{
		Time:       at,
		Type:       domain.EventEntry.Label(domain.ModeLive),
		Window:     "btc-updown-15m-1740830400",
		PositionID: id,
		Direction:  domain.DirectionDown,
		EntryPrice: 0.37,
		Size:       1,
		Strike:     84060.01,
		Fee:        0.03,
		Mode:       domain.ModeLive,
		Diagnostics: &domain.Diagnostics{
			PolySpread:   0.02,
			PolyBidDepth: 310.5,
			PolyAskDepth: 280,
			OBI:          0.62,
		},
	}
}

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStore_WriteAndEvents(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.Write(ctx, entryEvent("p1", now)))
	require.NoError(t, db.Write(ctx, closedEvent("p1", now.Add(time.Minute), 0.1458)))

	evs, err := db.Events(ctx, now.Add(-time.Minute), now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, evs, 2)

	entry := evs[0]
	assert.Equal(t, "ENTRY", entry.Type)
	assert.Equal(t, domain.DirectionDown, entry.Direction)
	assert.Equal(t, domain.ModeLive, entry.Mode)
	assert.True(t, entry.Time.Equal(now))
	assert.Nil(t, entry.PnL)
	assert.Nil(t, entry.ExitPrice)
	require.NotNil(t, entry.Diagnostics)
	assert.InDelta(t, 0.62, entry.Diagnostics.OBI, 1e-9)
	assert.InDelta(t, 84060.01, entry.Strike, 1e-9)

	exit := evs[1]
	assert.Equal(t, "TAKE_PROFIT_PAPER", exit.Type)
	require.NotNil(t, exit.PnL)
	assert.InDelta(t, 0.1458, *exit.PnL, 1e-9)
	require.NotNil(t, exit.ExitPrice)
	assert.InDelta(t, 0.55, *exit.ExitPrice, 1e-9)
	assert.Nil(t, exit.Diagnostics)
}

func TestSQLiteStore_EventsEmptyRange(t *testing.T) {
	db := newStore(t)
	evs, err := db.Events(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestSQLiteStore_RecentClosed(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.Write(ctx, entryEvent("p0", base)))
	for i, pnl := range []float64{0.1, -0.2, 0.3, -0.4} {
		require.NoError(t, db.Write(ctx, closedEvent("p", base.Add(time.Duration(i)*time.Minute), pnl)))
	}

	evs, err := db.RecentClosed(ctx, 3)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	// los tres últimos, del más antiguo al más nuevo
	assert.InDelta(t, -0.2, *evs[0].PnL, 1e-9)
	assert.InDelta(t, 0.3, *evs[1].PnL, 1e-9)
	assert.InDelta(t, -0.4, *evs[2].PnL, 1e-9)
}

func TestSQLiteStore_Redemptions(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.SaveRedemption(ctx, domain.RedeemResult{
		ConditionID: "0xaaa", Nonce: 4, RelayTxID: "tx-a", ExecutedAt: at,
	}, nil))
	require.NoError(t, db.SaveRedemption(ctx, domain.RedeemResult{
		ConditionID: "0xbbb", ExecutedAt: at.Add(time.Minute),
	}, errors.New("relay rejected 400")))

	recs, err := db.RecentRedemptions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "0xbbb", recs[0].ConditionID)
	assert.False(t, recs[0].Success)
	assert.Equal(t, "relay rejected 400", recs[0].Error)

	assert.Equal(t, "0xaaa", recs[1].ConditionID)
	assert.True(t, recs[1].Success)
	assert.Equal(t, uint64(4), recs[1].Nonce)
	assert.Equal(t, "tx-a", recs[1].RelayTxID)
	assert.True(t, recs[1].ExecutedAt.Equal(at))
}
