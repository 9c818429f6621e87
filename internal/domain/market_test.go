package domain_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowStart_FloorsToQuarterHour(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 7, 42, 0, time.UTC)
	start := domain.WindowStart(now)

	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), start)
	assert.Equal(t, int64(0), start.Unix()%900)
	assert.Equal(t, "btc-updown-15m-"+"1740830400", domain.WindowSlug(start))
}

func TestWindowStart_OnBoundary(t *testing.T) {
	now := time.Unix(1740831300, 0)
	assert.Equal(t, now.UTC(), domain.WindowStart(now))
}

func TestMarketWindow_StrikeCapturedOnce(t *testing.T) {
	w := &domain.MarketWindow{Slug: "btc-updown-15m-1"}

	_, ok := w.Strike()
	assert.False(t, ok)

	require.NoError(t, w.SetStrike(50000))
	err := w.SetStrike(51000)
	assert.ErrorIs(t, err, domain.ErrStrikeAlreadySet)

	strike, ok := w.Strike()
	assert.True(t, ok)
	assert.InDelta(t, 50000, strike, 1e-9)
}

func TestMarketWindow_RejectsNonPositiveStrike(t *testing.T) {
	w := &domain.MarketWindow{}
	assert.ErrorIs(t, w.SetStrike(0), domain.ErrInvalidStrike)
	_, ok := w.Strike()
	assert.False(t, ok)
}

func TestMarketWindow_IsActive(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &domain.MarketWindow{StartTime: start, EndTime: start.Add(domain.WindowDuration)}

	assert.True(t, w.IsActive(start.Add(14*time.Minute), 30*time.Second))
	assert.False(t, w.IsActive(start.Add(14*time.Minute+31*time.Second), 30*time.Second))
}

func TestOrderBook_BandLiquidity(t *testing.T) {
	ob := domain.OrderBook{
		Bids: []domain.BookEntry{{Price: 0.55, Size: 100}, {Price: 0.52, Size: 200}, {Price: 0.40, Size: 1000}},
		Asks: []domain.BookEntry{{Price: 0.57, Size: 300}, {Price: 0.61, Size: 100}, {Price: 0.70, Size: 1000}},
	}

	liq := ob.BandLiquidity(domain.DepthBand)

	assert.InDelta(t, 55+104, liq.BidDepth, 1e-9)
	assert.InDelta(t, 171+61, liq.AskDepth, 1e-9)
	assert.InDelta(t, 0.02, liq.Spread, 1e-9)
	assert.InDelta(t, (55.0+104)/(171+61), liq.Ratio(), 1e-9)
}

func TestOrderBook_BandLiquidity_EmptySide(t *testing.T) {
	ob := domain.OrderBook{Bids: []domain.BookEntry{{Price: 0.5, Size: 10}}}
	liq := ob.BandLiquidity(domain.DepthBand)
	assert.Zero(t, liq.AskDepth)
	assert.Zero(t, liq.Ratio())
}

func TestMakerEntryPrice(t *testing.T) {
	cases := []struct {
		ask  float64
		want float64
	}{
		{0.60, 0.59},
		{0.01, 0.01},
		{1.00, 0.99},
		{0.35, 0.34},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, domain.MakerEntryPrice(c.ask), 1e-9, "ask=%v", c.ask)
	}
}

func TestTakeProfitTarget_Capped(t *testing.T) {
	assert.InDelta(t, 0.46, domain.TakeProfitTarget(0.40, 0.15, 0.99), 1e-9)
	assert.InDelta(t, 0.99, domain.TakeProfitTarget(0.90, 0.15, 0.99), 1e-9)
}

func TestOrderBookSide_AskPriceWithoutAskIsNoLiquidity(t *testing.T) {
	assert.Equal(t, domain.DefaultBestAsk, domain.OrderBookSide{BestAsk: 0}.AskPrice())
	assert.Equal(t, domain.DefaultBestAsk, domain.OrderBookSide{BestAsk: -0.2}.AskPrice())
	assert.Equal(t, 0.31, domain.OrderBookSide{BestAsk: 0.31}.AskPrice())
}
