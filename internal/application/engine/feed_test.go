package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed() *Feed {
	f := NewFeed(newFakeStream(), nil)
	f.upID, f.downID = "tok-up", "tok-down"
	return f
}

func TestFeed_BookSnapshotUsesTopOfBook(t *testing.T) {
	f := newTestFeed()
	f.Update([]byte(`{"event_type":"book","asset_id":"tok-up",
		"bids":[{"price":"0.48","size":"10"},{"price":"0.52","size":"5"},{"price":"0.55","size":"0"}],
		"asks":[{"price":"0.60","size":"10"},{"price":"0.57","size":"3"}]}`))

	b := f.Snapshot()
	assert.InDelta(t, 0.52, b.Up.BestBid, 1e-9)
	assert.InDelta(t, 0.57, b.Up.BestAsk, 1e-9)
	assert.Equal(t, domain.NewOrderBookSide(), b.Down)
}

func TestFeed_BookWithEmptySideResetsToDefault(t *testing.T) {
	f := newTestFeed()
	f.Update([]byte(`{"event_type":"book","asset_id":"tok-down","bids":[{"price":"0.40","size":"1"}],"asks":[{"price":"0.45","size":"1"}]}`))
	f.Update([]byte(`{"event_type":"book","asset_id":"tok-down","bids":[],"asks":[]}`))

	assert.Equal(t, domain.NewOrderBookSide(), f.Snapshot().Down)
}

func TestFeed_PriceChangeBatch(t *testing.T) {
	f := newTestFeed()
	f.Update([]byte(`[{"event_type":"price_change","price_changes":[
		{"asset_id":"tok-up","best_bid":"0.61","best_ask":"0.63"},
		{"asset_id":"tok-down","best_bid":"","best_ask":""},
		{"asset_id":"other","best_bid":"0.99","best_ask":"0.99"}]}]`))

	b := f.Snapshot()
	assert.InDelta(t, 0.61, b.Up.BestBid, 1e-9)
	assert.InDelta(t, 0.63, b.Up.BestAsk, 1e-9)
	assert.Equal(t, domain.DefaultBestBid, b.Down.BestBid)
	assert.Equal(t, domain.DefaultBestAsk, b.Down.BestAsk)
}

func TestFeed_IgnoresHeartbeatMalformedAndUnknown(t *testing.T) {
	f := newTestFeed()
	f.Update([]byte("PONG"))
	f.Update([]byte(`{not json`))
	f.Update([]byte(`{"event_type":"book","asset_id":"someone-else","bids":[{"price":"0.9","size":"1"}]}`))
	f.Update([]byte(`{"event_type":"last_trade_price","asset_id":"tok-up"}`))

	b := f.Snapshot()
	assert.Equal(t, domain.NewOrderBookSide(), b.Up)
	assert.Equal(t, domain.NewOrderBookSide(), b.Down)
}

func TestFeed_UpdatesApplyOnlyAtSync(t *testing.T) {
	f := newTestFeed()
	f.enqueue([]byte(`{"event_type":"price_change","price_changes":[{"asset_id":"tok-up","best_bid":"0.30","best_ask":"0.32"}]}`))

	assert.Equal(t, domain.DefaultBestAsk, f.Snapshot().Up.BestAsk, "not applied mid-tick")

	b := f.Sync()
	assert.InDelta(t, 0.32, b.Up.BestAsk, 1e-9)
}

func TestFeed_StartSubscribesAndStopCloses(t *testing.T) {
	stream := newFakeStream(`{"event_type":"book","asset_id":"tok-up","bids":[{"price":"0.50","size":"1"}],"asks":[{"price":"0.52","size":"1"}]}`)
	f := NewFeed(stream, nil)

	f.Start(context.Background(), testWindow())

	select {
	case ids := <-stream.subscribed:
		assert.Equal(t, []string{"tok-up", "tok-down"}, ids)
	case <-time.After(time.Second):
		t.Fatal("stream not subscribed")
	}

	b := f.Sync()
	assert.InDelta(t, 0.52, b.Up.BestAsk, 1e-9)

	f.Stop()
	require.True(t, stream.closed.Load())
}
