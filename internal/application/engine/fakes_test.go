package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
)

var errBoom = errors.New("boom")

func noSleep(context.Context, time.Duration) error { return nil }

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testWindow() *domain.MarketWindow {
	return &domain.MarketWindow{
		Slug:        domain.WindowSlug(testStart),
		ConditionID: "0xcond",
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		StartTime:   testStart,
		EndTime:     testStart.Add(domain.WindowDuration),
	}
}

func testWindowWithStrike(strike float64) *domain.MarketWindow {
	w := testWindow()
	_ = w.SetStrike(strike)
	return w
}

type fakeOracle struct {
	mu          sync.Mutex
	spot        float64
	spotErr     error
	candle      float64
	candleErr   error
	candleCalls int
	closes      []float64
	closesErr   error
	closesCalls int
	obi         float64
}

func (f *fakeOracle) CandleOpen(_ context.Context, _ time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	return f.candle, f.candleErr
}

func (f *fakeOracle) SpotPrice(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spot, f.spotErr
}

func (f *fakeOracle) RecentCloses(context.Context, int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closesCalls++
	return f.closes, f.closesErr
}

func (f *fakeOracle) DepthImbalance(context.Context) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.obi == 0 {
		return 1.0
	}
	return f.obi
}

type fakeIV struct {
	iv    float64
	err   error
	calls atomic.Int32
}

func (f *fakeIV) ImpliedVolatility(context.Context) (float64, error) {
	f.calls.Add(1)
	return f.iv, f.err
}

type fakeDepth struct {
	mu    sync.Mutex
	books map[string]domain.OrderBook
	err   error
	calls int
}

func (f *fakeDepth) FetchOrderBook(_ context.Context, tokenID string) (domain.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.OrderBook{}, f.err
	}
	return f.books[tokenID], nil
}

// deepBook tiene 340 USDC de bids y 350 de asks alrededor de bid/ask.
func deepBook(tokenID string, bid, ask float64) domain.OrderBook {
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    []domain.BookEntry{{Price: bid, Size: 340 / bid}},
		Asks:    []domain.BookEntry{{Price: ask, Size: 350 / ask}},
	}
}

type fakeStream struct {
	msgs       [][]byte
	subscribed chan []string
	closed     atomic.Bool
}

func newFakeStream(msgs ...string) *fakeStream {
	s := &fakeStream{subscribed: make(chan []string, 1)}
	for _, m := range msgs {
		s.msgs = append(s.msgs, []byte(m))
	}
	return s
}

func (s *fakeStream) Subscribe(ctx context.Context, ids []string, handle func([]byte)) error {
	for _, m := range s.msgs {
		handle(m)
	}
	s.subscribed <- ids
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.TradeEvent
}

func (s *recordingSink) Enqueue(ev domain.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Events() []domain.TradeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TradeEvent(nil), s.events...)
}

type fakeBackend struct {
	mode    domain.Mode
	submits []domain.OrderRequest
	cancels []string
	failOn  domain.OrderSide
}

func (b *fakeBackend) Submit(_ context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	b.submits = append(b.submits, req)
	if b.failOn != "" && req.Side == b.failOn {
		return domain.OrderAck{}, errBoom
	}
	return domain.OrderAck{OrderID: "ord-1", FilledPrice: req.Price, FilledSize: req.FilledShares()}, nil
}

func (b *fakeBackend) Cancel(_ context.Context, id string) error {
	b.cancels = append(b.cancels, id)
	return nil
}

func (b *fakeBackend) Mode() domain.Mode {
	if b.mode == "" {
		return domain.ModePaper
	}
	return b.mode
}

type fakeWindows struct {
	w     *domain.MarketWindow
	err   error
	slugs []string
}

func (f *fakeWindows) FetchWindow(_ context.Context, slug string) (*domain.MarketWindow, error) {
	f.slugs = append(f.slugs, slug)
	if f.err != nil || f.w == nil {
		return nil, f.err
	}
	cp := *f.w
	return &cp, nil
}

type fakeRedeemer struct {
	calls chan string
	err   error
}

func (r *fakeRedeemer) Redeem(_ context.Context, conditionID string) (domain.RedeemResult, error) {
	r.calls <- conditionID
	if r.err != nil {
		return domain.RedeemResult{}, r.err
	}
	return domain.RedeemResult{ConditionID: conditionID, Nonce: 7, RelayTxID: "tx-1"}, nil
}

type fakePredictor struct {
	p      float64
	err    error
	closed atomic.Bool
}

func (f *fakePredictor) Predict(domain.FeatureSnapshot) (float64, error) { return f.p, f.err }

func (f *fakePredictor) Close() error {
	f.closed.Store(true)
	return nil
}

type memWriter struct {
	mu     sync.Mutex
	events []domain.TradeEvent
	err    error
}

func (m *memWriter) Write(_ context.Context, ev domain.TradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memWriter) Events() []domain.TradeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TradeEvent(nil), m.events...)
}

type constVol float64

func (c constVol) PerMinute() float64 { return float64(c) }

type redemptionRecord struct {
	res domain.RedeemResult
	err error
}

type recordingRedemptions struct {
	mu   sync.Mutex
	recs []redemptionRecord
}

func (r *recordingRedemptions) SaveRedemption(_ context.Context, res domain.RedeemResult, redeemErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, redemptionRecord{res, redeemErr})
	return nil
}

func (r *recordingRedemptions) Records() []redemptionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]redemptionRecord(nil), r.recs...)
}
