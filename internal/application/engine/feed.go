package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

const heartbeatToken = "PONG"

// feedMessage cubre los dos tipos de evento del canal market.
type feedMessage struct {
	EventType    string            `json:"event_type"`
	AssetID      string            `json:"asset_id"`
	Bids         []feedLevel       `json:"bids"`
	Asks         []feedLevel       `json:"asks"`
	PriceChanges []feedPriceChange `json:"price_changes"`
}

type feedLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type feedPriceChange struct {
	AssetID string `json:"asset_id"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// Feed mantiene el top-of-book de los dos tokens de la ventana.
//
// El listener solo encola mensajes crudos; Sync los aplica en el límite de
// cada tick, así todas las lecturas de una decisión ven el mismo snapshot.
type Feed struct {
	stream  ports.MarketStream
	metrics ports.Metrics

	upID   string
	downID string
	book   domain.BookSnapshot

	mu      sync.Mutex
	pending [][]byte

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed crea un Feed sobre el stream dado.
func NewFeed(stream ports.MarketStream, metrics ports.Metrics) *Feed {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Feed{
		stream:  stream,
		metrics: metrics,
		book:    domain.BookSnapshot{Up: domain.NewOrderBookSide(), Down: domain.NewOrderBookSide()},
	}
}

// Start resetea el book y se suscribe a los tokens de w en background.
func (f *Feed) Start(ctx context.Context, w *domain.MarketWindow) {
	f.upID = w.UpTokenID
	f.downID = w.DownTokenID
	f.book = domain.BookSnapshot{Up: domain.NewOrderBookSide(), Down: domain.NewOrderBookSide()}
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		err := f.stream.Subscribe(subCtx, []string{w.UpTokenID, w.DownTokenID}, f.enqueue)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("feed: subscription ended", "window", w.Slug, "err", err)
		}
	}()
}

// Stop cancela la suscripción y espera al listener. No reconecta.
func (f *Feed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	if err := f.stream.Close(); err != nil {
		slog.Debug("feed: close stream", "err", err)
	}
	<-f.done
	f.cancel = nil
}

func (f *Feed) enqueue(raw []byte) {
	msg := make([]byte, len(raw))
	copy(msg, raw)
	f.mu.Lock()
	f.pending = append(f.pending, msg)
	f.mu.Unlock()
}

// Sync aplica los mensajes recibidos desde el último tick y devuelve el snapshot.
func (f *Feed) Sync() domain.BookSnapshot {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, raw := range batch {
		f.Update(raw)
	}
	return f.book
}

// Snapshot devuelve el book sin aplicar mensajes pendientes.
func (f *Feed) Snapshot() domain.BookSnapshot {
	return f.book
}

// Update mezcla un mensaje en el book. Heartbeats se ignoran; los mensajes
// malformados o de otros tokens se descartan sin error.
func (f *Feed) Update(raw []byte) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return
	}
	if bytes.EqualFold(trimmed, []byte(heartbeatToken)) {
		f.metrics.FeedMessage("heartbeat")
		return
	}

	if trimmed[0] == '[' {
		var items []feedMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			f.metrics.FeedMessage("malformed")
			return
		}
		for _, m := range items {
			f.apply(m)
		}
		return
	}

	var m feedMessage
	if err := json.Unmarshal(trimmed, &m); err != nil {
		f.metrics.FeedMessage("malformed")
		return
	}
	f.apply(m)
}

func (f *Feed) apply(m feedMessage) {
	switch m.EventType {
	case "book":
		side := f.sideFor(m.AssetID)
		if side == nil {
			f.metrics.FeedMessage("unroutable")
			return
		}
		side.BestBid, side.BestAsk = topOfBook(m.Bids, m.Asks)
		f.metrics.FeedMessage("book")

	case "price_change":
		routed := false
		for _, pc := range m.PriceChanges {
			side := f.sideFor(pc.AssetID)
			if side == nil {
				continue
			}
			side.BestBid = parseOr(pc.BestBid, domain.DefaultBestBid)
			side.BestAsk = parseOr(pc.BestAsk, domain.DefaultBestAsk)
			routed = true
		}
		if routed {
			f.metrics.FeedMessage("price_change")
		} else {
			f.metrics.FeedMessage("unroutable")
		}

	default:
		f.metrics.FeedMessage("ignored")
	}
}

func (f *Feed) sideFor(assetID string) *domain.OrderBookSide {
	switch {
	case assetID == "":
		return nil
	case assetID == f.upID:
		return &f.book.Up
	case assetID == f.downID:
		return &f.book.Down
	}
	return nil
}

// topOfBook devuelve el mayor bid y el menor ask con tamaño positivo.
// Un lado vacío vuelve al default de "sin liquidez".
func topOfBook(bids, asks []feedLevel) (float64, float64) {
	bestBid := domain.DefaultBestBid
	bestAsk := domain.DefaultBestAsk
	foundAsk := false

	for _, l := range bids {
		p, s, ok := parseLevel(l)
		if ok && s > 0 && p > bestBid {
			bestBid = p
		}
	}
	for _, l := range asks {
		p, s, ok := parseLevel(l)
		if !ok || s <= 0 {
			continue
		}
		if !foundAsk || p < bestAsk {
			bestAsk = p
			foundAsk = true
		}
	}
	return bestBid, bestAsk
}

func parseLevel(l feedLevel) (float64, float64, bool) {
	p, err := strconv.ParseFloat(l.Price, 64)
	if err != nil || p <= 0 {
		return 0, 0, false
	}
	s, err := strconv.ParseFloat(l.Size, 64)
	if err != nil {
		return 0, 0, false
	}
	return p, s, true
}

func parseOr(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v == 0 {
		return def
	}
	return v
}
