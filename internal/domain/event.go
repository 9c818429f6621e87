package domain

import "time"

// EventType es el tipo de transición registrada en el trade log.
type EventType string

const (
	EventEntry      EventType = "ENTRY"
	EventTakeProfit EventType = "TAKE_PROFIT"
	EventStopLoss   EventType = "STOP_LOSS"
	EventSettled    EventType = "SETTLED"
)

// Mode indica si el engine opera en papel o con dinero real.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeLive  Mode = "LIVE"
)

// Label devuelve el tipo tal como se persiste: en paper lleva el sufijo _PAPER.
func (t EventType) Label(m Mode) string {
	if m == ModePaper {
		return string(t) + "_PAPER"
	}
	return string(t)
}

// Diagnostics son las métricas de liquidez capturadas al entrar.
type Diagnostics struct {
	PolySpread   float64 `json:"poly_spread"`
	PolyBidDepth float64 `json:"poly_bid_depth"`
	PolyAskDepth float64 `json:"poly_ask_depth"`
	OBI          float64 `json:"obi"`
}

// TradeEvent es un registro inmutable de una transición del ciclo de vida.
// Se construye por valor y nunca se modifica después de encolarse.
type TradeEvent struct {
	Time        time.Time    `json:"time"`
	Type        string       `json:"type"`
	Window      string       `json:"market"`
	ConditionID string       `json:"condition_id,omitempty"`
	PositionID  string       `json:"position_id"`
	Direction   Direction    `json:"direction"`
	EntryPrice  float64      `json:"entry_price"`
	ExitPrice   *float64     `json:"exit_price,omitempty"`
	Size        float64      `json:"size"`
	Shares      float64      `json:"shares"`
	PnL         *float64     `json:"pnl,omitempty"`
	Result      string       `json:"result,omitempty"`
	Strike      float64      `json:"strike,omitempty"`
	Fee         float64      `json:"fee,omitempty"`
	Mode        Mode         `json:"mode"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// IsClosing es true para eventos que cierran una posición (tienen pnl).
func (e TradeEvent) IsClosing() bool {
	return e.PnL != nil
}

// NewEntryEvent construye el evento ENTRY de una posición recién abierta.
func NewEntryEvent(p Position, strike, fee float64, mode Mode, diag Diagnostics) TradeEvent {
	d := diag
	return TradeEvent{
		Time:        p.EntryTime.UTC(),
		Type:        EventEntry.Label(mode),
		Window:      p.WindowSlug,
		ConditionID: p.ConditionID,
		PositionID:  p.ID,
		Direction:   p.Direction,
		EntryPrice:  p.EntryPrice,
		Size:        p.Size,
		Shares:      p.Shares,
		Strike:      strike,
		Fee:         fee,
		Mode:        mode,
		Diagnostics: &d,
	}
}

// NewExitEvent construye el evento de cierre a partir de una posición ya cerrada.
func NewExitEvent(p Position, mode Mode) TradeEvent {
	var t EventType
	switch p.Status {
	case StatusTakeProfitHit:
		t = EventTakeProfit
	case StatusStopLossHit:
		t = EventStopLoss
	default:
		t = EventSettled
	}

	exit := p.ExitPrice
	pnl := p.RealizedPnL
	ev := TradeEvent{
		Time:        p.ExitTime.UTC(),
		Type:        t.Label(mode),
		Window:      p.WindowSlug,
		ConditionID: p.ConditionID,
		PositionID:  p.ID,
		Direction:   p.Direction,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   &exit,
		Size:        p.Size,
		Shares:      p.Shares,
		PnL:         &pnl,
		Mode:        mode,
	}
	if t == EventSettled {
		ev.Result = "LOSS"
		if exit > 0 {
			ev.Result = "WIN"
		}
	}
	return ev
}
