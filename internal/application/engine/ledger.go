package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
)

// ErrPositionOpen se devuelve al abrir con otra posición todavía OPEN.
var ErrPositionOpen = errors.New("a position is already open")

// ExitSignal indica que la posición abierta debe cerrarse a Price.
type ExitSignal struct {
	Status domain.PositionStatus
	Price  float64
	Target float64
}

// Ledger es dueño de la única posición. Solo lo toca el loop de trading.
type Ledger struct {
	pos *domain.Position
}

// NewLedger crea un ledger vacío.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Open registra una posición nueva.
func (l *Ledger) Open(p domain.Position) error {
	if l.HasOpen() {
		return fmt.Errorf("ledger.Open %s: %w", p.ID, ErrPositionOpen)
	}
	p.Status = domain.StatusOpen
	l.pos = &p
	return nil
}

// HasOpen es true si hay una posición OPEN.
func (l *Ledger) HasOpen() bool {
	return l.pos != nil && l.pos.IsOpen()
}

// Current devuelve una copia de la posición abierta.
func (l *Ledger) Current() (domain.Position, bool) {
	if !l.HasOpen() {
		return domain.Position{}, false
	}
	return *l.pos, true
}

// CheckTakeProfit dispara cuando bid >= entry*(1+tp), con techo tp_cap.
func (l *Ledger) CheckTakeProfit(bid float64, t domain.Tunables) (ExitSignal, bool) {
	if !l.HasOpen() || bid <= 0 {
		return ExitSignal{}, false
	}
	target := domain.TakeProfitTarget(l.pos.EntryPrice, t.TakeProfitPct, t.TakeProfitCap)
	if bid >= target {
		return ExitSignal{Status: domain.StatusTakeProfitHit, Price: bid, Target: target}, true
	}
	return ExitSignal{}, false
}

// CheckStopLoss dispara cuando el retorno a bid cae a -stop_loss_pct.
// Un bid no positivo es un hueco de cotización y no evalúa.
func (l *Ledger) CheckStopLoss(bid float64, t domain.Tunables) (ExitSignal, bool) {
	if !l.HasOpen() {
		return ExitSignal{}, false
	}
	if domain.StopLossBreached(l.pos.EntryPrice, bid, t.StopLossPct) {
		return ExitSignal{Status: domain.StatusStopLossHit, Price: bid}, true
	}
	return ExitSignal{}, false
}

// Close cierra la posición abierta y libera el slot.
func (l *Ledger) Close(status domain.PositionStatus, price float64, at time.Time) (domain.Position, error) {
	if l.pos == nil {
		return domain.Position{}, fmt.Errorf("ledger.Close: %w", domain.ErrPositionClosed)
	}
	if err := l.pos.Close(status, price, at); err != nil {
		return domain.Position{}, fmt.Errorf("ledger.Close: %w", err)
	}
	closed := *l.pos
	l.pos = nil
	return closed, nil
}

// SettleWindow liquida la posición abierta de la ventana slug contra winner.
// Devuelve la posición cerrada, si había.
func (l *Ledger) SettleWindow(slug string, winner domain.Direction, at time.Time) (domain.Position, bool, error) {
	if !l.HasOpen() || l.pos.WindowSlug != slug {
		return domain.Position{}, false, nil
	}
	payout := domain.SettlementPayout(l.pos.Direction, winner)
	closed, err := l.Close(domain.StatusSettled, payout, at)
	if err != nil {
		return domain.Position{}, false, err
	}
	return closed, true, nil
}
