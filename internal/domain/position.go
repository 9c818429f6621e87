package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus es el estado del ciclo de vida de una posición.
// Es monótono: una vez fuera de OPEN nunca vuelve.
type PositionStatus string

const (
	StatusOpen          PositionStatus = "OPEN"
	StatusTakeProfitHit PositionStatus = "TAKE_PROFIT_HIT"
	StatusStopLossHit   PositionStatus = "STOP_LOSS_HIT"
	StatusSettled       PositionStatus = "SETTLED"
)

// ErrPositionClosed se devuelve al intentar cerrar una posición que ya no está OPEN.
var ErrPositionClosed = errors.New("position already closed")

// Position es la única posición abierta del engine.
type Position struct {
	ID          string
	WindowSlug  string
	ConditionID string
	TokenID     string
	Direction   Direction
	EntryPrice  float64
	Size        float64 // USDC invertidos
	Shares      float64
	OrderID     string // id devuelto por el backend de ejecución
	Status      PositionStatus
	EntryTime   time.Time

	ExitPrice   float64
	ExitTime    time.Time
	RealizedPnL float64 // (exit - entry) / entry
}

// IsOpen es true si la posición sigue abierta.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Close transiciona la posición desde OPEN al estado final dado.
func (p *Position) Close(status PositionStatus, exitPrice float64, at time.Time) error {
	if p.Status != StatusOpen {
		return fmt.Errorf("close %s: %w", p.ID, ErrPositionClosed)
	}
	if status == StatusOpen {
		return fmt.Errorf("close %s: target status must be terminal", p.ID)
	}
	p.Status = status
	p.ExitPrice = exitPrice
	p.ExitTime = at
	p.RealizedPnL = ReturnOn(p.EntryPrice, exitPrice)
	return nil
}

// ReturnOn devuelve (exit - entry) / entry.
func ReturnOn(entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	return decimal.NewFromFloat(exit).Sub(e).Div(e).InexactFloat64()
}

// StopLossBreached es true si el retorno a bid alcanza -stopLossPct.
// Se calcula en decimal para que el límite exacto (p.ej. 0.40 → 0.26 con 35%) dispare.
func StopLossBreached(entry, bid, stopLossPct float64) bool {
	if entry <= 0 || bid <= 0 {
		return false
	}
	e := decimal.NewFromFloat(entry)
	ret := decimal.NewFromFloat(bid).Sub(e).Div(e)
	return ret.LessThanOrEqual(decimal.NewFromFloat(-stopLossPct))
}

// SettlementPayout devuelve 1 si la dirección coincide con el ganador, 0 si no.
func SettlementPayout(d, winner Direction) float64 {
	if d == winner {
		return 1.0
	}
	return 0.0
}

// Winner determina el outcome: UP si final >= strike.
func Winner(finalPrice, strike float64) Direction {
	if finalPrice >= strike {
		return DirectionUp
	}
	return DirectionDown
}
