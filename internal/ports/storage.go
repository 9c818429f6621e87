package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
)

// EventSink recibe los TradeEvent. Enqueue nunca bloquea.
type EventSink interface {
	Enqueue(ev domain.TradeEvent) error
}

// EventWriter persiste un TradeEvent de forma síncrona. Lo usa el drain de la cola.
type EventWriter interface {
	Write(ctx context.Context, ev domain.TradeEvent) error
}

// TradeStore es el espejo consultable del trade log.
type TradeStore interface {
	EventWriter

	// RecentClosed devuelve los últimos n eventos de cierre, del más antiguo al más nuevo.
	RecentClosed(ctx context.Context, n int) ([]domain.TradeEvent, error)

	// Events devuelve los eventos registrados en el rango de tiempo dado.
	Events(ctx context.Context, from, to time.Time) ([]domain.TradeEvent, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// RedemptionLog registra cada intento de redención on-chain.
type RedemptionLog interface {
	// SaveRedemption guarda el resultado. redeemErr nil significa aceptada por el relay.
	SaveRedemption(ctx context.Context, res domain.RedeemResult, redeemErr error) error
}
