package ports

import (
	"context"

	"github.com/alejandrodnm/updown/internal/domain"
)

// DepthProvider obtiene el orderbook completo de un token vía REST.
type DepthProvider interface {
	// FetchOrderBook devuelve el book del token, con bids desc y asks asc.
	FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}

// MarketStream es la suscripción streaming a los dos tokens de una ventana.
type MarketStream interface {
	// Subscribe abre la conexión y entrega cada mensaje crudo a handle
	// hasta que ctx se cancela o Close se llama.
	Subscribe(ctx context.Context, assetIDs []string, handle func(raw []byte)) error

	// Close cancela la suscripción. Es idempotente.
	Close() error
}
