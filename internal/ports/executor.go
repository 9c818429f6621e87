package ports

import (
	"context"

	"github.com/alejandrodnm/updown/internal/domain"
)

// ExecutionBackend ejecuta órdenes. Paper y live comparten la misma máquina
// de estados y solo difieren en esta implementación.
type ExecutionBackend interface {
	// Submit envía la orden y devuelve el ack si fue aceptada.
	Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error)

	// Cancel cancela una orden por id.
	Cancel(ctx context.Context, orderID string) error

	// Mode identifica el backend en el trade log.
	Mode() domain.Mode
}

// OrderExecutor places and cancels real orders on the Polymarket CLOB.
type OrderExecutor interface {
	// PlaceOrder signs and submits a GTC limit order.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// CancelOrder cancels a specific order by its CLOB order ID.
	CancelOrder(ctx context.Context, clobOrderID string) error

	// IsNegRisk returns true if the given token uses the NegRisk adapter.
	IsNegRisk(ctx context.Context, tokenID string) (bool, error)
}

// Redeemer redeems settled conditional tokens for collateral.
type Redeemer interface {
	// Redeem submits a gasless redemption for the given condition.
	Redeem(ctx context.Context, conditionID string) (domain.RedeemResult, error)
}
