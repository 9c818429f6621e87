package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// Backend sends real orders to the Polymarket CLOB.
// Entries are GTC maker bids; exits are limit sells at the current best bid.
type Backend struct {
	executor ports.OrderExecutor
	now      func() time.Time

	negRiskMu sync.Mutex
	negRisk   map[string]bool
}

// New creates a real-money execution backend.
func New(executor ports.OrderExecutor) *Backend {
	return &Backend{
		executor: executor,
		now:      time.Now,
		negRisk:  make(map[string]bool),
	}
}

// Submit signs and posts the order. An accepted order is reported as filled at
// the limit price; any portion matched immediately is taken from the response.
func (b *Backend) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderAck{}, fmt.Errorf("live.Submit: %w", err)
	}

	negRisk := b.isNegRisk(ctx, req.TokenID)
	placed, err := b.executor.PlaceOrder(ctx, domain.PlaceOrderRequest{
		TokenID:     req.TokenID,
		ConditionID: req.ConditionID,
		Price:       req.Price,
		Size:        req.Size,
		Side:        req.Side,
		NegRisk:     negRisk,
	})
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("live.Submit %s: %w", req.Side, err)
	}

	filled := req.FilledShares()
	if req.Side == domain.SideBuy && placed.TakenAmount > 0 {
		filled = placed.TakenAmount
	}

	slog.Info("live: ORDER PLACED",
		"side", req.Side,
		"order", placed.CLOBOrderID,
		"status", placed.Status,
		"price", fmt.Sprintf("%.2f", req.Price),
		"size", fmt.Sprintf("%.4f", req.Size),
		"taken", placed.TakenAmount,
		"made", placed.MadeAmount,
	)

	return domain.OrderAck{
		OrderID:     placed.CLOBOrderID,
		Status:      placed.Status,
		FilledPrice: req.Price,
		FilledSize:  filled,
		AcceptedAt:  b.now().UTC(),
	}, nil
}

// Cancel cancels a resting order. Already matched orders return the CLOB error.
func (b *Backend) Cancel(ctx context.Context, orderID string) error {
	if orderID == "" {
		return nil
	}
	if err := b.executor.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("live.Cancel: %w", err)
	}
	slog.Info("live: order cancelled", "order", orderID)
	return nil
}

// Mode identifies the backend.
func (b *Backend) Mode() domain.Mode {
	return domain.ModeLive
}

// isNegRisk caches the neg-risk flag per token. Lookup errors fall back to the
// standard exchange, which is what BTC up/down markets use.
func (b *Backend) isNegRisk(ctx context.Context, tokenID string) bool {
	b.negRiskMu.Lock()
	v, ok := b.negRisk[tokenID]
	b.negRiskMu.Unlock()
	if ok {
		return v
	}

	v, err := b.executor.IsNegRisk(ctx, tokenID)
	if err != nil {
		slog.Warn("live: neg-risk lookup failed, assuming standard exchange", "token", tokenID, "err", err)
		return false
	}
	b.negRiskMu.Lock()
	b.negRisk[tokenID] = v
	b.negRiskMu.Unlock()
	return v
}
