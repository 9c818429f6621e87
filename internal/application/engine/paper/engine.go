package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/updown/internal/domain"
)

// Backend simula la ejecución: toda orden válida se llena al precio límite.
// Comparte la máquina de estados del engine con el backend live.
type Backend struct {
	mu    sync.Mutex
	fills []domain.OrderAck
	open  map[string]domain.OrderRequest
	now   func() time.Time
}

// New crea un backend de paper trading.
func New() *Backend {
	return &Backend{
		open: make(map[string]domain.OrderRequest),
		now:  time.Now,
	}
}

// Submit registra un fill virtual inmediato.
func (b *Backend) Submit(_ context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderAck{}, fmt.Errorf("paper.Submit: %w", err)
	}

	ack := domain.OrderAck{
		OrderID:     "paper-" + uuid.NewString(),
		Status:      "FILLED",
		FilledPrice: req.Price,
		FilledSize:  req.FilledShares(),
		AcceptedAt:  b.now().UTC(),
	}

	b.mu.Lock()
	b.fills = append(b.fills, ack)
	b.open[ack.OrderID] = req
	b.mu.Unlock()

	slog.Info("paper: fill",
		"side", req.Side,
		"token", req.TokenID[:min(12, len(req.TokenID))],
		"price", fmt.Sprintf("%.2f", req.Price),
		"shares", fmt.Sprintf("%.4f", ack.FilledSize),
	)
	return ack, nil
}

// Cancel olvida la orden. Las órdenes en papel ya están llenas, así que
// cancelar nunca revierte nada.
func (b *Backend) Cancel(_ context.Context, orderID string) error {
	b.mu.Lock()
	delete(b.open, orderID)
	b.mu.Unlock()
	return nil
}

// Mode identifica el backend.
func (b *Backend) Mode() domain.Mode {
	return domain.ModePaper
}

// Fills devuelve una copia de los fills registrados.
func (b *Backend) Fills() []domain.OrderAck {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OrderAck, len(b.fills))
	copy(out, b.fills)
	return out
}
