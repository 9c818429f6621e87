package ports

import (
	"context"

	"github.com/alejandrodnm/updown/internal/domain"
)

// WindowSource busca el descriptor de una ventana en el servicio de listado de mercados.
type WindowSource interface {
	// FetchWindow devuelve la ventana del slug dado, o nil si no existe,
	// está cerrada o no acepta órdenes. No reintenta.
	FetchWindow(ctx context.Context, slug string) (*domain.MarketWindow, error)
}
