package ports

import (
	"context"

	"github.com/alejandrodnm/updown/internal/domain"
)

// Reporter presenta al usuario el resumen de rendimiento y los eventos recientes.
type Reporter interface {
	// Report imprime el resumen. En la implementación de consola, tablas formateadas.
	Report(ctx context.Context, summary domain.PerformanceSummary, recent []domain.TradeEvent) error
}
