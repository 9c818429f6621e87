package ports

import (
	"context"
	"time"
)

// PriceOracle es la fuente de precio de referencia (BTC spot).
type PriceOracle interface {
	// CandleOpen devuelve el open de la vela de 1 minuto que empieza en at.
	CandleOpen(ctx context.Context, at time.Time) (float64, error)

	// SpotPrice devuelve el último precio.
	SpotPrice(ctx context.Context) (float64, error)

	// RecentCloses devuelve los cierres de las últimas n velas de 1 minuto.
	RecentCloses(ctx context.Context, n int) ([]float64, error)

	ImbalanceSource
}

// ImbalanceSource mide el desbalance del book spot.
type ImbalanceSource interface {
	// DepthImbalance devuelve volumen bid / volumen ask del book spot.
	// Ante cualquier fallo devuelve 1.0 (neutral).
	DepthImbalance(ctx context.Context) float64
}

// VolatilitySource es el índice de volatilidad implícita (anualizada, en %).
type VolatilitySource interface {
	ImpliedVolatility(ctx context.Context) (float64, error)
}

// VolatilityReader expone la volatilidad vigente por minuto (fracción, no %).
type VolatilityReader interface {
	PerMinute() float64
}
