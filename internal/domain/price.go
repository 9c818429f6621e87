package domain

import "github.com/shopspring/decimal"

var (
	// TickSize es el tick mínimo de precio en el CLOB.
	TickSize = decimal.RequireFromString("0.01")

	minPrice = decimal.RequireFromString("0.01")
	maxPrice = decimal.RequireFromString("0.99")
)

// MakerEntryPrice devuelve ask - 1 tick, acotado a [0.01, 0.99] y redondeado al tick.
// Nunca cruza el spread: el precio queda como mejor bid.
func MakerEntryPrice(bestAsk float64) float64 {
	p := decimal.NewFromFloat(bestAsk).Sub(TickSize)
	return clampPrice(p).InexactFloat64()
}

// TakeProfitTarget devuelve entry*(1+pct) con techo en cap.
func TakeProfitTarget(entry, pct, cap float64) float64 {
	target := decimal.NewFromFloat(entry).Mul(decimal.NewFromFloat(1 + pct))
	c := decimal.NewFromFloat(cap)
	if target.GreaterThan(c) {
		target = c
	}
	return target.Round(6).InexactFloat64()
}

// SharesFor devuelve cuántas shares compra stake USDC a price.
func SharesFor(stake, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return decimal.NewFromFloat(stake).Div(decimal.NewFromFloat(price)).Round(6).InexactFloat64()
}

func clampPrice(p decimal.Decimal) decimal.Decimal {
	p = p.Round(2)
	if p.LessThan(minPrice) {
		return minPrice
	}
	if p.GreaterThan(maxPrice) {
		return maxPrice
	}
	return p
}
