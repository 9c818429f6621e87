package domain

import "time"

// FeatureSnapshot es la entrada del predictor externo (probability nudge).
// El orden de Vector() es parte del contrato con el artefacto entrenado.
type FeatureSnapshot struct {
	DiffFromStrike   float64
	MinutesRemaining float64
	Strike           float64
	PolySpread       float64
	PolyBidDepth     float64
	PolyAskDepth     float64
	OBI              float64
	Hour             int
	DayOfWeek        int // lunes = 0
}

// FeatureCount es la longitud de Vector().
const FeatureCount = 9

// NewFeatureSnapshot construye el snapshot a partir del estado del tick.
func NewFeatureSnapshot(now time.Time, price, strike, minutesLeft float64, liq Liquidity, obi float64) FeatureSnapshot {
	utc := now.UTC()
	return FeatureSnapshot{
		DiffFromStrike:   price - strike,
		MinutesRemaining: minutesLeft,
		Strike:           strike,
		PolySpread:       liq.Spread,
		PolyBidDepth:     liq.BidDepth,
		PolyAskDepth:     liq.AskDepth,
		OBI:              obi,
		Hour:             utc.Hour(),
		DayOfWeek:        (int(utc.Weekday()) + 6) % 7,
	}
}

// Vector devuelve las features en el orden que espera el modelo.
func (f FeatureSnapshot) Vector() []float32 {
	return []float32{
		float32(f.DiffFromStrike),
		float32(f.MinutesRemaining),
		float32(f.Strike),
		float32(f.PolySpread),
		float32(f.PolyBidDepth),
		float32(f.PolyAskDepth),
		float32(f.OBI),
		float32(f.Hour),
		float32(f.DayOfWeek),
	}
}
