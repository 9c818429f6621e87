package engine

import (
	"errors"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// ErrNoPredictor lo devuelve NullPredictor: no hay artefacto cargado.
var ErrNoPredictor = errors.New("no predictor loaded")

// NullPredictor es el predictor por defecto. Siempre falla, así el fair value
// queda en el modelo analítico puro.
type NullPredictor struct{}

func (NullPredictor) Predict(domain.FeatureSnapshot) (float64, error) { return 0, ErrNoPredictor }
func (NullPredictor) Close() error                                   { return nil }

type predictorBox struct {
	p ports.Predictor
}

// PredictorSlot guarda el predictor activo. El scheduler de reentrenamiento
// lo reemplaza; el loop de trading solo lee.
type PredictorSlot struct {
	cur atomic.Pointer[predictorBox]
}

// NewPredictorSlot crea un slot. Un predictor nil equivale a NullPredictor.
func NewPredictorSlot(p ports.Predictor) *PredictorSlot {
	s := &PredictorSlot{}
	s.Swap(p)
	return s
}

// Load devuelve el predictor activo.
func (s *PredictorSlot) Load() ports.Predictor {
	b := s.cur.Load()
	if b == nil {
		return NullPredictor{}
	}
	return b.p
}

// Active es true si hay un predictor real cargado.
func (s *PredictorSlot) Active() bool {
	_, null := s.Load().(NullPredictor)
	return !null
}

// Swap publica p y devuelve el anterior.
func (s *PredictorSlot) Swap(p ports.Predictor) ports.Predictor {
	if p == nil {
		p = NullPredictor{}
	}
	old := s.cur.Swap(&predictorBox{p: p})
	if old == nil {
		return nil
	}
	return old.p
}

// ProbabilityUp es P(final >= strike) bajo un paseo aleatorio gaussiano:
// Φ((price - strike) / (σ·√minutos)). Con tiempo o volatilidad no positivos
// el resultado es determinista.
func ProbabilityUp(price, strike, minutesLeft, volPerMin float64) float64 {
	if minutesLeft <= 0 || volPerMin <= 0 {
		if price >= strike {
			return 1
		}
		return 0
	}
	z := (price - strike) / (volPerMin * math.Sqrt(minutesLeft))
	return normCDF(z)
}

func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// Estimate es el resultado del fair value de un tick.
type Estimate struct {
	Model   float64 // probabilidad analítica
	Nudge   float64 // probabilidad del predictor, si hubo
	Final   float64
	Blended bool
}

// FairValue combina el modelo analítico con el predictor opcional.
type FairValue struct {
	vol        ports.VolatilityReader
	predictors *PredictorSlot
}

// NewFairValue crea el motor de fair value.
func NewFairValue(vol ports.VolatilityReader, predictors *PredictorSlot) *FairValue {
	if predictors == nil {
		predictors = NewPredictorSlot(nil)
	}
	return &FairValue{vol: vol, predictors: predictors}
}

// NeedsFeatures es true si hay predictor activo y vale la pena armar el snapshot.
func (f *FairValue) NeedsFeatures() bool {
	return f.predictors.Active()
}

// Model devuelve solo la probabilidad analítica.
func (f *FairValue) Model(price, strike, minutesLeft float64) float64 {
	return ProbabilityUp(price, strike, minutesLeft, f.vol.PerMinute())
}

// Estimate calcula la probabilidad final. Si features es nil o el predictor
// falla, la salida es exactamente la del modelo.
func (f *FairValue) Estimate(price, strike, minutesLeft, nudgeWeight float64, features *domain.FeatureSnapshot) Estimate {
	model := f.Model(price, strike, minutesLeft)
	est := Estimate{Model: model, Final: model}
	if features == nil || nudgeWeight <= 0 {
		return est
	}

	nudge, err := f.predictors.Load().Predict(*features)
	if err != nil {
		if !errors.Is(err, ErrNoPredictor) {
			slog.Debug("predictor failed, using model only", "err", err)
		}
		return est
	}
	if math.IsNaN(nudge) || nudge < 0 || nudge > 1 {
		slog.Debug("predictor out of range, ignored", "nudge", nudge)
		return est
	}

	w := math.Min(math.Max(nudgeWeight, 0), 1)
	est.Nudge = nudge
	est.Final = (1-w)*model + w*nudge
	est.Blended = true
	return est
}
