package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/updown/internal/ports"
)

const (
	// MinutesPerYear convierte la IV anualizada a escala por minuto.
	MinutesPerYear = 525600.0

	DefaultVolatility    = 25.0 // USD por minuto
	DefaultRealizedFloor = 5.0
	DefaultRealizedCount = 60
)

// VolatilityConfig parametriza el estimador.
type VolatilityConfig struct {
	Default        float64
	RealizedFloor  float64
	RealizedCount  int
	RefreshTimeout time.Duration
}

func (c VolatilityConfig) withDefaults() VolatilityConfig {
	if c.Default <= 0 {
		c.Default = DefaultVolatility
	}
	if c.RealizedFloor <= 0 {
		c.RealizedFloor = DefaultRealizedFloor
	}
	if c.RealizedCount < 2 {
		c.RealizedCount = DefaultRealizedCount
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 10 * time.Second
	}
	return c
}

// VolatilityEstimator mantiene la volatilidad por minuto en USD.
// El refresco corre fuera del loop de trading: el loop solo lee el último valor.
type VolatilityEstimator struct {
	iv      ports.VolatilitySource
	oracle  ports.PriceOracle
	cfg     VolatilityConfig
	metrics ports.Metrics

	value      atomic.Uint64 // bits de float64
	inFlight   atomic.Bool
	lastMinute atomic.Int64
	wg         sync.WaitGroup
}

// NewVolatilityEstimator crea el estimador con el valor por defecto cargado.
func NewVolatilityEstimator(iv ports.VolatilitySource, oracle ports.PriceOracle, cfg VolatilityConfig, metrics ports.Metrics) *VolatilityEstimator {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	v := &VolatilityEstimator{iv: iv, oracle: oracle, cfg: cfg.withDefaults(), metrics: metrics}
	v.lastMinute.Store(-1)
	v.store(v.cfg.Default)
	return v
}

// PerMinute devuelve el último valor publicado. Nunca bloquea.
func (v *VolatilityEstimator) PerMinute() float64 {
	return math.Float64frombits(v.value.Load())
}

func (v *VolatilityEstimator) store(x float64) {
	v.value.Store(math.Float64bits(x))
	v.metrics.Volatility(x)
}

// MaybeRefresh lanza un refresco en background como mucho una vez por minuto
// de reloj y nunca dos a la vez. Devuelve true si lanzó uno.
func (v *VolatilityEstimator) MaybeRefresh(ctx context.Context, price float64, now time.Time) bool {
	minute := now.Unix() / 60
	if v.lastMinute.Load() == minute {
		return false
	}
	if !v.inFlight.CompareAndSwap(false, true) {
		return false
	}
	v.lastMinute.Store(minute)

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		defer v.inFlight.Store(false)
		rctx, cancel := context.WithTimeout(ctx, v.cfg.RefreshTimeout)
		defer cancel()
		v.Refresh(rctx, price)
	}()
	return true
}

// Wait bloquea hasta que termine el refresco en curso, si lo hay.
func (v *VolatilityEstimator) Wait() {
	v.wg.Wait()
}

// Refresh recalcula la volatilidad de forma síncrona y la publica.
// Prioridad: IV de opciones, luego realizada, luego el valor por defecto.
func (v *VolatilityEstimator) Refresh(ctx context.Context, price float64) float64 {
	if v.iv != nil {
		iv, err := v.iv.ImpliedVolatility(ctx)
		if err == nil && iv > 0 && price > 0 {
			vol := ImpliedToPerMinute(price, iv)
			slog.Debug("volatility from implied", "iv", iv, "per_min", vol)
			v.store(vol)
			return vol
		}
		slog.Debug("implied volatility unavailable", "err", err)
	}

	if v.oracle != nil {
		closes, err := v.oracle.RecentCloses(ctx, v.cfg.RealizedCount)
		if err == nil {
			vol, rerr := RealizedPerMinute(closes, v.cfg.RealizedFloor)
			if rerr == nil {
				slog.Debug("volatility from realized", "samples", len(closes), "per_min", vol)
				v.store(vol)
				return vol
			}
			err = rerr
		}
		slog.Debug("realized volatility unavailable", "err", err)
	}

	slog.Warn("volatility sources failed, using default", "per_min", v.cfg.Default)
	v.store(v.cfg.Default)
	return v.cfg.Default
}

// ImpliedToPerMinute convierte una IV anual en % a USD por minuto:
// price × (iv/100) / sqrt(minutos por año).
func ImpliedToPerMinute(price, ivPct float64) float64 {
	return price * (ivPct / 100) / math.Sqrt(MinutesPerYear)
}

var errTooFewCloses = errors.New("need at least two closes")

// RealizedPerMinute es la desviación estándar muestral de los cambios
// minuto a minuto, con piso floor.
func RealizedPerMinute(closes []float64, floor float64) (float64, error) {
	if len(closes) < 2 {
		return 0, errTooFewCloses
	}
	diffs := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		diffs = append(diffs, closes[i]-closes[i-1])
	}

	var mean float64
	for _, d := range diffs {
		mean += d
	}
	mean /= float64(len(diffs))

	var ss float64
	for _, d := range diffs {
		ss += (d - mean) * (d - mean)
	}
	std := 0.0
	if len(diffs) > 1 {
		std = math.Sqrt(ss / float64(len(diffs)-1))
	}
	return math.Max(std, floor), nil
}
