package engine

import (
	"testing"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.VolatilityReader = (*VolatilityEstimator)(nil)
	_ ports.ImbalanceSource  = ports.PriceOracle(nil)
)

func TestProbabilityUp_Scenario(t *testing.T) {
	p := ProbabilityUp(50100, 50000, 10, 25)
	assert.InDelta(t, 0.897, p, 0.001)
}

func TestProbabilityUp_Degenerate(t *testing.T) {
	assert.Equal(t, 1.0, ProbabilityUp(50000, 50000, 0, 25))
	assert.Equal(t, 0.0, ProbabilityUp(49999, 50000, 0, 25))
	assert.Equal(t, 1.0, ProbabilityUp(50001, 50000, -1, 25))
	assert.Equal(t, 0.0, ProbabilityUp(49999, 50000, 5, 0), "zero volatility is deterministic")
}

func TestProbabilityUp_MonotoneInPrice(t *testing.T) {
	prev := 0.0
	for price := 49500.0; price <= 50500; price += 25 {
		p := ProbabilityUp(price, 50000, 7, 25)
		assert.GreaterOrEqual(t, p, prev)
		assert.InDelta(t, 1.0, p+(1-p), 1e-12)
		prev = p
	}
}

func TestFairValue_NullPredictorUsesModel(t *testing.T) {
	fv := NewFairValue(constVol(25), nil)
	assert.False(t, fv.NeedsFeatures())

	fs := domain.FeatureSnapshot{}
	est := fv.Estimate(50100, 50000, 10, 0.3, &fs)
	assert.False(t, est.Blended)
	assert.Equal(t, est.Model, est.Final)
}

func TestFairValue_Blend(t *testing.T) {
	slot := NewPredictorSlot(&fakePredictor{p: 0.5})
	fv := NewFairValue(constVol(25), slot)
	require.True(t, fv.NeedsFeatures())

	fs := domain.FeatureSnapshot{}
	est := fv.Estimate(50100, 50000, 10, 0.3, &fs)
	assert.True(t, est.Blended)
	assert.InDelta(t, 0.7*est.Model+0.3*0.5, est.Final, 1e-9)
}

func TestFairValue_PredictorFailureFallsBack(t *testing.T) {
	for name, p := range map[string]*fakePredictor{
		"error":        {err: errBoom},
		"out of range": {p: 1.4},
	} {
		t.Run(name, func(t *testing.T) {
			fv := NewFairValue(constVol(25), NewPredictorSlot(p))
			fs := domain.FeatureSnapshot{}
			est := fv.Estimate(50100, 50000, 10, 0.3, &fs)
			assert.False(t, est.Blended)
			assert.Equal(t, est.Model, est.Final)
		})
	}
}

func TestPredictorSlot_Swap(t *testing.T) {
	slot := NewPredictorSlot(nil)
	assert.False(t, slot.Active())

	p := &fakePredictor{p: 0.6}
	old := slot.Swap(p)
	_, isNull := old.(NullPredictor)
	assert.True(t, isNull)
	assert.True(t, slot.Active())
	assert.Same(t, p, slot.Load())
}
