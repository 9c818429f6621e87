package domain

import (
	"errors"
	"fmt"
)

// Tunables son los parámetros de la estrategia que se recargan en caliente.
// Se intercambian de forma atómica; nunca se mutan después de publicarse.
type Tunables struct {
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	SafetyMarginPct  float64 `yaml:"safety_margin_pct"`
	MinEdge          float64 `yaml:"min_edge"`
	FeePct           float64 `yaml:"fee_pct"`
	OBIThreshold     float64 `yaml:"obi_threshold"`
	ExecutionEnabled bool    `yaml:"execution_enabled"`

	TakeProfitPct         float64 `yaml:"take_profit_pct"`
	TakeProfitCap         float64 `yaml:"take_profit_cap"`
	MinAskDepthUSD        float64 `yaml:"min_ask_depth_usd"`
	MinUpLiquidityRatio   float64 `yaml:"min_up_liquidity_ratio"`
	MaxDownLiquidityRatio float64 `yaml:"max_down_liquidity_ratio"`
	NudgeWeight           float64 `yaml:"nudge_weight"`
}

// DefaultTunables devuelve los valores con los que arranca el bot.
func DefaultTunables() Tunables {
	return Tunables{
		StopLossPct:           0.35,
		SafetyMarginPct:       0.0006,
		MinEdge:               0.08,
		FeePct:                0.03,
		OBIThreshold:          1.5,
		ExecutionEnabled:      false,
		TakeProfitPct:         0.15,
		TakeProfitCap:         0.99,
		MinAskDepthUSD:        200,
		MinUpLiquidityRatio:   0.2,
		MaxDownLiquidityRatio: 5.0,
		NudgeWeight:           0.3,
	}
}

// Validate rechaza valores fuera de rango.
func (t Tunables) Validate() error {
	var errs []error
	nonNeg := map[string]float64{
		"stop_loss_pct":            t.StopLossPct,
		"safety_margin_pct":        t.SafetyMarginPct,
		"fee_pct":                  t.FeePct,
		"take_profit_pct":          t.TakeProfitPct,
		"min_ask_depth_usd":        t.MinAskDepthUSD,
		"min_up_liquidity_ratio":   t.MinUpLiquidityRatio,
		"max_down_liquidity_ratio": t.MaxDownLiquidityRatio,
		"obi_threshold":            t.OBIThreshold,
	}
	for name, v := range nonNeg {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %v", name, v))
		}
	}
	if t.StopLossPct > 1 {
		errs = append(errs, fmt.Errorf("stop_loss_pct must be <= 1, got %v", t.StopLossPct))
	}
	if t.TakeProfitCap <= 0 || t.TakeProfitCap > 1 {
		errs = append(errs, fmt.Errorf("take_profit_cap must be in (0,1], got %v", t.TakeProfitCap))
	}
	if t.NudgeWeight < 0 || t.NudgeWeight > 1 {
		errs = append(errs, fmt.Errorf("nudge_weight must be in [0,1], got %v", t.NudgeWeight))
	}
	if t.MinEdge < -1 || t.MinEdge > 1 {
		errs = append(errs, fmt.Errorf("min_edge must be in [-1,1], got %v", t.MinEdge))
	}
	return errors.Join(errs...)
}
