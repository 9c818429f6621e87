package domain

import "math"

// PerformanceSummary resume los últimos trades cerrados.
type PerformanceSummary struct {
	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	ProfitFactor float64 // +Inf si no hubo pérdidas
	AvgWin       float64
	AvgLoss      float64
	TotalPnL     float64
}

// Summarize calcula el resumen sobre los eventos de cierre dados.
// Un pnl <= 0 cuenta como pérdida.
func Summarize(events []TradeEvent) PerformanceSummary {
	var s PerformanceSummary
	var grossProfit, grossLoss float64

	for _, ev := range events {
		if ev.PnL == nil {
			continue
		}
		pnl := *ev.PnL
		s.Trades++
		s.TotalPnL += pnl
		if pnl > 0 {
			s.Wins++
			grossProfit += pnl
		} else {
			s.Losses++
			grossLoss += math.Abs(pnl)
		}
	}

	if s.Trades == 0 {
		return s
	}
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	if grossLoss > 0 {
		s.ProfitFactor = grossProfit / grossLoss
	} else {
		s.ProfitFactor = math.Inf(1)
	}
	if s.Wins > 0 {
		s.AvgWin = grossProfit / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLoss / float64(s.Losses)
	}
	return s
}
