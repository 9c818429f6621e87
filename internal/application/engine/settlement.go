package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// SettlementConfig parametriza el cierre de ventana.
type SettlementConfig struct {
	Delay         time.Duration // espera tras cerrar el feed
	RedeemTimeout time.Duration
}

// Settlement resuelve el outcome de una ventana y liquida la posición abierta.
type Settlement struct {
	oracle   ports.PriceOracle
	ledger   *Ledger
	sink     ports.EventSink
	redeemer ports.Redeemer
	history  ports.RedemptionLog
	mode     domain.Mode
	cfg      SettlementConfig
	metrics  ports.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	wg    sync.WaitGroup
}

// NewSettlement crea el motor de settlement. redeemer puede ser nil; solo se
// usa en modo live.
func NewSettlement(oracle ports.PriceOracle, ledger *Ledger, sink ports.EventSink, redeemer ports.Redeemer, mode domain.Mode, cfg SettlementConfig, metrics ports.Metrics) *Settlement {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if cfg.RedeemTimeout <= 0 {
		cfg.RedeemTimeout = 60 * time.Second
	}
	return &Settlement{
		oracle:   oracle,
		ledger:   ledger,
		sink:     sink,
		redeemer: redeemer,
		mode:     mode,
		cfg:      cfg,
		metrics:  metrics,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// SetRedemptionLog registra cada intento de redención en log. nil lo desactiva.
func (s *Settlement) SetRedemptionLog(log ports.RedemptionLog) {
	s.history = log
}

// Finalize espera Delay, obtiene el precio final y liquida. Si no hay precio
// devuelve un error ErrDataUnavailable y la ventana queda pendiente.
func (s *Settlement) Finalize(ctx context.Context, w *domain.MarketWindow) ([]domain.Position, error) {
	if err := s.sleep(ctx, s.cfg.Delay); err != nil {
		return nil, err
	}
	final, err := s.FinalPrice(ctx, w)
	if err != nil {
		return nil, err
	}
	return s.Settle(ctx, w, final)
}

// FinalPrice usa el spot; si falla, el open de la vela del cierre.
func (s *Settlement) FinalPrice(ctx context.Context, w *domain.MarketWindow) (float64, error) {
	spot, err := s.oracle.SpotPrice(ctx)
	if err == nil && spot > 0 {
		return spot, nil
	}
	slog.Warn("settlement: spot unavailable, trying close candle", "window", w.Slug, "err", err)

	open, cerr := s.oracle.CandleOpen(ctx, w.EndTime)
	if cerr == nil && open > 0 {
		return open, nil
	}
	return 0, domain.NewOpError(domain.ErrDataUnavailable, "settlement.FinalPrice "+w.Slug, errors.Join(err, cerr))
}

// ClosePrice usa solo el open de la vela del cierre. Una vez pasado EndTime
// el spot ya no representa el precio de la ventana.
func (s *Settlement) ClosePrice(ctx context.Context, w *domain.MarketWindow) (float64, error) {
	open, err := s.oracle.CandleOpen(ctx, w.EndTime)
	if err == nil && open > 0 {
		return open, nil
	}
	if err == nil {
		err = fmt.Errorf("non-positive close candle %.2f", open)
	}
	return 0, domain.NewOpError(domain.ErrDataUnavailable, "settlement.ClosePrice "+w.Slug, err)
}

// Settle liquida la posición OPEN de w contra finalPrice y emite sus eventos.
func (s *Settlement) Settle(ctx context.Context, w *domain.MarketWindow, finalPrice float64) ([]domain.Position, error) {
	strike, ok := w.Strike()
	if !ok {
		return nil, fmt.Errorf("settlement.Settle %s: strike not captured", w.Slug)
	}
	winner := domain.Winner(finalPrice, strike)

	var settled []domain.Position
	pos, closed, err := s.ledger.SettleWindow(w.Slug, winner, s.now())
	if err != nil {
		return nil, fmt.Errorf("settlement.Settle %s: %w", w.Slug, err)
	}
	if closed {
		settled = append(settled, pos)
		s.metrics.PositionClosed(string(pos.Status), pos.RealizedPnL)
		s.metrics.OpenPosition(false)
		if err := s.sink.Enqueue(domain.NewExitEvent(pos, s.mode)); err != nil {
			slog.Error("settlement: enqueue event", "position", pos.ID, "err", err)
		}
		slog.Info("position settled",
			"window", w.Slug,
			"direction", pos.Direction,
			"entry", pos.EntryPrice,
			"payout", pos.ExitPrice,
			"pnl", fmt.Sprintf("%+.2f%%", pos.RealizedPnL*100),
		)
	}

	slog.Info("window settled", "window", w.Slug, "strike", strike, "final", finalPrice, "winner", winner, "positions", len(settled))

	if len(settled) > 0 && s.mode == domain.ModeLive && s.redeemer != nil {
		s.redeemAsync(ctx, w.ConditionID)
	}
	return settled, nil
}

// redeemAsync lanza la redención sin bloquear la siguiente ventana.
// Los fallos se loguean y no tocan el estado ya liquidado.
func (s *Settlement) redeemAsync(ctx context.Context, conditionID string) {
	if conditionID == "" {
		slog.Warn("settlement: missing condition id, skipping redemption")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RedeemTimeout)
		defer cancel()

		res, err := s.redeemer.Redeem(rctx, conditionID)
		s.record(rctx, conditionID, res, err)
		if err != nil {
			s.metrics.Redemption(false)
			slog.Error("redemption failed", "condition", conditionID, "err", domain.NewOpError(domain.ErrRedemption, "redeem", err))
			return
		}
		s.metrics.Redemption(true)
		slog.Info("redemption submitted", "condition", conditionID, "nonce", res.Nonce, "relay_tx", res.RelayTxID)
	}()
}

func (s *Settlement) record(ctx context.Context, conditionID string, res domain.RedeemResult, redeemErr error) {
	if s.history == nil {
		return
	}
	if res.ConditionID == "" {
		res.ConditionID = conditionID
	}
	if res.ExecutedAt.IsZero() {
		res.ExecutedAt = s.now()
	}
	if err := s.history.SaveRedemption(ctx, res, redeemErr); err != nil {
		slog.Warn("settlement: save redemption", "condition", conditionID, "err", err)
	}
}

// Wait bloquea hasta que terminen las redenciones en curso.
func (s *Settlement) Wait() {
	s.wg.Wait()
}
