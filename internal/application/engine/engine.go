package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// Config son los tiempos y tamaños fijos del loop. Los parámetros de la
// estrategia viven en domain.Tunables y se recargan en caliente.
type Config struct {
	TickInterval     time.Duration
	Cooldown         time.Duration
	ActivityFloor    time.Duration
	SettleDelay      time.Duration
	NoWindowWait     time.Duration
	ErrorBackoff     time.Duration
	StrikeAttempts   int
	StrikeRetryWait  time.Duration
	StrikeFailWait   time.Duration
	OrderSizeUSDC    float64
	DiagnosticsEvery time.Duration
	SummaryTrades    int
	Volatility       VolatilityConfig
}

// DefaultConfig devuelve los tiempos con los que opera el bot.
func DefaultConfig() Config {
	return Config{
		TickInterval:     2 * time.Second,
		Cooldown:         15 * time.Second,
		ActivityFloor:    30 * time.Second,
		SettleDelay:      5 * time.Second,
		NoWindowWait:     10 * time.Second,
		ErrorBackoff:     5 * time.Second,
		StrikeAttempts:   5,
		StrikeRetryWait:  2 * time.Second,
		StrikeFailWait:   30 * time.Second,
		OrderSizeUSDC:    1.0,
		DiagnosticsEvery: 10 * time.Second,
		SummaryTrades:    20,
	}
}

// Deps agrupa los adaptadores que necesita el engine. Store, Reporter,
// Redeemer, History, IV y Metrics son opcionales.
type Deps struct {
	Windows    ports.WindowSource
	Stream     ports.MarketStream
	Depth      ports.DepthProvider
	Oracle     ports.PriceOracle
	IV         ports.VolatilitySource
	Backend    ports.ExecutionBackend
	Redeemer   ports.Redeemer
	History    ports.RedemptionLog
	Sink       ports.EventSink
	Store      ports.TradeStore
	Reporter   ports.Reporter
	Tunables   *TunablesStore
	Predictors *PredictorSlot
	Metrics    ports.Metrics
	Now        func() time.Time
}

// Engine es el contexto del bot: ventana actual, book, posición y de-dup.
// Todo su estado lo toca un único goroutine (Run).
type Engine struct {
	cfg Config

	resolver *Resolver
	strikes  StrikeCapture
	feed     *Feed
	vol      *VolatilityEstimator
	fair     *FairValue
	gate     *Gatekeeper
	ledger   *Ledger
	settle   *Settlement

	oracle   ports.PriceOracle
	depth    ports.DepthProvider
	backend  ports.ExecutionBackend
	sink     ports.EventSink
	store    ports.TradeStore
	reporter ports.Reporter
	tunables *TunablesStore
	metrics  ports.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	lastWindow string
	pending    []*domain.MarketWindow
	lastDiag   time.Time
}

// New arma el engine y sus componentes a partir de deps.
func New(cfg Config, deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if deps.Tunables == nil {
		deps.Tunables = NewTunablesStore(domain.DefaultTunables())
	}
	if deps.Predictors == nil {
		deps.Predictors = NewPredictorSlot(nil)
	}

	ledger := NewLedger()
	vol := NewVolatilityEstimator(deps.IV, deps.Oracle, cfg.Volatility, deps.Metrics)
	settle := NewSettlement(deps.Oracle, ledger, deps.Sink, deps.Redeemer, deps.Backend.Mode(),
		SettlementConfig{Delay: cfg.SettleDelay}, deps.Metrics)
	settle.now = deps.Now
	if deps.History != nil {
		settle.SetRedemptionLog(deps.History)
	}

	return &Engine{
		cfg:      cfg,
		resolver: NewResolver(deps.Windows, deps.Now),
		strikes: StrikeCapture{
			Oracle:   deps.Oracle,
			Attempts: cfg.StrikeAttempts,
			Wait:     cfg.StrikeRetryWait,
		},
		feed:     NewFeed(deps.Stream, deps.Metrics),
		vol:      vol,
		fair:     NewFairValue(vol, deps.Predictors),
		gate:     NewGatekeeper(deps.Depth, deps.Oracle, cfg.Cooldown),
		ledger:   ledger,
		settle:   settle,
		oracle:   deps.Oracle,
		depth:    deps.Depth,
		backend:  deps.Backend,
		sink:     deps.Sink,
		store:    deps.Store,
		reporter: deps.Reporter,
		tunables: deps.Tunables,
		metrics:  deps.Metrics,
		now:      deps.Now,
		sleep:    sleepCtx,
	}
}

// Run ejecuta el loop principal hasta que ctx se cancele. Un error o panic en
// una iteración se loguea y el loop sigue tras ErrorBackoff.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine started",
		"mode", e.backend.Mode(),
		"tick", e.cfg.TickInterval,
		"order_size", e.cfg.OrderSizeUSDC,
		"execution_enabled", e.tunables.Load().ExecutionEnabled,
	)
	for ctx.Err() == nil {
		wait := e.safeIteration(ctx)
		if err := e.sleep(ctx, wait); err != nil {
			break
		}
	}
	e.shutdown()
	return nil
}

func (e *Engine) shutdown() {
	e.vol.Wait()
	e.settle.Wait()
	if pos, ok := e.ledger.Current(); ok {
		slog.Warn("engine stopped with open position", "window", pos.WindowSlug, "direction", pos.Direction, "entry", pos.EntryPrice)
	}
	slog.Info("engine stopped")
}

func (e *Engine) safeIteration(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: recovered from panic", "panic", r, "stack", string(debug.Stack()))
			wait = e.cfg.ErrorBackoff
		}
	}()

	wait, err := e.iterate(ctx)
	if err != nil {
		slog.Error("engine: iteration failed", "err", err)
		return e.cfg.ErrorBackoff
	}
	return wait
}

// iterate procesa una ventana completa. Devuelve cuánto esperar antes de la
// siguiente iteración.
func (e *Engine) iterate(ctx context.Context) (time.Duration, error) {
	e.retryPending(ctx)

	// 1. Resolver la ventana actual
	w, err := e.resolver.Resolve(ctx)
	if err != nil {
		return 0, err
	}
	if w == nil {
		slog.Info("no active window, waiting", "wait", e.cfg.NoWindowWait)
		return e.cfg.NoWindowWait, nil
	}

	now := e.now()
	if w.Slug == e.lastWindow || !w.IsActive(now, e.cfg.ActivityFloor) {
		return e.untilNextWindow(w, now), nil
	}
	e.lastWindow = w.Slug

	// 2. Strike: open de la vela de inicio
	strike, err := e.strikes.Capture(ctx, w)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil
		}
		slog.Warn("skipping window, strike unavailable", "window", w.Slug, "err", err)
		return e.cfg.StrikeFailWait, nil
	}
	slog.Info("window started",
		"window", w.Slug,
		"strike", strike,
		"ends", w.EndTime.Format("15:04:05"),
		"up_token", TruncateStr(w.UpTokenID, 12),
		"down_token", TruncateStr(w.DownTokenID, 12),
	)

	// 3. Trading hasta el piso de actividad
	e.gate.ResetWindow(w.Slug)
	e.tradeWindow(ctx, w, strike)
	if ctx.Err() != nil {
		return 0, nil
	}

	// 4. Settlement
	e.closeWindow(ctx, w)
	return 0, nil
}

func (e *Engine) untilNextWindow(w *domain.MarketWindow, now time.Time) time.Duration {
	d := w.EndTime.Sub(now)
	if d < e.cfg.TickInterval {
		return e.cfg.TickInterval
	}
	return d
}

func (e *Engine) tradeWindow(ctx context.Context, w *domain.MarketWindow, strike float64) {
	e.feed.Start(ctx, w)
	defer e.feed.Stop()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		now := e.now()
		if !w.IsActive(now, e.cfg.ActivityFloor) {
			return
		}
		e.safeTick(ctx, w, strike, now)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) safeTick(ctx context.Context, w *domain.MarketWindow, strike float64, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: tick panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	e.tick(ctx, w, strike, now)
}

// tick es una decisión completa sobre un snapshot consistente del book.
func (e *Engine) tick(ctx context.Context, w *domain.MarketWindow, strike float64, now time.Time) {
	e.metrics.Tick()
	book := e.feed.Sync()
	t := e.tunables.Load()

	price, err := e.oracle.SpotPrice(ctx)
	if err != nil {
		slog.Debug("tick skipped, spot unavailable", "err", err)
		return
	}
	e.vol.MaybeRefresh(ctx, price, now)
	minutesLeft := w.TimeRemaining(now).Minutes()

	// 1. Gestión de la posición abierta
	e.manageExit(ctx, w, book, t, now)

	// 2. Fair value, con features solo si hay predictor y se puede entrar
	in := DecisionInput{
		Window:          w,
		Now:             now,
		Price:           price,
		Strike:          strike,
		Book:            book,
		HasOpenPosition: e.ledger.HasOpen(),
		Tunables:        t,
	}
	var features *domain.FeatureSnapshot
	if e.fair.NeedsFeatures() && !in.HasOpenPosition {
		liq := FetchLiquidity(ctx, e.depth, w.UpTokenID)
		obi := e.oracle.DepthImbalance(ctx)
		fs := domain.NewFeatureSnapshot(now, price, strike, minutesLeft, liq, obi)
		features = &fs
		in.UpLiquidity = &liq
		in.OBI = &obi
	}
	est := e.fair.Estimate(price, strike, minutesLeft, t.NudgeWeight, features)
	in.ProbUp = est.Final
	e.metrics.Probability(est.Final)

	// 3. Decisión de entrada
	d := e.gate.Decide(ctx, in)
	e.metrics.Decision(string(d.Outcome))
	if d.Outcome != OutcomePositionOpen && d.Outcome != OutcomeCooldown {
		e.metrics.Edge("up", d.EdgeUp)
		e.metrics.Edge("down", d.EdgeDown)
		e.metrics.Imbalance(d.OBI)
	}
	e.logDiagnostics(w, d, est, price, strike, minutesLeft, now)

	switch d.Outcome {
	case OutcomeSignal:
		slog.Info("signal (execution disabled)",
			"window", w.Slug,
			"direction", d.Direction,
			"ask", book.Side(d.Direction).BestAsk,
			"edge_up", round4(d.EdgeUp),
			"edge_down", round4(d.EdgeDown),
			"obi_confirms", d.OBIConfirms,
		)
	case OutcomeEnter:
		e.enter(ctx, w, strike, d, t, now)
	}
}

func (e *Engine) manageExit(ctx context.Context, w *domain.MarketWindow, book domain.BookSnapshot, t domain.Tunables, now time.Time) {
	pos, ok := e.ledger.Current()
	if !ok || pos.WindowSlug != w.Slug {
		return
	}
	bid := book.Side(pos.Direction).BestBid

	sig, hit := e.ledger.CheckTakeProfit(bid, t)
	if !hit {
		sig, hit = e.ledger.CheckStopLoss(bid, t)
	}
	if !hit {
		return
	}

	_, err := e.backend.Submit(ctx, domain.OrderRequest{
		TokenID:     pos.TokenID,
		ConditionID: pos.ConditionID,
		Price:       sig.Price,
		Size:        pos.Shares,
		Side:        domain.SideSell,
	})
	if err != nil {
		slog.Warn("exit order failed, position stays open", "status", sig.Status, "bid", bid, "err", err)
		return
	}

	closed, err := e.ledger.Close(sig.Status, sig.Price, now)
	if err != nil {
		slog.Error("ledger close failed", "err", err)
		return
	}
	e.metrics.PositionClosed(string(closed.Status), closed.RealizedPnL)
	e.metrics.OpenPosition(false)
	e.emit(domain.NewExitEvent(closed, e.backend.Mode()))

	slog.Info("position closed",
		"status", closed.Status,
		"direction", closed.Direction,
		"entry", closed.EntryPrice,
		"exit", closed.ExitPrice,
		"pnl", fmt.Sprintf("%+.2f%%", closed.RealizedPnL*100),
	)
}

func (e *Engine) enter(ctx context.Context, w *domain.MarketWindow, strike float64, d Decision, t domain.Tunables, now time.Time) {
	tokenID := w.TokenFor(d.Direction)
	ack, err := e.backend.Submit(ctx, domain.OrderRequest{
		TokenID:     tokenID,
		ConditionID: w.ConditionID,
		Price:       d.EntryPrice,
		Size:        e.cfg.OrderSizeUSDC,
		Side:        domain.SideBuy,
	})
	if err != nil {
		slog.Warn("entry order failed", "window", w.Slug, "direction", d.Direction, "price", d.EntryPrice, "err", err)
		return
	}

	entry := d.EntryPrice
	if ack.FilledPrice > 0 {
		entry = ack.FilledPrice
	}
	shares := ack.FilledSize
	if shares <= 0 {
		shares = domain.SharesFor(e.cfg.OrderSizeUSDC, entry)
	}

	pos := domain.Position{
		ID:          uuid.NewString(),
		WindowSlug:  w.Slug,
		ConditionID: w.ConditionID,
		TokenID:     tokenID,
		Direction:   d.Direction,
		EntryPrice:  entry,
		Size:        e.cfg.OrderSizeUSDC,
		Shares:      shares,
		OrderID:     ack.OrderID,
		EntryTime:   now,
	}
	if err := e.ledger.Open(pos); err != nil {
		slog.Error("ledger open failed", "err", err)
		return
	}
	e.metrics.OpenPosition(true)

	diag := domain.Diagnostics{
		PolySpread:   d.Liquidity.Spread,
		PolyBidDepth: d.Liquidity.BidDepth,
		PolyAskDepth: d.Liquidity.AskDepth,
		OBI:          d.OBI,
	}
	e.emit(domain.NewEntryEvent(pos, strike, t.FeePct, e.backend.Mode(), diag))

	slog.Info("position opened",
		"window", w.Slug,
		"direction", d.Direction,
		"price", entry,
		"shares", shares,
		"order", ack.OrderID,
		"obi_confirms", d.OBIConfirms,
	)
}

// closeWindow cancela la orden de entrada que siga en el book y liquida.
func (e *Engine) closeWindow(ctx context.Context, w *domain.MarketWindow) {
	if pos, ok := e.ledger.Current(); ok && pos.WindowSlug == w.Slug && pos.OrderID != "" {
		if err := e.backend.Cancel(ctx, pos.OrderID); err != nil {
			slog.Debug("cancel resting entry", "order", pos.OrderID, "err", err)
		}
	}

	if _, err := e.settle.Finalize(ctx, w); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("settlement deferred", "window", w.Slug, "err", err)
		e.pending = append(e.pending, w)
		return
	}
	e.summarize(ctx)
}

// retryPending intenta liquidar ventanas cuyo precio final no estuvo disponible.
// La ventana ya cerró: solo vale la vela del cierre, nunca el spot actual.
func (e *Engine) retryPending(ctx context.Context) {
	if len(e.pending) == 0 {
		return
	}
	remaining := e.pending[:0]
	for _, w := range e.pending {
		final, err := e.settle.ClosePrice(ctx, w)
		if err == nil {
			_, err = e.settle.Settle(ctx, w, final)
		}
		if err != nil {
			slog.Warn("pending settlement still failing", "window", w.Slug, "err", err)
			remaining = append(remaining, w)
			continue
		}
		e.summarize(ctx)
	}
	e.pending = remaining
}

// summarize loguea el rendimiento de los últimos trades cerrados.
func (e *Engine) summarize(ctx context.Context) {
	if e.store == nil {
		return
	}
	events, err := e.store.RecentClosed(ctx, e.cfg.SummaryTrades)
	if err != nil {
		slog.Warn("performance summary unavailable", "err", err)
		return
	}
	s := domain.Summarize(events)
	if s.Trades == 0 {
		return
	}
	slog.Info("performance",
		"trades", s.Trades,
		"win_rate", fmt.Sprintf("%.1f%%", s.WinRate*100),
		"profit_factor", round4(s.ProfitFactor),
		"avg_win", fmt.Sprintf("%+.2f%%", s.AvgWin*100),
		"avg_loss", fmt.Sprintf("-%.2f%%", s.AvgLoss*100),
	)
	if e.reporter != nil {
		if err := e.reporter.Report(ctx, s, events); err != nil {
			slog.Warn("report failed", "err", err)
		}
	}
}

func (e *Engine) emit(ev domain.TradeEvent) {
	if err := e.sink.Enqueue(ev); err != nil {
		slog.Error("enqueue trade event", "type", ev.Type, "err", err)
	}
}

func (e *Engine) logDiagnostics(w *domain.MarketWindow, d Decision, est Estimate, price, strike, minutesLeft float64, now time.Time) {
	if d.Outcome == OutcomePositionOpen || d.Outcome == OutcomeCooldown {
		return
	}
	if now.Sub(e.lastDiag) < e.cfg.DiagnosticsEvery {
		return
	}
	e.lastDiag = now
	slog.Info("tick",
		"window", w.Slug,
		"outcome", d.Outcome,
		"price", price,
		"strike", strike,
		"diff", round4(d.Diff),
		"margin", round4(d.SafetyMargin),
		"min_left", round4(minutesLeft),
		"vol", round4(e.vol.PerMinute()),
		"p_model", round4(est.Model),
		"p_final", round4(est.Final),
		"edge_up", round4(d.EdgeUp),
		"edge_down", round4(d.EdgeDown),
		"obi", round4(d.OBI),
	)
}

// TruncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
func TruncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
