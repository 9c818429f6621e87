package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/updown/config"
	"github.com/alejandrodnm/updown/internal/adapters/binance"
	"github.com/alejandrodnm/updown/internal/adapters/deribit"
	"github.com/alejandrodnm/updown/internal/adapters/metrics"
	"github.com/alejandrodnm/updown/internal/adapters/notify"
	"github.com/alejandrodnm/updown/internal/adapters/onchain"
	"github.com/alejandrodnm/updown/internal/adapters/polymarket"
	"github.com/alejandrodnm/updown/internal/adapters/predictor"
	"github.com/alejandrodnm/updown/internal/adapters/retrain"
	"github.com/alejandrodnm/updown/internal/adapters/storage"
	"github.com/alejandrodnm/updown/internal/adapters/tradelog"
	"github.com/alejandrodnm/updown/internal/application/engine"
	"github.com/alejandrodnm/updown/internal/application/engine/live"
	"github.com/alejandrodnm/updown/internal/application/engine/paper"
	"github.com/alejandrodnm/updown/internal/ports"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop until SIGINT/SIGTERM",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return run(ctx, cfg)
	},
}

func run(ctx context.Context, cfg *config.Config) error {
	tunables, err := config.LoadTunables(cfg.Engine.TunablesPath)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	slog.Info("updown starting",
		"config", configPath,
		"mode", cfg.Engine.Mode,
		"tick", cfg.TickInterval(),
		"execution_enabled", tunables.ExecutionEnabled,
	)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				slog.Warn("close failed", "err", err)
			}
		}
	}()

	var m ports.Metrics = ports.NopMetrics{}
	if cfg.Metrics.Addr != "" {
		collector := metrics.NewCollector()
		srv := metrics.NewServer(cfg.Metrics.Addr, collector.Registry())
		srv.Start()
		defer srv.Shutdown()
		m = collector
	}

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	stream := polymarket.NewMarketStream(cfg.API.WSURL)
	closers = append(closers, stream)
	oracle := binance.NewOracle(cfg.Oracle.BinanceBase, cfg.Oracle.Symbol)
	iv := deribit.NewClient(cfg.Oracle.DeribitBase, cfg.Oracle.Currency)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	closers = append(closers, store)

	journal, err := tradelog.Open(cfg.TradeLog.Path, int64(cfg.TradeLog.MaxMB)<<20)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	closers = append(closers, journal)

	deps := engine.Deps{
		Windows:  client,
		Stream:   stream,
		Depth:    client,
		Oracle:   oracle,
		IV:       iv,
		Store:    store,
		History:  store,
		Reporter: notify.NewConsole(),
		Tunables: engine.NewTunablesStore(tunables),
		Metrics:  m,
	}

	if cfg.IsLive() {
		if err := setupLive(ctx, cfg, secrets, &deps, &closers); err != nil {
			return err
		}
	} else {
		deps.Backend = paper.New()
	}

	predOpts := predictor.Options{
		LibraryPath: cfg.Predictor.LibraryPath,
		InputName:   cfg.Predictor.InputName,
		OutputName:  cfg.Predictor.OutputName,
	}
	deps.Predictors = engine.NewPredictorSlot(nil)
	if cfg.Predictor.Path != "" {
		p, err := predictor.Open(cfg.Predictor.Path, predOpts)
		if err != nil {
			slog.Warn("predictor unavailable, using the model alone", "path", cfg.Predictor.Path, "err", err)
		} else {
			deps.Predictors = engine.NewPredictorSlot(p)
		}
	}
	slot := deps.Predictors
	closers = append(closers, closerFunc(func() error { return slot.Load().Close() }))

	// la cola escribe primero al JSONL y después al espejo SQLite
	queue := engine.NewQueue(journal, m, store)
	queue.Start()
	deps.Sink = queue

	reloader := engine.NewReloader(cfg.Engine.TunablesPath, cfg.ReloadInterval(), config.LoadTunables, deps.Tunables, m)
	go func() {
		if err := reloader.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("tunables reloader stopped", "err", err)
		}
	}()

	if cfg.Retrain.Enabled {
		channel, err := retrainChannel(cfg.Retrain, &closers)
		if err != nil {
			return err
		}
		sched := engine.NewRetrainScheduler(channel, predictor.Loader(predOpts), deps.Predictors,
			cfg.RetrainInterval(), cfg.RetrainPoll())
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("retrain scheduler stopped", "err", err)
			}
		}()
	}

	ecfg := engine.DefaultConfig()
	ecfg.TickInterval = cfg.TickInterval()
	ecfg.Cooldown = time.Duration(cfg.Engine.CooldownSeconds) * time.Second
	ecfg.ActivityFloor = time.Duration(cfg.Engine.ActivityFloorSeconds) * time.Second
	ecfg.SettleDelay = time.Duration(cfg.Engine.SettleDelaySeconds) * time.Second
	ecfg.StrikeAttempts = cfg.Engine.StrikeAttempts
	ecfg.OrderSizeUSDC = cfg.Engine.OrderSizeUSDC
	ecfg.SummaryTrades = cfg.Engine.SummaryTrades
	ecfg.Volatility = engine.VolatilityConfig{
		Default:       cfg.Engine.DefaultVolatility,
		RealizedCount: cfg.Engine.RealizedCandles,
	}

	runErr := engine.New(ecfg, deps).Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := queue.Close(flushCtx); err != nil {
		slog.Warn("persistence queue not fully drained", "pending", queue.Len(), "err", err)
	}

	if runErr != nil {
		return fmt.Errorf("engine: %w", runErr)
	}
	slog.Info("updown stopped cleanly")
	return nil
}

// setupLive arma el backend real y, si está habilitado, el redeemer vía relay.
func setupLive(ctx context.Context, cfg *config.Config, secrets config.Secrets, deps *engine.Deps, closers *[]io.Closer) error {
	if err := secrets.RequireLive(cfg.Live.Redeem); err != nil {
		return err
	}

	auth, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, secrets.PrivateKey, secrets.FunderAddress)
	if err != nil {
		return fmt.Errorf("auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return fmt.Errorf("derive api credentials: %w", err)
	}
	slog.Info("live trading enabled", "address", auth.Address(), "funder", auth.Funder())
	deps.Backend = live.New(polymarket.NewTradingClient(auth))

	if !cfg.Live.Redeem {
		return nil
	}
	nonces, err := onchain.DialNonceSource(secrets.PolygonRPC)
	if err != nil {
		return err
	}
	*closers = append(*closers, closerFunc(func() error { nonces.Close(); return nil }))

	redeemer, err := onchain.NewRedeemer(secrets.PrivateKey, secrets.FunderAddress, nonces, onchain.RedeemConfig{
		RelayURL: cfg.Live.RelayURL,
		Target:   cfg.Live.RedeemTarget,
	})
	if err != nil {
		return err
	}
	deps.Redeemer = redeemer
	return nil
}

func retrainChannel(cfg config.RetrainConfig, closers *[]io.Closer) (ports.RetrainChannel, error) {
	if cfg.Backend == "redis" {
		ch, err := retrain.NewRedisChannel(retrain.RedisConfig{
			URL:         cfg.RedisURL,
			Stream:      cfg.Stream,
			ArtifactKey: cfg.ArtifactKey,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, ch)
		return ch, nil
	}
	return retrain.NewFileChannel(cfg.SpoolDir)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
