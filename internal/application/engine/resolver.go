package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// Resolver descubre la ventana de 15 minutos activa.
// El id de ventana se calcula localmente; el servicio de mercados solo
// confirma que existe y acepta órdenes.
type Resolver struct {
	source ports.WindowSource
	now    func() time.Time
}

// NewResolver crea un Resolver. Si now es nil usa time.Now.
func NewResolver(source ports.WindowSource, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{source: source, now: now}
}

// Resolve devuelve la ventana actual, o nil si no hay mercado operable.
// No reintenta: el caller controla la cadencia.
func (r *Resolver) Resolve(ctx context.Context) (*domain.MarketWindow, error) {
	start := domain.WindowStart(r.now())
	slug := domain.WindowSlug(start)

	w, err := r.source.FetchWindow(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("resolver.Resolve %s: %w", slug, err)
	}
	if w == nil {
		return nil, nil
	}

	// Los límites se derivan del reloj, no de lo que anuncie el listado.
	w.StartTime = start
	w.EndTime = start.Add(domain.WindowDuration)
	if w.Slug == "" {
		w.Slug = slug
	}
	return w, nil
}

// StrikeCapture obtiene el open de la vela de inicio con reintentos acotados.
type StrikeCapture struct {
	Oracle   ports.PriceOracle
	Attempts int
	Wait     time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Capture fija el strike de w. Si la vela no aparece tras Attempts intentos
// devuelve un error ErrDataUnavailable y la ventana debe saltarse.
func (s StrikeCapture) Capture(ctx context.Context, w *domain.MarketWindow) (float64, error) {
	if strike, ok := w.Strike(); ok {
		return strike, nil
	}

	attempts := s.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		price, err := s.Oracle.CandleOpen(ctx, w.StartTime)
		if err == nil && price > 0 {
			if err := w.SetStrike(price); err != nil {
				return 0, err
			}
			return price, nil
		}
		if err == nil {
			err = errors.New("empty candle")
		}
		lastErr = err
		slog.Info("waiting for strike candle", "window", w.Slug, "attempt", i+1, "err", err)

		if i < attempts-1 {
			if err := sleep(ctx, s.Wait); err != nil {
				return 0, err
			}
		}
	}
	return 0, domain.NewOpError(domain.ErrDataUnavailable, "strike "+w.Slug, lastErr)
}

// sleepCtx duerme d o hasta que ctx se cancele.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
