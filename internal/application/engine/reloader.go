package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// TunablesStore publica los tunables vigentes. Los lectores ven siempre un
// valor completo: el reloader reemplaza, nunca muta.
type TunablesStore struct {
	cur atomic.Pointer[domain.Tunables]
}

// NewTunablesStore crea el store con t como valor inicial.
func NewTunablesStore(t domain.Tunables) *TunablesStore {
	s := &TunablesStore{}
	s.Store(t)
	return s
}

// Load devuelve una copia de los tunables vigentes.
func (s *TunablesStore) Load() domain.Tunables {
	return *s.cur.Load()
}

// Store publica t.
func (s *TunablesStore) Store(t domain.Tunables) {
	s.cur.Store(&t)
}

// TunablesLoader lee y valida el documento de tunables.
type TunablesLoader func(path string) (domain.Tunables, error)

// Reloader vigila el mtime del documento de tunables y recarga al cambiar.
type Reloader struct {
	path     string
	interval time.Duration
	load     TunablesLoader
	store    *TunablesStore
	metrics  ports.Metrics

	stat      func(path string) (time.Time, bool, error)
	lastMod   time.Time
	baselined bool
}

// NewReloader crea el reloader.
func NewReloader(path string, interval time.Duration, load TunablesLoader, store *TunablesStore, metrics ports.Metrics) *Reloader {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Reloader{
		path:     path,
		interval: interval,
		load:     load,
		store:    store,
		metrics:  metrics,
		stat:     statMod,
	}
}

func statMod(path string) (time.Time, bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return info.ModTime(), true, nil
}

// Run toma el baseline y sondea cada interval hasta que ctx se cancele.
func (r *Reloader) Run(ctx context.Context) error {
	if _, err := r.Poll(); err != nil {
		slog.Warn("config reloader: baseline", "path", r.path, "err", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Poll(); err != nil {
				slog.Error("config reload failed, keeping previous tunables", "path", r.path, "err", err)
			}
		}
	}
}

// Poll compara el mtime con la última observación. La primera llamada solo
// fija el baseline. Devuelve true si publicó tunables nuevos.
func (r *Reloader) Poll() (bool, error) {
	mod, exists, err := r.stat(r.path)
	if err != nil {
		return false, domain.NewOpError(domain.ErrConfig, "reloader.stat", err)
	}

	if !r.baselined {
		r.baselined = true
		r.lastMod = mod
		return false, nil
	}
	if !exists || mod.Equal(r.lastMod) {
		return false, nil
	}
	r.lastMod = mod

	t, err := r.load(r.path)
	if err != nil {
		r.metrics.ConfigReload(false)
		return false, domain.NewOpError(domain.ErrConfig, "reloader.load", err)
	}

	prev := r.store.Load()
	r.store.Store(t)
	r.metrics.ConfigReload(true)
	slog.Info("tunables reloaded",
		"path", r.path,
		"execution_enabled", t.ExecutionEnabled,
		"min_edge", t.MinEdge,
		"stop_loss_pct", t.StopLossPct,
		"execution_was", prev.ExecutionEnabled,
	)
	return true, nil
}
