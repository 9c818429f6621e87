package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/updown/internal/ports"
)

// RetrainScheduler pide reentrenamientos periódicos al pipeline externo y
// carga los artefactos nuevos cuando aparecen. Nunca llama al código de
// entrenamiento: solo intercambia mensajes por el canal.
type RetrainScheduler struct {
	channel      ports.RetrainChannel
	loader       ports.PredictorLoader
	slot         *PredictorSlot
	interval     time.Duration
	pollInterval time.Duration

	version string
}

// NewRetrainScheduler crea el scheduler.
func NewRetrainScheduler(channel ports.RetrainChannel, loader ports.PredictorLoader, slot *PredictorSlot, interval, pollInterval time.Duration) *RetrainScheduler {
	return &RetrainScheduler{
		channel:      channel,
		loader:       loader,
		slot:         slot,
		interval:     interval,
		pollInterval: pollInterval,
	}
}

// Run carga el artefacto existente, si hay, y luego alterna pedidos y sondeos.
func (r *RetrainScheduler) Run(ctx context.Context) error {
	if _, err := r.CheckArtifact(ctx); err != nil {
		slog.Warn("retrain: initial artifact check", "err", err)
	}

	request := time.NewTicker(r.interval)
	defer request.Stop()
	poll := time.NewTicker(r.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-request.C:
			if err := r.channel.RequestRetrain(ctx, "scheduled"); err != nil {
				slog.Warn("retrain: request failed", "err", err)
			} else {
				slog.Info("retrain requested")
			}
		case <-poll.C:
			if _, err := r.CheckArtifact(ctx); err != nil {
				slog.Warn("retrain: artifact check", "err", err)
			}
		}
	}
}

// CheckArtifact carga el último artefacto si su versión cambió.
// Devuelve true si publicó un predictor nuevo.
func (r *RetrainScheduler) CheckArtifact(ctx context.Context) (bool, error) {
	path, version, ok, err := r.channel.LatestArtifact(ctx)
	if err != nil {
		return false, fmt.Errorf("retrain.CheckArtifact: %w", err)
	}
	if !ok || version == r.version {
		return false, nil
	}

	p, err := r.loader(path)
	if err != nil {
		return false, fmt.Errorf("retrain.CheckArtifact load %s: %w", path, err)
	}
	old := r.slot.Swap(p)
	if old != nil {
		if err := old.Close(); err != nil {
			slog.Debug("retrain: close previous predictor", "err", err)
		}
	}
	r.version = version
	slog.Info("predictor loaded", "path", path, "version", version)
	return true, nil
}
