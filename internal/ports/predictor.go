package ports

import (
	"context"

	"github.com/alejandrodnm/updown/internal/domain"
)

// Predictor es el artefacto externo de probability nudge.
// Una implementación nula siempre devuelve error y el engine usa solo el modelo.
type Predictor interface {
	Predict(features domain.FeatureSnapshot) (float64, error)
	Close() error
}

// PredictorLoader carga un Predictor desde la ruta de un artefacto.
type PredictorLoader func(path string) (Predictor, error)

// RetrainChannel es el canal unidireccional hacia el pipeline de entrenamiento.
type RetrainChannel interface {
	// RequestRetrain pide un reentrenamiento. No espera a que termine.
	RequestRetrain(ctx context.Context, reason string) error

	// LatestArtifact devuelve la ruta y versión del último artefacto publicado.
	// ok=false si todavía no hay ninguno.
	LatestArtifact(ctx context.Context) (path, version string, ok bool, err error)
}
