package predictor

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updown/internal/domain"
)

func TestUpProbability(t *testing.T) {
	p, err := upProbability([]float32{0.25, 0.75})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, p, 1e-6)

	for name, out := range map[string][]float32{
		"short":    {0.5},
		"negative": {1.2, -0.2},
		"above 1":  {-0.5, 1.5},
		"nan":      {0, float32(math.NaN())},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := upProbability(out)
			assert.Error(t, err)
		})
	}
}

func TestOpen_MissingArtifact(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nudge.onnx"), Options{})
	assert.Error(t, err)

	_, err = Loader(Options{})(filepath.Join(t.TempDir(), "nudge.onnx"))
	assert.Error(t, err)
}

func TestClosedPredictor(t *testing.T) {
	m := &ONNX{}
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Predict(domain.FeatureSnapshot{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{InputName: "features"}.withDefaults()
	assert.Equal(t, "features", o.InputName)
	assert.Equal(t, "probabilities", o.OutputName)
	assert.NotEmpty(t, o.LibraryPath)
}
