package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/updown/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetrainChannel struct {
	requests []string
	path     string
	version  string
	ok       bool
	err      error
}

func (c *fakeRetrainChannel) RequestRetrain(_ context.Context, reason string) error {
	c.requests = append(c.requests, reason)
	return nil
}

func (c *fakeRetrainChannel) LatestArtifact(context.Context) (string, string, bool, error) {
	return c.path, c.version, c.ok, c.err
}

func TestRetrainScheduler_LoadsNewVersionOnce(t *testing.T) {
	ch := &fakeRetrainChannel{path: "/models/v1.onnx", version: "v1", ok: true}
	loaded := 0
	first := &fakePredictor{p: 0.4}
	loader := func(path string) (ports.Predictor, error) {
		loaded++
		assert.Equal(t, "/models/v1.onnx", path)
		return first, nil
	}
	slot := NewPredictorSlot(nil)
	r := NewRetrainScheduler(ch, loader, slot, time.Hour, time.Minute)

	swapped, err := r.CheckArtifact(context.Background())
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.True(t, slot.Active())

	swapped, err = r.CheckArtifact(context.Background())
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, 1, loaded)
}

func TestRetrainScheduler_SwapClosesPrevious(t *testing.T) {
	old := &fakePredictor{p: 0.4}
	slot := NewPredictorSlot(old)
	ch := &fakeRetrainChannel{path: "/models/v2.onnx", version: "v2", ok: true}
	r := NewRetrainScheduler(ch, func(string) (ports.Predictor, error) { return &fakePredictor{p: 0.6}, nil }, slot, time.Hour, time.Minute)

	_, err := r.CheckArtifact(context.Background())
	require.NoError(t, err)
	assert.True(t, old.closed.Load())
}

func TestRetrainScheduler_NoArtifactKeepsNull(t *testing.T) {
	slot := NewPredictorSlot(nil)
	r := NewRetrainScheduler(&fakeRetrainChannel{}, nil, slot, time.Hour, time.Minute)

	swapped, err := r.CheckArtifact(context.Background())
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.False(t, slot.Active())
}

func TestRetrainScheduler_LoadFailureKeepsCurrent(t *testing.T) {
	current := &fakePredictor{p: 0.4}
	slot := NewPredictorSlot(current)
	ch := &fakeRetrainChannel{path: "/models/bad.onnx", version: "v3", ok: true}
	r := NewRetrainScheduler(ch, func(string) (ports.Predictor, error) { return nil, errBoom }, slot, time.Hour, time.Minute)

	_, err := r.CheckArtifact(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Same(t, current, slot.Load())
	assert.False(t, current.closed.Load())
}
