package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFile struct {
	mod    time.Time
	exists bool
}

func newTestReloader(file *fakeFile, load TunablesLoader) (*Reloader, *TunablesStore) {
	store := NewTunablesStore(domain.DefaultTunables())
	r := NewReloader("tunables.yaml", time.Minute, load, store, nil)
	r.stat = func(string) (time.Time, bool, error) { return file.mod, file.exists, nil }
	return r, store
}

func TestReloader_BaselineNeverReloads(t *testing.T) {
	file := &fakeFile{mod: time.Unix(1000, 0), exists: true}
	loads := 0
	r, _ := newTestReloader(file, func(string) (domain.Tunables, error) {
		loads++
		return domain.DefaultTunables(), nil
	})

	reloaded, err := r.Poll()
	require.NoError(t, err)
	assert.False(t, reloaded)

	reloaded, err = r.Poll()
	require.NoError(t, err)
	assert.False(t, reloaded, "unchanged mtime")
	assert.Zero(t, loads)
}

func TestReloader_SwapsOnChange(t *testing.T) {
	file := &fakeFile{mod: time.Unix(1000, 0), exists: true}
	next := domain.DefaultTunables()
	next.ExecutionEnabled = true
	next.MinEdge = 0.12

	r, store := newTestReloader(file, func(string) (domain.Tunables, error) { return next, nil })
	_, _ = r.Poll()

	file.mod = time.Unix(2000, 0)
	reloaded, err := r.Poll()
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, next, store.Load())
}

func TestReloader_BadDocumentKeepsPrevious(t *testing.T) {
	file := &fakeFile{mod: time.Unix(1000, 0), exists: true}
	r, store := newTestReloader(file, func(string) (domain.Tunables, error) {
		return domain.Tunables{}, errors.New("yaml: bad indent")
	})
	_, _ = r.Poll()

	file.mod = time.Unix(2000, 0)
	reloaded, err := r.Poll()
	assert.False(t, reloaded)
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Equal(t, domain.DefaultTunables(), store.Load())

	// Mismo mtime: no reintenta en cada poll.
	_, err = r.Poll()
	assert.NoError(t, err)
}

func TestReloader_StatsRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_edge: 0.1\n"), 0o644))

	mod, exists, err := statMod(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.False(t, mod.IsZero())

	_, exists, err = statMod(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.False(t, exists)
}
