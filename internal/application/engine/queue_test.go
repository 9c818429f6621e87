package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id int) domain.TradeEvent {
	return domain.TradeEvent{PositionID: fmt.Sprintf("p%03d", id), Type: "ENTRY_PAPER", Mode: domain.ModePaper}
}

func TestQueue_PreservesEnqueueOrder(t *testing.T) {
	w := &memWriter{}
	q := NewQueue(w, nil)
	q.Start()

	for i := 0; i < 200; i++ {
		require.NoError(t, q.Enqueue(event(i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	got := w.Events()
	require.Len(t, got, 200)
	for i, ev := range got {
		assert.Equal(t, event(i).PositionID, ev.PositionID)
	}
}

func TestQueue_CloseDrainsEverythingBeforeSentinel(t *testing.T) {
	w := &memWriter{}
	q := NewQueue(w, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(event(i)))
	}

	// Sin Start previo: Close arranca el drain y espera.
	require.NoError(t, q.Close(context.Background()))
	assert.Len(t, w.Events(), 5)
	assert.ErrorIs(t, q.Enqueue(event(9)), ErrQueueClosed)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	w := &memWriter{}
	q := NewQueue(w, nil)
	q.Start()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = q.Enqueue(event(p*100 + i))
			}
		}(p)
	}
	wg.Wait()
	require.NoError(t, q.Close(context.Background()))
	assert.Len(t, w.Events(), 200)
}

func TestQueue_PrimaryFailureDoesNotStopMirrors(t *testing.T) {
	primary := &memWriter{err: errBoom}
	mirror := &memWriter{}
	q := NewQueue(primary, nil, mirror)
	q.Start()

	require.NoError(t, q.Enqueue(event(1)))
	require.NoError(t, q.Enqueue(event(2)))
	require.NoError(t, q.Close(context.Background()))

	assert.Empty(t, primary.Events())
	assert.Len(t, mirror.Events(), 2)
}
