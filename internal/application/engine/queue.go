package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// ErrQueueClosed se devuelve al encolar después de Close.
var ErrQueueClosed = errors.New("persistence queue closed")

type queueItem struct {
	ev       domain.TradeEvent
	sentinel bool
}

// Queue es la cola de persistencia: muchos productores, un único consumidor.
// Enqueue nunca bloquea; el drain escribe en orden de llegada.
type Queue struct {
	primary ports.EventWriter
	mirrors []ports.EventWriter
	metrics ports.Metrics

	mu     sync.Mutex
	items  []queueItem
	closed bool
	notify chan struct{}
	done   chan struct{}
	start  sync.Once
}

// NewQueue crea la cola. primary es el log durable; los mirrors son best-effort.
func NewQueue(primary ports.EventWriter, metrics ports.Metrics, mirrors ...ports.EventWriter) *Queue {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Queue{
		primary: primary,
		mirrors: mirrors,
		metrics: metrics,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start lanza el drain en background. Llamadas repetidas no hacen nada.
func (q *Queue) Start() {
	q.start.Do(func() { go q.drain() })
}

// Enqueue añade un evento sin bloquear.
func (q *Queue) Enqueue(ev domain.TradeEvent) error {
	return q.push(queueItem{ev: ev})
}

func (q *Queue) push(it queueItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, it)
	if it.sentinel {
		q.closed = true
	}
	depth := len(q.items)
	q.mu.Unlock()

	q.metrics.QueueDepth(depth)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len devuelve los eventos pendientes de escribir.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close encola el sentinel y espera a que el drain escriba todo lo anterior
// o a que ctx expire.
func (q *Queue) Close(ctx context.Context) error {
	if err := q.push(queueItem{sentinel: true}); err != nil && !errors.Is(err, ErrQueueClosed) {
		return err
	}
	q.Start()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) drain() {
	defer close(q.done)
	ctx := context.Background()

	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		for _, it := range batch {
			if it.sentinel {
				q.metrics.QueueDepth(0)
				return
			}
			q.write(ctx, it.ev)
		}
		q.metrics.QueueDepth(q.Len())

		if len(batch) == 0 {
			<-q.notify
		}
	}
}

func (q *Queue) write(ctx context.Context, ev domain.TradeEvent) {
	if err := q.primary.Write(ctx, ev); err != nil {
		q.metrics.EventWritten(false)
		slog.Error("trade log write failed", "type", ev.Type, "position", ev.PositionID, "err", err)
	} else {
		q.metrics.EventWritten(true)
	}
	for _, m := range q.mirrors {
		if err := m.Write(ctx, ev); err != nil {
			slog.Warn("trade event mirror failed", "type", ev.Type, "err", err)
		}
	}
}
