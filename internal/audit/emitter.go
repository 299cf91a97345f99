package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var auditEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "audit_events_dropped_total",
	Help: "Audit events dropped because the emitter buffer was full",
})

// Emitter receives one event per state transition. Emit must never block the
// caller and must never fail the transition.
type Emitter interface {
	Emit(event Event)
}

// Sink delivers events somewhere: a structured log, a webhook, a queue.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// AsyncEmitter buffers events on a channel and fans them out to sinks from a
// background goroutine. When the buffer is full the event is dropped and
// counted rather than blocking the request path.
type AsyncEmitter struct {
	logger zerolog.Logger
	sinks  []Sink
	ch     chan Event
	done   chan struct{}
}

// NewAsyncEmitter starts the drain goroutine. bufferSize <= 0 defaults
// to 1024.
func NewAsyncEmitter(logger zerolog.Logger, bufferSize int, sinks ...Sink) *AsyncEmitter {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	e := &AsyncEmitter{
		logger: logger,
		sinks:  sinks,
		ch:     make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	go e.drain()
	return e
}

func (e *AsyncEmitter) Emit(event Event) {
	select {
	case e.ch <- event:
	default:
		auditEventsDropped.Inc()
		e.logger.Warn().Str("kind", string(event.Kind)).Msg("audit buffer full, event dropped")
	}
}

func (e *AsyncEmitter) drain() {
	defer close(e.done)
	for event := range e.ch {
		for _, sink := range e.sinks {
			// Background context: the originating request may be gone.
			if err := sink.Write(context.Background(), event); err != nil {
				e.logger.Error().Err(err).Str("kind", string(event.Kind)).Msg("audit sink write failed")
			}
		}
	}
}

// Close stops accepting events and waits for buffered ones to drain.
func (e *AsyncEmitter) Close() {
	close(e.ch)
	<-e.done
}
