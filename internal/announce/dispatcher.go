package announce

import (
	"context"
	"sync/atomic"

	"github.com/capable-vision/percept/internal/monitoring"
)

// Sink is the narration output contract. Implementations wrap whatever
// actually renders speech; the pipeline only ever enqueues requests.
type Sink interface {
	Announce(text string, level Level, interrupt bool)
}

// Dispatcher routes narration requests from any producer goroutine to the
// single goroutine that owns the Sink. Producers call Enqueue, which never
// blocks; Run drains the queue on the owning goroutine. This is the
// message-passing boundary that keeps audio output single-writer.
type Dispatcher struct {
	ch      chan Utterance
	dropped atomic.Int64
}

// NewDispatcher creates a dispatcher with the given queue depth.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 16
	}
	return &Dispatcher{ch: make(chan Utterance, buffer)}
}

// Enqueue submits an utterance without blocking. When the queue is full a
// non-interrupting utterance is dropped and counted; an interrupting one
// evicts the oldest pending request to make room.
func (d *Dispatcher) Enqueue(u Utterance) bool {
	select {
	case d.ch <- u:
		return true
	default:
	}

	if u.Interrupt {
		select {
		case old := <-d.ch:
			d.dropped.Add(1)
			monitoring.Debugf("announce: evicted %q for interrupt", old.Text)
		default:
		}
		select {
		case d.ch <- u:
			return true
		default:
		}
	}

	d.dropped.Add(1)
	monitoring.Debugf("announce: queue full, dropped %q", u.Text)
	return false
}

// Dropped returns the number of utterances discarded so far.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued utterances to the sink until the context is
// canceled. The calling goroutine owns the sink for the duration.
func (d *Dispatcher) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-d.ch:
			sink.Announce(u.Text, u.Level, u.Interrupt)
		}
	}
}
