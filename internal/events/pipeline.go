package events

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
)

// ErrSealed is returned by Push after Seal.
var ErrSealed = errors.New("event pipeline sealed")

// Pipeline is an unbounded many-producer, single-consumer queue in front of
// a Sink. Push never blocks on I/O: it appends under a mutex and signals the
// drain goroutine, which is the only caller of the Sink.
type Pipeline struct {
	sink    Sink
	gate    Gate
	onError func(error)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	sealed bool

	accepting atomic.Bool
	written   atomic.Uint64
	dropped   atomic.Uint64

	done chan struct{}
	err  error
}

// NewPipeline starts the drain goroutine. gate may be nil, in which case
// only SetAccepting controls acceptance. onError receives the first sink
// failure, after which the drain goroutine exits.
func NewPipeline(sink Sink, gate Gate, onError func(error)) *Pipeline {
	p := &Pipeline{
		sink:    sink,
		gate:    gate,
		onError: onError,
		done:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.drain()
	return p
}

// SetAccepting opens or closes the acceptance gate.
func (p *Pipeline) SetAccepting(v bool) {
	p.accepting.Store(v)
}

// Accepting reports whether Push currently enqueues events.
func (p *Pipeline) Accepting() bool {
	if !p.accepting.Load() {
		return false
	}
	return p.gate == nil || p.gate.Running()
}

// Push enqueues e. It returns false without error when the gate is closed,
// and ErrSealed once the producer side is complete.
func (p *Pipeline) Push(e Event) (bool, error) {
	if !p.Accepting() {
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return false, ErrSealed
	}
	p.queue = append(p.queue, e)
	p.cond.Signal()
	return true, nil
}

// Seal marks the producer side complete. Already queued events are still
// drained. Sealing twice is harmless.
func (p *Pipeline) Seal() {
	p.mu.Lock()
	p.sealed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Wait blocks until the drain goroutine has exited and returns its error.
func (p *Pipeline) Wait() error {
	<-p.done
	return p.err
}

// Close seals the pipeline and waits for the queue to drain. Streams behind
// the Sink may be closed once Close returns.
func (p *Pipeline) Close() error {
	p.Seal()
	return p.Wait()
}

// Written returns the number of events persisted so far.
func (p *Pipeline) Written() uint64 {
	return p.written.Load()
}

// Dropped returns the number of queued events lost after a sink failure.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Pipeline) next() ([]Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.sealed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	batch := p.queue
	p.queue = nil
	return batch, true
}

func (p *Pipeline) drain() {
	log := logger.WithComponent("events")
	defer close(p.done)

	for {
		batch, ok := p.next()
		if !ok {
			log.Debug().Uint64("written", p.written.Load()).Msg("Event pipeline drained")
			return
		}

		for i, e := range batch {
			if err := p.write(e); err != nil {
				p.fail(err, uint64(len(batch)-i-1))
				return
			}
			p.written.Add(1)
		}
	}
}

func (p *Pipeline) write(e Event) error {
	switch ev := e.(type) {
	case CursorEvent:
		return p.sink.WriteCursor(ev)
	case CursorDataEvent:
		return p.sink.WriteCursorData(ev)
	case KeyEvent:
		return p.sink.WriteKey(ev)
	default:
		return fmt.Errorf("unsupported event type %T", e)
	}
}

// fail records err, refuses further pushes and reports the events lost.
func (p *Pipeline) fail(err error, pending uint64) {
	p.mu.Lock()
	p.sealed = true
	pending += uint64(len(p.queue))
	p.queue = nil
	p.mu.Unlock()

	p.err = fmt.Errorf("failed to write event: %w", err)
	p.dropped.Store(pending)

	logger.WithComponent("events").Error().
		Err(err).
		Uint64("written", p.written.Load()).
		Uint64("dropped", pending).
		Msg("Event drain stopped")

	if p.onError != nil {
		p.onError(p.err)
	}
}
