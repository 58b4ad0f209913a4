package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// sinkQueueSize bounds how many batches may wait for the sinks before new
// ones are dropped.
const sinkQueueSize = 256

// Sink forwards events out of process. Unlike Publisher it reports failures,
// which Fanout logs and swallows.
type Sink interface {
	Name() string
	Send(ctx context.Context, evs ...Event) error
	Close() error
}

type batch struct {
	ctx context.Context
	evs []Event
}

// Fanout hands every event to the in-process hub on the caller's goroutine
// and queues it for the sinks, which a single worker drains in order.
type Fanout struct {
	local Publisher
	sinks []Sink

	mu     sync.RWMutex
	closed bool
	queue  chan batch
	done   chan struct{}
}

func NewFanout(local Publisher, sinks ...Sink) *Fanout {
	f := &Fanout{local: local, sinks: sinks}
	if len(sinks) > 0 {
		f.queue = make(chan batch, sinkQueueSize)
		f.done = make(chan struct{})
		go f.drain()
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, evs ...Event) {
	if len(evs) == 0 {
		return
	}
	if f.local != nil {
		f.local.Publish(ctx, evs...)
	}
	if f.queue == nil {
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		log.Warn().Int("events", len(evs)).Msg("events: fanout closed, external delivery skipped")
		return
	}
	// The request may finish before the sinks run.
	select {
	case f.queue <- batch{ctx: context.WithoutCancel(ctx), evs: evs}:
	default:
		log.Error().Int("events", len(evs)).Msg("events: sink queue full, external delivery dropped")
	}
}

func (f *Fanout) drain() {
	defer close(f.done)
	for b := range f.queue {
		for _, s := range f.sinks {
			if err := s.Send(b.ctx, b.evs...); err != nil {
				log.Error().Err(err).Str("sink", s.Name()).Int("events", len(b.evs)).Msg("events: sink delivery failed")
			}
		}
	}
}

// Close delivers what is already queued, then closes every sink, logging
// failures. Later publishes reach only the local publisher.
func (f *Fanout) Close() {
	if f.queue != nil {
		f.mu.Lock()
		if !f.closed {
			f.closed = true
			close(f.queue)
		}
		f.mu.Unlock()
		<-f.done
	}

	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Str("sink", s.Name()).Msg("events: failed to close sink")
		}
	}
}
