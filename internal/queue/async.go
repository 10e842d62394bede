package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by AsyncPublisher.Publish when the buffer is full.
var ErrQueueFull = errors.New("event buffer full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("publisher closed")

// Sender is anything that can deliver one event synchronously.
type Sender interface {
	Publish(ctx context.Context, ev Event) error
}

// AsyncPublisher buffers events and hands them to a Sender from a single
// background goroutine so request handlers never wait on the broker.
type AsyncPublisher struct {
	next    Sender
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}
}

// NewAsyncPublisher starts the delivery goroutine. buffer bounds the number
// of pending events.
func NewAsyncPublisher(next Sender, buffer int, log *slog.Logger) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	p := &AsyncPublisher{
		next:    next,
		log:     log,
		timeout: 5 * time.Second,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues ev. It never blocks.
func (p *AsyncPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for ev := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.next.Publish(ctx, ev); err != nil {
			p.log.Warn("event delivery failed", slog.String("event", ev.Type), slog.Any("error", err))
		}
		cancel()
	}
}

// Close stops accepting events and waits until the buffer is drained or
// ctx is done.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
