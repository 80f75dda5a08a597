// Package memory provides an in-process transport.
//
// It is the fallback transport when no connections are configured and the
// transport behind memory:// DSNs. Envelopes are queued without bound and
// received in send order.
package memory

import (
	"context"
	"sync"

	"github.com/bjaus/commandbus/remote"
)

// Transport is an unbounded FIFO queue of envelopes.
type Transport struct {
	mu     sync.Mutex
	queue  []remote.Envelope
	ready  chan struct{}
	closed bool
}

// New creates an empty in-memory transport.
func New() *Transport {
	return &Transport{ready: make(chan struct{})}
}

// Send enqueues the envelope. It never blocks.
func (t *Transport) Send(ctx context.Context, env remote.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return remote.ErrClosed
	}
	t.queue = append(t.queue, env)

	// Wake every waiting receiver.
	close(t.ready)
	t.ready = make(chan struct{})
	return nil
}

// Receive dequeues the oldest envelope, waiting until one is sent or ctx is
// done. Envelopes still queued at Close can be drained.
func (t *Transport) Receive(ctx context.Context) (remote.Envelope, error) {
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			env := t.queue[0]
			t.queue[0] = remote.Envelope{}
			t.queue = t.queue[1:]
			t.mu.Unlock()
			return env, nil
		}
		if t.closed {
			t.mu.Unlock()
			return remote.Envelope{}, remote.ErrClosed
		}
		ready := t.ready
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return remote.Envelope{}, ctx.Err()
		case <-ready:
		}
	}
}

// Len returns the number of queued envelopes.
func (t *Transport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close stops accepting envelopes and releases waiting receivers.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.closed = true
		close(t.ready)
	}
	return nil
}

var _ remote.Transport = (*Transport)(nil)
