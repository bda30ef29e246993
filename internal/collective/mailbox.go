package collective

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dreamware/lloyd/internal/cluster"
)

var (
	// ErrMismatch reports a message that does not fit the collective the
	// receiver is executing: a different kind, a duplicate, or a payload
	// of the wrong shape. It means the ranks have diverged.
	ErrMismatch = errors.New("collective mismatch")

	// ErrClosed is returned once a mailbox has been closed.
	ErrClosed = errors.New("mailbox closed")
)

type slotKey struct {
	seq  uint64
	from int
}

// Mailbox buffers incoming envelopes of one job until the local rank
// awaits them. Messages may arrive in any order; each (seq, from) pair
// holds at most one message.
type Mailbox struct {
	mu     sync.Mutex
	slots  map[slotKey]chan cluster.Envelope
	closed chan struct{}
	reason error
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		slots:  make(map[slotKey]chan cluster.Envelope),
		closed: make(chan struct{}),
	}
}

func (m *Mailbox) slot(key slotKey) chan cluster.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.slots[key]
	if !ok {
		ch = make(chan cluster.Envelope, 1)
		m.slots[key] = ch
	}
	return ch
}

func (m *Mailbox) drop(key slotKey) {
	m.mu.Lock()
	delete(m.slots, key)
	m.mu.Unlock()
}

// release drops the slot of an abandoned Await unless a message has
// already landed in it.
func (m *Mailbox) release(key slotKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.slots[key]; ok && len(ch) == 0 {
		delete(m.slots, key)
	}
}

// Deliver stores env for a later Await. A second message for the same
// (seq, from) is rejected with ErrMismatch.
func (m *Mailbox) Deliver(env cluster.Envelope) error {
	select {
	case <-m.closed:
		return m.err()
	default:
	}
	select {
	case m.slot(slotKey{seq: env.Seq, from: env.From}) <- env:
		return nil
	default:
		return fmt.Errorf("%w: duplicate %s message seq=%d from rank %d", ErrMismatch, env.Kind, env.Seq, env.From)
	}
}

// Await blocks until the message (seq, from) arrives, ctx is done, or the
// mailbox is closed. A message of a different kind yields ErrMismatch.
func (m *Mailbox) Await(ctx context.Context, seq uint64, from int, kind cluster.Kind) (cluster.Envelope, error) {
	key := slotKey{seq: seq, from: from}
	select {
	case env := <-m.slot(key):
		m.drop(key)
		if env.Kind != kind {
			return cluster.Envelope{}, fmt.Errorf("%w: seq=%d from rank %d: got %s, expected %s", ErrMismatch, seq, from, env.Kind, kind)
		}
		return env, nil
	case <-ctx.Done():
		m.release(key)
		return cluster.Envelope{}, ctx.Err()
	case <-m.closed:
		return cluster.Envelope{}, m.err()
	}
}

// Close wakes every pending Await with ErrClosed, wrapping reason when
// given. Closing twice is a no-op.
func (m *Mailbox) Close(reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.closed:
		return
	default:
	}
	m.reason = reason
	close(m.closed)
}

// Pending returns the number of buffered or awaited slots.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func (m *Mailbox) err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reason != nil {
		return fmt.Errorf("%w: %w", ErrClosed, m.reason)
	}
	return ErrClosed
}
