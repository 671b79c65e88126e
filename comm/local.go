package comm

import (
	"context"
	"fmt"
	"sync"
)

type local struct {
	rank    int
	inboxes []chan Message
	done    chan struct{}
	once    sync.Once
}

// NewLocal connects size in-process participants through buffered
// channels. The returned slice is indexed by rank.
func NewLocal(size int) []Comm {
	inboxes := make([]chan Message, size)
	for i := range inboxes {
		// At most one outstanding completion plus one barrier message per peer.
		inboxes[i] = make(chan Message, 2*size+2)
	}
	comms := make([]Comm, size)
	for rank := range comms {
		comms[rank] = &local{rank: rank, inboxes: inboxes, done: make(chan struct{})}
	}
	return comms
}

func (l *local) Rank() int { return l.rank }

func (l *local) Size() int { return len(l.inboxes) }

func (l *local) Send(ctx context.Context, to int, msg Message) error {
	if to < 0 || to >= len(l.inboxes) {
		return fmt.Errorf("%w: %d", ErrPeer, to)
	}
	msg.Source = l.rank
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.inboxes[to] <- msg:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *local) Recv(ctx context.Context) (Message, error) {
	select {
	case <-l.done:
		return Message{}, ErrClosed
	default:
	}
	select {
	case msg := <-l.inboxes[l.rank]:
		return msg, nil
	case <-l.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (l *local) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
