// Package comm is the point-to-point message layer between participants.
// Every participant has one inbox; messages from one sender to one receiver
// arrive in the order they were sent.
package comm

import (
	"context"
	"errors"
	"fmt"

	mandelmpi "example.org/parabench/mandelmpi"
)

type Tag int

const (
	TagWork    Tag = 27 // coordinator -> worker: compute Item
	TagDone    Tag = 28 // worker -> coordinator: Item persisted
	TagFinish  Tag = 29 // coordinator -> worker: Item is the sentinel
	TagBarrier Tag = 30 // participant -> rank 0: entered barrier
	TagRelease Tag = 31 // rank 0 -> participant: leave barrier
)

func (t Tag) String() string {
	switch t {
	case TagWork:
		return "work"
	case TagDone:
		return "done"
	case TagFinish:
		return "finish"
	case TagBarrier:
		return "barrier"
	case TagRelease:
		return "release"
	}
	return fmt.Sprintf("Tag(%d)", int(t))
}

type Message struct {
	Tag    Tag
	Source int
	Item   mandelmpi.WorkItem
}

var (
	ErrClosed   = errors.New("comm: closed")
	ErrProtocol = errors.New("comm: protocol violation")
	ErrPeer     = errors.New("comm: no such peer")
)

// Comm connects one participant (Rank) to a fixed group of Size participants.
type Comm interface {
	Rank() int
	Size() int
	// Send delivers msg to the inbox of participant to. Source is filled in.
	Send(ctx context.Context, to int, msg Message) error
	// Recv blocks until the next message of this participant's inbox arrives.
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Expect receives one message and fails unless it carries tag.
func Expect(ctx context.Context, c Comm, tag Tag) (Message, error) {
	msg, err := c.Recv(ctx)
	if err != nil {
		return Message{}, err
	}
	if msg.Tag != tag {
		return msg, fmt.Errorf("%w: rank %d expected %v, got %v from %d",
			ErrProtocol, c.Rank(), tag, msg.Tag, msg.Source)
	}
	return msg, nil
}

// Barrier returns once every participant of the group has entered it.
// Rank 0 gathers one TagBarrier from each other rank, then releases them.
func Barrier(ctx context.Context, c Comm) error {
	if c.Size() < 2 {
		return nil
	}
	if c.Rank() != 0 {
		if err := c.Send(ctx, 0, Message{Tag: TagBarrier}); err != nil {
			return err
		}
		msg, err := Expect(ctx, c, TagRelease)
		if err != nil {
			return err
		}
		if msg.Source != 0 {
			return fmt.Errorf("%w: release from rank %d", ErrProtocol, msg.Source)
		}
		return nil
	}

	entered := make([]bool, c.Size())
	for n := 1; n < c.Size(); n++ {
		msg, err := Expect(ctx, c, TagBarrier)
		if err != nil {
			return err
		}
		if msg.Source <= 0 || msg.Source >= c.Size() || entered[msg.Source] {
			return fmt.Errorf("%w: unexpected barrier entry from rank %d", ErrProtocol, msg.Source)
		}
		entered[msg.Source] = true
	}
	for rank := 1; rank < c.Size(); rank++ {
		if err := c.Send(ctx, rank, Message{Tag: TagRelease}); err != nil {
			return err
		}
	}
	return nil
}
