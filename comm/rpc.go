package comm

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	mandelmpi "example.org/parabench/mandelmpi"
)

const dialBackoff = 100 * time.Millisecond

// Mailbox is the RPC service every participant exposes to its peers.
type Mailbox struct {
	inbox chan Message
	done  chan struct{}
}

func (m *Mailbox) Deliver(msg Message, reply *struct{}) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// RPC is a Comm between processes. Each participant serves a Mailbox over
// HTTP and dials its peers lazily. Sends are synchronous calls, which keeps
// messages between two peers in order.
type RPC struct {
	rank     int
	peers    []mandelmpi.PeerAddr
	listener net.Listener
	mailbox  *Mailbox

	mu      sync.Mutex
	clients []*rpc.Client

	done chan struct{}
	once sync.Once
}

// ListenRPC listens on peers[rank] and serves the mailbox of rank.
func ListenRPC(rank int, peers []mandelmpi.PeerAddr) (*RPC, error) {
	if rank < 0 || rank >= len(peers) {
		return nil, fmt.Errorf("%w: rank %d of %d peers", ErrPeer, rank, len(peers))
	}
	l, err := net.Listen("tcp", string(peers[rank]))
	if err != nil {
		return nil, err
	}
	return NewRPC(rank, l, peers)
}

// NewRPC serves the mailbox of rank on listener. peers is indexed by rank;
// the entry of rank itself is never dialled.
func NewRPC(rank int, listener net.Listener, peers []mandelmpi.PeerAddr) (*RPC, error) {
	if rank < 0 || rank >= len(peers) {
		return nil, fmt.Errorf("%w: rank %d of %d peers", ErrPeer, rank, len(peers))
	}
	done := make(chan struct{})
	mailbox := &Mailbox{
		inbox: make(chan Message, 2*len(peers)+2),
		done:  done,
	}
	server := rpc.NewServer()
	if err := server.RegisterName("Mailbox", mailbox); err != nil {
		return nil, err
	}
	go http.Serve(listener, server)

	return &RPC{
		rank:     rank,
		peers:    peers,
		listener: listener,
		mailbox:  mailbox,
		clients:  make([]*rpc.Client, len(peers)),
		done:     done,
	}, nil
}

func (r *RPC) Rank() int { return r.rank }

func (r *RPC) Size() int { return len(r.peers) }

func (r *RPC) Addr() net.Addr { return r.listener.Addr() }

// client returns the connection to peer to, waiting for the peer to come up
// until ctx ends.
func (r *RPC) client(ctx context.Context, to int) (*rpc.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.clients[to]; c != nil {
		return c, nil
	}
	addr := string(r.peers[to])
	for {
		c, err := rpc.DialHTTP("tcp", addr)
		if err == nil {
			r.clients[to] = c
			return c, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dialing %s: %v: %w", addr, err, ctx.Err())
		case <-r.done:
			return nil, ErrClosed
		case <-time.After(dialBackoff):
		}
	}
}

// Connect dials the peers this rank talks to, rank 0 every worker and a
// worker rank 0, waiting for them until ctx ends.
func (r *RPC) Connect(ctx context.Context) error {
	for to := range r.peers {
		if to == r.rank || (r.rank != 0 && to != 0) {
			continue
		}
		if _, err := r.client(ctx, to); err != nil {
			return err
		}
	}
	return nil
}

func (r *RPC) Send(ctx context.Context, to int, msg Message) error {
	if to < 0 || to >= len(r.peers) {
		return fmt.Errorf("%w: %d", ErrPeer, to)
	}
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	msg.Source = r.rank
	if to == r.rank {
		return r.mailbox.Deliver(msg, &struct{}{})
	}

	c, err := r.client(ctx, to)
	if err != nil {
		return err
	}
	var reply struct{}
	call := c.Go("Mailbox.Deliver", msg, &reply, nil)
	select {
	case <-call.Done:
		if call.Error != nil {
			return fmt.Errorf("deliver %v to %d: %w", msg.Tag, to, call.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RPC) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-r.mailbox.inbox:
		return msg, nil
	case <-r.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (r *RPC) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.listener.Close()
		r.mu.Lock()
		for i, c := range r.clients {
			if c != nil {
				c.Close()
				r.clients[i] = nil
			}
		}
		r.mu.Unlock()
	})
	return err
}
