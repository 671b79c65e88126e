package sched

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mandelmpi "example.org/parabench/mandelmpi"
	"example.org/parabench/mandelmpi/comm"
	"example.org/parabench/mandelmpi/partition"
	"example.org/parabench/mandelmpi/timing"
)

// recorder keeps every traced action.
type recorder struct {
	mu      sync.Mutex
	actions []interface{}
}

func (r *recorder) RecordAction(a interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func (r *recorder) count(match func(interface{}) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.actions {
		if match(a) {
			n++
		}
	}
	return n
}

type runResult struct {
	coordinator Stats
	workers     []Stats
	blocks      map[int][]mandelmpi.Block
}

// runGroup runs a coordinator and size-1 workers over comms and returns what
// each participant saw.
func runGroup(t *testing.T, comms []comm.Comm, width, height, blockSize int, rec mandelmpi.Recorder) runResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := runResult{workers: make([]Stats, len(comms)), blocks: map[int][]mandelmpi.Block{}}
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make(chan error, len(comms))
	for rank := 1; rank < len(comms); rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			st, err := RunWorker(ctx, comms[rank], func(b mandelmpi.Block) error {
				mu.Lock()
				res.blocks[rank] = append(res.blocks[rank], b)
				mu.Unlock()
				return nil
			}, rec, nil)
			res.workers[rank] = st
			errs <- err
		}(rank)
	}
	st, err := RunCoordinator(ctx, comms[0], width, height, blockSize, rec, nil)
	require.NoError(t, err)
	res.coordinator = st
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	return res
}

func requireTiling(t *testing.T, width, height int, blocks map[int][]mandelmpi.Block) {
	t.Helper()
	cover := make([]int, width*height)
	for _, bs := range blocks {
		for _, b := range bs {
			require.True(t, b.Within(width, height), "%v", b)
			for y := b.Ypos; y < b.Ypos+b.Height; y++ {
				for x := b.Xpos; x < b.Xpos+b.Width; x++ {
					cover[y*width+x]++
				}
			}
		}
	}
	for i, c := range cover {
		require.Equal(t, 1, c, "pixel %d", i)
	}
}

func TestSchedulerLiveness(t *testing.T) {
	const width, height, blockSize = 37, 23, 5
	tiles := len(partition.All(partition.Tiles(width, height, blockSize)))

	for _, size := range []int{2, 3, 5, 8, 64} {
		t.Run(fmt.Sprintf("n%d", size), func(t *testing.T) {
			require := require.New(t)
			rec := &recorder{}
			res := runGroup(t, comm.NewLocal(size), width, height, blockSize, rec)

			require.Equal(Stats{Assigned: tiles, Completed: tiles, Sentinels: size - 1}, res.coordinator)
			sentinels, completed := 0, 0
			for rank := 1; rank < size; rank++ {
				require.Equal(1, res.workers[rank].Sentinels, "rank %d", rank)
				require.Equal(len(res.blocks[rank]), res.workers[rank].Completed)
				sentinels += res.workers[rank].Sentinels
				completed += res.workers[rank].Completed
			}
			require.Equal(size-1, sentinels)
			require.Equal(tiles, completed)
			requireTiling(t, width, height, res.blocks)

			require.Equal(size-1, rec.count(func(a interface{}) bool {
				_, ok := a.(mandelmpi.CoordinatorFinish)
				return ok
			}))
			require.Equal(tiles, rec.count(func(a interface{}) bool {
				_, ok := a.(mandelmpi.WorkerComplete)
				return ok
			}))
		})
	}
}

func TestSchedulerOverRPC(t *testing.T) {
	const size = 4
	listeners := make([]net.Listener, size)
	peers := make([]mandelmpi.PeerAddr, size)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = l
		peers[i] = mandelmpi.PeerAddr(l.Addr().String())
	}
	comms := make([]comm.Comm, size)
	for rank := range comms {
		c, err := comm.NewRPC(rank, listeners[rank], peers)
		require.NoError(t, err)
		defer c.Close()
		comms[rank] = c
	}

	res := runGroup(t, comms, 30, 20, 4, nil)
	require.Equal(t, size-1, res.coordinator.Sentinels)
	requireTiling(t, 30, 20, res.blocks)
}

func TestCoordinatorNeedsTwoParticipants(t *testing.T) {
	_, err := RunCoordinator(context.Background(), comm.NewLocal(1)[0], 4, 4, 2, nil, nil)
	require.ErrorIs(t, err, mandelmpi.ErrTooFewParticipants)
}

func TestCoordinatorMustBeRankZero(t *testing.T) {
	_, err := RunCoordinator(context.Background(), comm.NewLocal(2)[1], 4, 4, 2, nil, nil)
	require.Error(t, err)
	_, err = RunWorker(context.Background(), comm.NewLocal(2)[0], nil, nil, nil)
	require.Error(t, err)
}

type sent struct {
	to  int
	msg comm.Message
}

// scriptedComm plays rank 0. Recv answers with a completion of the tile last
// sent to the next rank of order.
type scriptedComm struct {
	size     int
	order    []int
	sent     []sent
	assigned map[int]mandelmpi.WorkItem
	reply    func(rank int, item mandelmpi.WorkItem) comm.Message
}

func newScripted(size int, order ...int) *scriptedComm {
	return &scriptedComm{size: size, order: order, assigned: map[int]mandelmpi.WorkItem{}}
}

func (s *scriptedComm) Rank() int { return 0 }

func (s *scriptedComm) Size() int { return s.size }

func (s *scriptedComm) Send(_ context.Context, to int, msg comm.Message) error {
	s.sent = append(s.sent, sent{to: to, msg: msg})
	s.assigned[to] = msg.Item
	return nil
}

func (s *scriptedComm) Recv(context.Context) (comm.Message, error) {
	if len(s.order) == 0 {
		return comm.Message{}, errors.New("script exhausted")
	}
	rank := s.order[0]
	s.order = s.order[1:]
	if s.reply != nil {
		return s.reply(rank, s.assigned[rank]), nil
	}
	return comm.Message{Tag: comm.TagDone, Source: rank, Item: s.assigned[rank]}, nil
}

func (s *scriptedComm) Close() error { return nil }

func TestCoordinatorPrefersLowestIdleWorker(t *testing.T) {
	require := require.New(t)

	// Six 1x1 tiles, three workers; completions arrive as 2, 3, 1, 2, 3, 1.
	c := newScripted(4, 2, 3, 1, 2, 3, 1)
	var tm timing.Timings
	co, err := NewCoordinator(c, partition.Tiles(6, 1, 1), nil, &tm)
	require.NoError(err)
	st, err := co.Run(context.Background())
	require.NoError(err)
	require.Equal(Stats{Assigned: 6, Completed: 6, Sentinels: 3}, st)

	tile := func(x int) comm.Message {
		return comm.Message{Tag: comm.TagWork, Item: mandelmpi.WorkItem{Xpos: x, Width: 1, Height: 1}}
	}
	finish := comm.Message{Tag: comm.TagFinish, Item: mandelmpi.Sentinel}
	require.Equal([]sent{
		{1, tile(0)}, {2, tile(1)}, {3, tile(2)},
		{2, tile(3)}, {3, tile(4)}, {1, tile(5)},
		{1, finish}, {2, finish}, {3, finish},
	}, c.sent)

	for w := 1; w < 4; w++ {
		require.Equal(StateIdle, co.state[w])
	}
	require.Equal(StateMaster, co.state[0])
	require.GreaterOrEqual(tm.Comm, 0.0)
}

func TestCoordinatorFewerTilesThanWorkers(t *testing.T) {
	require := require.New(t)
	c := newScripted(6, 2, 1)
	co, err := NewCoordinator(c, partition.Tiles(2, 1, 1), nil, nil)
	require.NoError(err)
	st, err := co.Run(context.Background())
	require.NoError(err)
	require.Equal(Stats{Assigned: 2, Completed: 2, Sentinels: 5}, st)
	require.Equal(1, c.sent[0].to)
	require.Equal(2, c.sent[1].to)
	for i, s := range c.sent[2:] {
		require.Equal(i+1, s.to)
		require.Equal(comm.TagFinish, s.msg.Tag)
		require.True(s.msg.Item.IsSentinel())
	}
}

func TestCoordinatorRejectsUnexpectedCompletion(t *testing.T) {
	tests := map[string]func(rank int, item mandelmpi.WorkItem) comm.Message{
		"from idle worker": func(rank int, item mandelmpi.WorkItem) comm.Message {
			return comm.Message{Tag: comm.TagDone, Source: 2, Item: item}
		},
		"wrong tile": func(rank int, item mandelmpi.WorkItem) comm.Message {
			item.Xpos++
			return comm.Message{Tag: comm.TagDone, Source: rank, Item: item}
		},
		"wrong tag": func(rank int, item mandelmpi.WorkItem) comm.Message {
			return comm.Message{Tag: comm.TagBarrier, Source: rank}
		},
		"from coordinator": func(rank int, item mandelmpi.WorkItem) comm.Message {
			return comm.Message{Tag: comm.TagDone, Source: 0, Item: item}
		},
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			// One tile for worker 1; worker 2 stays idle.
			c := newScripted(3, 1)
			c.reply = reply
			_, err := RunCoordinator(context.Background(), c, 1, 1, 1, nil, nil)
			require.ErrorIs(t, err, comm.ErrProtocol)
		})
	}
}

func TestWorkerHandlerFailure(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	comms := comm.NewLocal(2)

	item := mandelmpi.WorkItem{Xpos: 0, Ypos: 0, Width: 2, Height: 2}
	require.NoError(comms[0].Send(ctx, 1, comm.Message{Tag: comm.TagWork, Item: item}))

	boom := errors.New("disk full")
	st, err := RunWorker(ctx, comms[1], func(mandelmpi.Block) error { return boom }, nil, nil)
	require.ErrorIs(err, boom)
	require.Equal(Stats{Assigned: 1}, st)
}

func TestWorkerComputesOncePerTile(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	comms := comm.NewLocal(2)

	items := []mandelmpi.WorkItem{{Width: 1, Height: 1}, {Xpos: 1, Width: 1, Height: 1}}
	for _, item := range items {
		require.NoError(comms[0].Send(ctx, 1, comm.Message{Tag: comm.TagWork, Item: item}))
	}
	require.NoError(comms[0].Send(ctx, 1, comm.Message{Tag: comm.TagFinish, Item: mandelmpi.Sentinel}))

	calls := 0
	st, err := RunWorker(ctx, comms[1], func(mandelmpi.Block) error { calls++; return nil }, nil, nil)
	require.NoError(err)
	require.Equal(2, calls)
	require.Equal(Stats{Assigned: 2, Completed: 2, Sentinels: 1}, st)

	for _, item := range items {
		msg, err := comms[0].Recv(ctx)
		require.NoError(err)
		require.Equal(comm.Message{Tag: comm.TagDone, Source: 1, Item: item}, msg)
	}
}

func TestWorkerRejectsForeignSender(t *testing.T) {
	ctx := context.Background()
	comms := comm.NewLocal(3)
	require.NoError(t, comms[2].Send(ctx, 1, comm.Message{Tag: comm.TagWork}))
	_, err := RunWorker(ctx, comms[1], func(mandelmpi.Block) error { return nil }, nil, nil)
	require.ErrorIs(t, err, comm.ErrProtocol)
}
