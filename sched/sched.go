// Package sched implements the blockmaster strategy: rank 0 hands out tiles
// to idle workers on demand and collects their completion notices.
package sched

import (
	"context"
	"fmt"

	mandelmpi "example.org/parabench/mandelmpi"
	"example.org/parabench/mandelmpi/comm"
	"example.org/parabench/mandelmpi/partition"
	"example.org/parabench/mandelmpi/timing"
)

type WorkerState int

const (
	StateIdle WorkerState = iota
	StateWorking
	StateMaster
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateMaster:
		return "master"
	}
	return fmt.Sprintf("WorkerState(%d)", int(s))
}

// Stats counts the protocol events seen by one participant.
type Stats struct {
	Assigned  int // tiles sent (coordinator) or received (worker)
	Completed int // completion notices received (coordinator) or sent (worker)
	Sentinels int // sentinels sent (coordinator) or received (worker)
}

// Coordinator owns the worker state table. Nothing else reads or writes it.
type Coordinator struct {
	comm    comm.Comm
	tiles   partition.Sequence
	rec     mandelmpi.Recorder
	timings *timing.Timings

	state    []WorkerState
	assigned []mandelmpi.WorkItem
	working  int
}

func NewCoordinator(c comm.Comm, tiles partition.Sequence, rec mandelmpi.Recorder, tm *timing.Timings) (*Coordinator, error) {
	if c.Size() < 2 {
		return nil, mandelmpi.ErrTooFewParticipants
	}
	if c.Rank() != 0 {
		return nil, fmt.Errorf("sched: coordinator must be rank 0, not %d", c.Rank())
	}
	if rec == nil {
		rec = mandelmpi.NopRecorder
	}
	if tm == nil {
		tm = new(timing.Timings)
	}
	state := make([]WorkerState, c.Size())
	state[0] = StateMaster
	return &Coordinator{
		comm:     c,
		tiles:    tiles,
		rec:      rec,
		timings:  tm,
		state:    state,
		assigned: make([]mandelmpi.WorkItem, c.Size()),
	}, nil
}

// RunCoordinator distributes the blockSize tiles of a width x height grid.
func RunCoordinator(ctx context.Context, c comm.Comm, width, height, blockSize int,
	rec mandelmpi.Recorder, tm *timing.Timings) (Stats, error) {
	co, err := NewCoordinator(c, partition.Tiles(width, height, blockSize), rec, tm)
	if err != nil {
		return Stats{}, err
	}
	return co.Run(ctx)
}

// Run assigns every tile, waits for all completions and then sends one
// sentinel to each worker. It blocks for as long as a working worker stays
// silent.
func (co *Coordinator) Run(ctx context.Context) (Stats, error) {
	var st Stats
	commBefore := co.timings.Comm
	defer func(start float64) {
		co.timings.Coord += timing.Seconds() - start - (co.timings.Comm - commBefore)
	}(timing.Seconds())

	numWorkers := co.comm.Size() - 1
	tile, more := co.tiles.Next()
	for more {
		if co.working < numWorkers {
			if err := co.assign(ctx, co.lowestIdle(), tile, &st); err != nil {
				return st, err
			}
			tile, more = co.tiles.Next()
			continue
		}
		if err := co.collect(ctx, &st); err != nil {
			return st, err
		}
	}
	for co.working > 0 {
		if err := co.collect(ctx, &st); err != nil {
			return st, err
		}
	}

	for w := 1; w < co.comm.Size(); w++ {
		done := timing.Track(&co.timings.Comm)
		err := co.comm.Send(ctx, w, comm.Message{Tag: comm.TagFinish, Item: mandelmpi.Sentinel})
		done()
		if err != nil {
			return st, fmt.Errorf("finish worker %d: %w", w, err)
		}
		co.rec.RecordAction(mandelmpi.CoordinatorFinish{Worker: w})
		st.Sentinels++
	}
	return st, nil
}

func (co *Coordinator) lowestIdle() int {
	for w, s := range co.state {
		if s == StateIdle {
			return w
		}
	}
	return -1
}

func (co *Coordinator) assign(ctx context.Context, w int, tile mandelmpi.Block, st *Stats) error {
	item := mandelmpi.ItemFor(tile)
	done := timing.Track(&co.timings.Comm)
	err := co.comm.Send(ctx, w, comm.Message{Tag: comm.TagWork, Item: item})
	done()
	if err != nil {
		return fmt.Errorf("assign %v to worker %d: %w", tile, w, err)
	}
	co.state[w] = StateWorking
	co.assigned[w] = item
	co.working++
	st.Assigned++
	co.rec.RecordAction(mandelmpi.CoordinatorAssign{
		Worker: w,
		Xpos:   item.Xpos,
		Ypos:   item.Ypos,
		Width:  item.Width,
		Height: item.Height,
	})
	return nil
}

// collect waits for the next completion notice, whichever worker sends it.
func (co *Coordinator) collect(ctx context.Context, st *Stats) error {
	done := timing.Track(&co.timings.Comm)
	msg, err := co.comm.Recv(ctx)
	done()
	if err != nil {
		return fmt.Errorf("waiting for completion: %w", err)
	}
	w := msg.Source
	switch {
	case msg.Tag != comm.TagDone:
		return fmt.Errorf("%w: coordinator got %v from %d", comm.ErrProtocol, msg.Tag, w)
	case w <= 0 || w >= len(co.state) || co.state[w] != StateWorking:
		return fmt.Errorf("%w: completion from rank %d which has no tile", comm.ErrProtocol, w)
	case msg.Item != co.assigned[w]:
		return fmt.Errorf("%w: worker %d completed %v, assigned %v",
			comm.ErrProtocol, w, msg.Item.Block(), co.assigned[w].Block())
	}
	co.state[w] = StateIdle
	co.working--
	st.Completed++
	co.rec.RecordAction(mandelmpi.CoordinatorDone{
		Worker: w,
		Xpos:   msg.Item.Xpos,
		Ypos:   msg.Item.Ypos,
		Width:  msg.Item.Width,
		Height: msg.Item.Height,
	})
	return nil
}

// Handler computes and persists one tile.
type Handler func(mandelmpi.Block) error

// RunWorker serves tiles from rank 0 until it receives the sentinel. handle
// is called exactly once per tile; its error ends the worker.
func RunWorker(ctx context.Context, c comm.Comm, handle Handler, rec mandelmpi.Recorder, tm *timing.Timings) (Stats, error) {
	var st Stats
	if c.Rank() == 0 {
		return st, fmt.Errorf("sched: rank 0 is the coordinator")
	}
	if rec == nil {
		rec = mandelmpi.NopRecorder
	}
	if tm == nil {
		tm = new(timing.Timings)
	}
	rank := c.Rank()

	for {
		done := timing.Track(&tm.Comm)
		msg, err := c.Recv(ctx)
		done()
		if err != nil {
			return st, fmt.Errorf("worker %d: waiting for work: %w", rank, err)
		}
		if msg.Source != 0 {
			return st, fmt.Errorf("%w: worker %d got %v from rank %d", comm.ErrProtocol, rank, msg.Tag, msg.Source)
		}
		if msg.Tag == comm.TagFinish || msg.Item.IsSentinel() {
			st.Sentinels++
			rec.RecordAction(mandelmpi.WorkerFinish{Rank: rank, Tiles: st.Completed})
			return st, nil
		}
		if msg.Tag != comm.TagWork {
			return st, fmt.Errorf("%w: worker %d got %v", comm.ErrProtocol, rank, msg.Tag)
		}

		item := msg.Item
		st.Assigned++
		rec.RecordAction(mandelmpi.WorkerReceive{
			Rank:   rank,
			Xpos:   item.Xpos,
			Ypos:   item.Ypos,
			Width:  item.Width,
			Height: item.Height,
		})
		if err := handle(item.Block()); err != nil {
			return st, fmt.Errorf("worker %d: tile %v: %w", rank, item.Block(), err)
		}

		done = timing.Track(&tm.Comm)
		err = c.Send(ctx, 0, comm.Message{Tag: comm.TagDone, Item: item})
		done()
		if err != nil {
			return st, fmt.Errorf("worker %d: reporting %v: %w", rank, item.Block(), err)
		}
		st.Completed++
		rec.RecordAction(mandelmpi.WorkerComplete{
			Rank:   rank,
			Xpos:   item.Xpos,
			Ypos:   item.Ypos,
			Width:  item.Width,
			Height: item.Height,
		})
	}
}
