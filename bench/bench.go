// Package bench drives one benchmark run: every participant computes its
// share of the image with the selected strategy and appends the blocks to
// the shared output file.
package bench

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	mandelmpi "example.org/parabench/mandelmpi"
	"example.org/parabench/mandelmpi/comm"
	"example.org/parabench/mandelmpi/kernel"
	"example.org/parabench/mandelmpi/parfile"
	"example.org/parabench/mandelmpi/partition"
	"example.org/parabench/mandelmpi/sched"
	"example.org/parabench/mandelmpi/timing"
)

// RankReport is what one participant did during a run.
type RankReport struct {
	Rank    int
	Blocks  int
	Pixels  int
	Bytes   int
	Stats   sched.Stats
	Timings timing.Timings
}

func (r RankReport) String() string {
	return fmt.Sprintf("rank %02d: blocks= %d pixels= %d bytes= %d %v", r.Rank, r.Blocks, r.Pixels, r.Bytes, r.Timings)
}

// Report is the outcome of an in-process run.
type Report struct {
	Meta    mandelmpi.RunMetadata
	Ranks   []RankReport
	Runtime float64
}

// ChunkSize is the output chunk size all size participants agree on: the
// largest capacity hint of any rank.
func ChunkSize(mode mandelmpi.Strategy, cfg mandelmpi.Config, size int) int {
	chunk := 1
	for rank := 0; rank < size; rank++ {
		chunk = max(chunk, capacity(mode, cfg, rank, size))
	}
	return chunk
}

func capacity(mode mandelmpi.Strategy, cfg mandelmpi.Config, rank, size int) int {
	c := parfile.BlockRecordSize(partition.MaxArea(mode, rank, size, cfg.BlockSize, cfg.Width, cfg.Height))
	if rank == 0 {
		c += parfile.MetadataSize()
	}
	return c
}

// RunRank runs the participant c.Rank() of a group of c.Size(). Rank 0
// creates the output file before the start barrier; the others open it
// after.
func RunRank(ctx context.Context, cfg mandelmpi.Config, c comm.Comm, rec mandelmpi.Recorder) (RankReport, error) {
	rank, size := c.Rank(), c.Size()
	report := RankReport{Rank: rank}
	if rec == nil {
		rec = mandelmpi.NopRecorder
	}
	if err := cfg.Validate(); err != nil {
		return report, err
	}
	mode, _ := cfg.Mode()
	if mode == mandelmpi.BlockMaster && size < 2 {
		return report, mandelmpi.ErrTooFewParticipants
	}

	tm := &report.Timings
	start := timing.Seconds()
	chunkSize := ChunkSize(mode, cfg, size)

	runID := cfg.RunID
	var meta mandelmpi.RunMetadata
	if rank == 0 {
		var err error
		if meta, err = cfg.Metadata(size); err != nil {
			return report, err
		}
		runID = meta.RunID.String()
		if cfg.Verbose {
			log.Printf("start calculation (x=%8.5g ..%8.5g,y=%10.7g ..%10.7g)", cfg.Xmin, cfg.Xmax, cfg.Ymin, cfg.Ymax)
		}
		done := timing.Track(&tm.IO)
		err = parfile.Create(cfg.Output, parfile.Options{Ranks: size, ChunkSize: chunkSize, Compress: cfg.Compress})
		done()
		if err != nil {
			return report, fmt.Errorf("creating %s: %w", cfg.Output, err)
		}
	}
	rec.RecordAction(mandelmpi.RunStart{RunID: runID, Rank: rank, NumProcs: size, Strategy: mode.String()})

	done := timing.Track(&tm.Wait)
	err := comm.Barrier(ctx, c)
	done()
	if err != nil {
		return report, fmt.Errorf("rank %d: start barrier: %w", rank, err)
	}

	done = timing.Track(&tm.IO)
	w, err := parfile.Open(cfg.Output, rank, capacity(mode, cfg, rank, size))
	if err == nil && rank == 0 {
		err = w.WriteMetadata(meta)
	}
	done()
	if err != nil {
		if w != nil {
			w.Close()
		}
		return report, fmt.Errorf("rank %d: opening output: %w", rank, err)
	}
	defer w.Close()

	p := &participant{cfg: cfg, region: cfg.Region(), w: w, rec: rec, report: &report}
	switch mode {
	case mandelmpi.BlockMaster:
		err = p.dynamic(ctx, c, chunkSize)
	default:
		err = p.static(mode, size, chunkSize)
	}
	if err != nil {
		return report, err
	}

	done = timing.Track(&tm.Wait)
	err = comm.Barrier(ctx, c)
	done()
	if err != nil {
		return report, fmt.Errorf("rank %d: end barrier: %w", rank, err)
	}

	done = timing.Track(&tm.IO)
	report.Bytes = w.Bytes()
	err = w.Close()
	done()
	if err != nil {
		return report, fmt.Errorf("rank %d: closing output: %w", rank, err)
	}

	tm.Run = timing.Seconds() - start
	rec.RecordAction(mandelmpi.RunComplete{
		RunID:   runID,
		Rank:    rank,
		Blocks:  report.Blocks,
		Pixels:  report.Pixels,
		Runtime: tm.Run,
	})
	if cfg.Verbose {
		log.Printf("PE %02d of %02d: t= %1d %d x %d bs= %d %v",
			rank, size, int(mode), cfg.Width, cfg.Height, cfg.BlockSize, *tm)
	}
	return report, nil
}

type participant struct {
	cfg    mandelmpi.Config
	region mandelmpi.Region
	w      *parfile.Writer
	rec    mandelmpi.Recorder
	report *RankReport
	buf    []int32
}

// block computes b and writes it as one record.
func (p *participant) block(b mandelmpi.Block) error {
	tm := &p.report.Timings
	done := timing.Track(&tm.Calc)
	p.buf = kernel.Compute(p.buf, p.region, b, p.cfg.MaxIter)
	done()

	before := p.w.Bytes()
	done = timing.Track(&tm.IO)
	err := p.w.WriteBlock(b, p.buf)
	done()
	if err != nil {
		return fmt.Errorf("rank %d: writing %v: %w", p.w.Rank(), b, err)
	}
	p.report.Blocks++
	p.report.Pixels += b.Area()
	p.rec.RecordAction(mandelmpi.BlockWritten{
		Rank:   p.w.Rank(),
		Xpos:   b.Xpos,
		Ypos:   b.Ypos,
		Width:  b.Width,
		Height: b.Height,
		Bytes:  p.w.Bytes() - before,
	})
	return nil
}

func (p *participant) static(mode mandelmpi.Strategy, size, chunkSize int) error {
	rank := p.w.Rank()
	seq, err := partition.For(mode, rank, size, p.cfg.BlockSize, p.cfg.Width, p.cfg.Height)
	if err != nil {
		return err
	}
	if p.cfg.Verbose {
		lheight := min(p.cfg.BlockSize, p.cfg.Height)
		if mode == mandelmpi.Stripe {
			lheight = partition.StripeBlock(rank, size, p.cfg.Width, p.cfg.Height).Height
		}
		log.Printf("calc_%s[%02d]: %dx%d, chunksize= %d", mode, rank, p.cfg.Width, lheight, chunkSize)
	}
	for b, ok := seq.Next(); ok; b, ok = seq.Next() {
		if err := p.block(b); err != nil {
			return err
		}
	}
	return nil
}

func (p *participant) dynamic(ctx context.Context, c comm.Comm, chunkSize int) error {
	tm := &p.report.Timings
	if c.Rank() == 0 {
		if p.cfg.Verbose {
			log.Printf("calc_master[%02d]: %dx%d, chunksize= %d", 0, p.cfg.Width, p.cfg.Height, chunkSize)
		}
		st, err := sched.RunCoordinator(ctx, c, p.cfg.Width, p.cfg.Height, p.cfg.BlockSize, p.rec, tm)
		p.report.Stats = st
		return err
	}
	if p.cfg.Verbose {
		log.Printf("calc_worker[%02d]: %dx%d, chunksize= %d", c.Rank(), p.cfg.BlockSize, p.cfg.BlockSize, chunkSize)
	}
	st, err := sched.RunWorker(ctx, c, p.block, p.rec, tm)
	p.report.Stats = st
	return err
}

// Run executes a whole run in this process with cfg.Procs participants
// connected by channels. The first participant to fail cancels the others.
func Run(ctx context.Context, cfg mandelmpi.Config) (*Report, error) {
	return RunTraced(ctx, cfg, func(int) mandelmpi.Recorder { return nil })
}

// RunTraced is Run with a recorder per rank.
func RunTraced(ctx context.Context, cfg mandelmpi.Config, recorder func(rank int) mandelmpi.Recorder) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Procs < 1 {
		return nil, fmt.Errorf("%w: Procs %d", mandelmpi.ErrInvalidConfig, cfg.Procs)
	}
	mode, _ := cfg.Mode()
	if mode == mandelmpi.BlockMaster && cfg.Procs < 2 {
		return nil, mandelmpi.ErrTooFewParticipants
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	meta, err := cfg.Metadata(cfg.Procs)
	if err != nil {
		return nil, err
	}

	start := timing.Seconds()
	comms := comm.NewLocal(cfg.Procs)
	defer func() {
		for _, c := range comms {
			c.Close()
		}
	}()

	report := &Report{Meta: meta, Ranks: make([]RankReport, cfg.Procs)}
	g, gctx := errgroup.WithContext(ctx)
	for rank := range comms {
		rank := rank
		g.Go(func() error {
			r, err := RunRank(gctx, cfg, comms[rank], recorder(rank))
			report.Ranks[rank] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Runtime = timing.Seconds() - start
	return report, nil
}
