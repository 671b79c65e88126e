package mandelmpi

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
)

type PeerAddr string

// Config is the benchmark configuration, read from JSON and overridden by
// command-line flags. Peers is only used by the multi-process commands,
// Procs only by the in-process runner.
type Config struct {
	Xmin      float64
	Xmax      float64
	Ymin      float64
	Ymax      float64
	Width     int
	Height    int
	MaxIter   int
	BlockSize int
	Strategy  string
	Procs     int
	Output    string
	Compress  bool
	Verbose   bool
	RunID     string // shared by all participants; generated by rank 0 when empty

	Peers            []PeerAddr // indexed by rank, rank 0 is the coordinator
	ConnectTimeout   string     // time.ParseDuration syntax, e.g. "30s"
	TracerServerAddr string
	TracerSecret     []byte
}

// DefaultConfig mirrors the defaults of the original benchmark CLI.
func DefaultConfig() Config {
	return Config{
		Xmin:      -1.5,
		Xmax:      0.5,
		Ymin:      -1.0,
		Ymax:      1.0,
		Width:     256,
		Height:    256,
		MaxIter:   256,
		BlockSize: 128,
		Strategy:  "stride",
		Procs:     4,
		Output:    "simple.mpar",
	}
}

func ReadJSONConfig(filename string, config interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(config); err != nil {
		return fmt.Errorf("decoding %s: %w", filename, err)
	}
	return nil
}

func (c Config) Region() Region {
	return Region{
		Xmin:   c.Xmin,
		Xmax:   c.Xmax,
		Ymin:   c.Ymin,
		Ymax:   c.Ymax,
		Width:  c.Width,
		Height: c.Height,
	}
}

// Mode resolves the Strategy selector.
func (c Config) Mode() (Strategy, error) {
	return ParseStrategy(c.Strategy)
}

// Timeout is the time allowed for peers to come up, 30s when unset.
func (c Config) Timeout() (time.Duration, error) {
	if c.ConnectTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 0, fmt.Errorf("%w: ConnectTimeout: %v", ErrInvalidConfig, err)
	}
	return d, nil
}

// Validate normalizes nothing; it rejects every input the core assumes
// away, notably a non-positive BlockSize that would stall the stride loop.
func (c Config) Validate() error {
	if err := c.Region().Validate(); err != nil {
		return err
	}
	if c.MaxIter <= 0 || c.MaxIter > math.MaxInt32 {
		return fmt.Errorf("%w: MaxIter %d", ErrInvalidConfig, c.MaxIter)
	}
	if c.BlockSize <= 0 || c.BlockSize > math.MaxInt32 {
		return fmt.Errorf("%w: BlockSize %d", ErrInvalidConfig, c.BlockSize)
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if c.Output == "" {
		return fmt.Errorf("%w: empty Output", ErrInvalidConfig)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.RunID != "" {
		if _, err := uuid.Parse(c.RunID); err != nil {
			return fmt.Errorf("%w: RunID: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Metadata builds the run record for numProcs participants. A fresh RunID
// is drawn when the config carries none.
func (c Config) Metadata(numProcs int) (RunMetadata, error) {
	mode, err := c.Mode()
	if err != nil {
		return RunMetadata{}, err
	}
	id := uuid.New()
	if c.RunID != "" {
		if id, err = uuid.Parse(c.RunID); err != nil {
			return RunMetadata{}, fmt.Errorf("%w: RunID: %v", ErrInvalidConfig, err)
		}
	}
	return RunMetadata{
		RunID:     id,
		Strategy:  mode,
		Region:    c.Region(),
		MaxIter:   c.MaxIter,
		BlockSize: c.BlockSize,
		NumProcs:  numProcs,
	}, nil
}
