package mandelmpi

// Trace actions. Each protocol step records one of these through a Recorder.

type RunStart struct {
	RunID    string
	Rank     int
	NumProcs int
	Strategy string
}

type RunComplete struct {
	RunID   string
	Rank    int
	Blocks  int
	Pixels  int
	Runtime float64
}

type CoordinatorAssign struct {
	Worker int
	Xpos   int
	Ypos   int
	Width  int
	Height int
}

type CoordinatorDone struct {
	Worker int
	Xpos   int
	Ypos   int
	Width  int
	Height int
}

type CoordinatorFinish struct {
	Worker int
}

type WorkerReceive struct {
	Rank   int
	Xpos   int
	Ypos   int
	Width  int
	Height int
}

type WorkerComplete struct {
	Rank   int
	Xpos   int
	Ypos   int
	Width  int
	Height int
}

type WorkerFinish struct {
	Rank  int
	Tiles int
}

type BlockWritten struct {
	Rank   int
	Xpos   int
	Ypos   int
	Width  int
	Height int
	Bytes  int
}
