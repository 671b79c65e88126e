package mandelmpi

import (
	"github.com/DistributedClocks/tracing"
)

// Recorder receives trace actions. *tracing.Tracer satisfies it.
type Recorder interface {
	RecordAction(action interface{})
}

type nopRecorder struct{}

func (nopRecorder) RecordAction(interface{}) {}

// NopRecorder drops every action.
var NopRecorder Recorder = nopRecorder{}

// Tracer is the recorder of one participant together with its shutdown.
type Tracer struct {
	Recorder
	tracer *tracing.Tracer
}

// NewTracer connects to the tracing server named in config. Without a
// server address the returned tracer records nothing.
func NewTracer(config Config, identity string) *Tracer {
	if config.TracerServerAddr == "" {
		return &Tracer{Recorder: NopRecorder}
	}
	tracer := tracing.NewTracer(tracing.TracerConfig{
		ServerAddress:  config.TracerServerAddr,
		TracerIdentity: identity,
		Secret:         config.TracerSecret,
	})
	return &Tracer{Recorder: tracer, tracer: tracer}
}

func (t *Tracer) Close() error {
	if t.tracer == nil {
		return nil
	}
	return t.tracer.Close()
}
