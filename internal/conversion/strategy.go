// Package conversion turns a video into a looping GIF: it plans a sampling
// schedule for the source, gathers frames with one of several strategies and
// feeds them to a GIF encoder.
package conversion

import (
	"context"
	"time"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/fiapx/fiapx-gif-service/internal/domain/sampling"
)

const (
	StrategySequential = entity.StrategySequential
	StrategyConcurrent = entity.StrategyConcurrent
	StrategyStreaming  = entity.StrategyStreaming
)

// Strategies lists the built-in strategy names.
var Strategies = entity.Strategies

// Source identifies the media to convert.
type Source struct {
	Path string
}

// Plan is everything decided before any frame is requested.
type Plan struct {
	Info     entity.MediaInfo
	Schedule sampling.Schedule
	// Rate is the sample rate in use. Native reports that it came from the
	// source instead of the caller.
	Rate   int
	Native bool
	// Delay is the per-frame delay in seconds, the same for every frame.
	Delay          float64
	Tolerance      time.Duration
	CollectTimeout time.Duration
	BestEffort     bool
}

// EmitFunc hands a frame to the encoder. Frames must be emitted in
// ascending time order.
type EmitFunc func(entity.Frame) error

// Strategy gathers the frames for a plan and emits them in order. The
// strategies differ only in how they call their frame source.
type Strategy interface {
	Name() string
	Collect(ctx context.Context, src Source, plan Plan, emit EmitFunc) error
}
