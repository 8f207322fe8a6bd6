package port

import (
	"context"
	"time"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
)

type MediaProber interface {
	Probe(ctx context.Context, path string) (entity.MediaInfo, error)
}

// FrameSource decodes one frame near a timestamp, within tolerance on
// either side.
type FrameSource interface {
	RequestFrame(ctx context.Context, path string, point entity.SamplePoint, tolerance time.Duration) (entity.Frame, error)
}

// BulkFrameSource dispatches one request per point and returns without
// waiting. onResult is called exactly once per point, possibly from several
// goroutines at the same time and in any order. Cancelling ctx abandons the
// requests still in flight; they still report, with the context error.
type BulkFrameSource interface {
	RequestFrames(ctx context.Context, path string, points []entity.SamplePoint, tolerance time.Duration, onResult func(entity.FrameResult))
}

// FrameStreamer opens a monotonic decode stream. A rate of 0 yields every
// frame the source has.
type FrameStreamer interface {
	Open(ctx context.Context, path string, info entity.MediaInfo, rate int) (FrameReader, error)
}

// FrameReader yields frames in ascending time order and io.EOF once the
// stream is exhausted.
type FrameReader interface {
	Next(ctx context.Context) (entity.Frame, error)
	Close() error
}
