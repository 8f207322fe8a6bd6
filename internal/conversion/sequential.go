package conversion

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-gif-service/internal/domain/port"
	"github.com/fiapx/fiapx-gif-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// Sequential requests one frame at a time, in schedule order, and gives up
// on the first failure.
type Sequential struct {
	source port.FrameSource
	logger *zap.Logger
}

func NewSequential(source port.FrameSource, logger *zap.Logger) *Sequential {
	return &Sequential{source: source, logger: logger}
}

func (s *Sequential) Name() string { return StrategySequential }

func (s *Sequential) Collect(ctx context.Context, src Source, plan Plan, emit EmitFunc) error {
	for _, p := range plan.Schedule.Points() {
		frame, err := s.source.RequestFrame(ctx, src.Path, p, plan.Tolerance)
		if err == nil && frame.Image == nil {
			err = errors.New("no image returned")
		}
		if err != nil {
			metrics.FramesCollectedTotal.WithLabelValues(s.Name(), "failed").Inc()
			s.logger.Warn("frame request failed, aborting",
				zap.Int("index", p.Index),
				zap.Float64("at", p.Seconds),
				zap.Error(err),
			)
			return fmt.Errorf("frame %d at %.3fs: %w", p.Index, p.Seconds, err)
		}

		metrics.FramesCollectedTotal.WithLabelValues(s.Name(), "succeeded").Inc()
		frame.Point = p
		if frame.Actual.Scale == 0 {
			frame.Actual = p.Time
		}
		if err := emit(frame); err != nil {
			return err
		}
	}
	return nil
}
