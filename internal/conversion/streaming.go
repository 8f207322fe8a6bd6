package conversion

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/fiapx/fiapx-gif-service/internal/domain/port"
	"github.com/fiapx/fiapx-gif-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// Streaming pulls frames from a single decode pass and emits them as they
// arrive. It takes whatever frames the stream yields instead of exact
// schedule timestamps, in exchange for holding nothing in memory.
type Streaming struct {
	streamer port.FrameStreamer
	logger   *zap.Logger
}

func NewStreaming(streamer port.FrameStreamer, logger *zap.Logger) *Streaming {
	return &Streaming{streamer: streamer, logger: logger}
}

func (s *Streaming) Name() string { return StrategyStreaming }

func (s *Streaming) Collect(ctx context.Context, src Source, plan Plan, emit EmitFunc) error {
	rate := plan.Rate
	if plan.Native {
		rate = 0
	}

	reader, err := s.streamer.Open(ctx, src.Path, plan.Info, rate)
	if err != nil {
		return fmt.Errorf("open frame stream: %w", err)
	}
	defer reader.Close()

	var emitted, skipped int
	for {
		frame, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, entity.ErrUndecodableFrame) {
			skipped++
			s.logger.Debug("skipping undecodable frame", zap.Error(err))
			continue
		}
		if err != nil {
			return fmt.Errorf("read frame stream: %w", err)
		}

		if err := emit(frame); err != nil {
			return err
		}
		emitted++
	}

	metrics.FramesCollectedTotal.WithLabelValues(s.Name(), "succeeded").Add(float64(emitted))
	metrics.FramesCollectedTotal.WithLabelValues(s.Name(), "failed").Add(float64(skipped))
	s.logger.Debug("frame stream drained", zap.Int("emitted", emitted), zap.Int("skipped", skipped))
	return nil
}
