package conversion

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/fiapx/fiapx-gif-service/internal/domain/port"
	"github.com/fiapx/fiapx-gif-service/internal/domain/sampling"
	"github.com/fiapx/fiapx-gif-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// Concurrent issues every frame request at once and waits for all of them
// to report before emitting the frames in timestamp order.
type Concurrent struct {
	source port.BulkFrameSource
	logger *zap.Logger
}

func NewConcurrent(source port.BulkFrameSource, logger *zap.Logger) *Concurrent {
	return &Concurrent{source: source, logger: logger}
}

func (s *Concurrent) Name() string { return StrategyConcurrent }

func (s *Concurrent) Collect(ctx context.Context, src Source, plan Plan, emit EmitFunc) error {
	collector := sampling.NewCollector(plan.Schedule)

	// cancelling reqCtx stops whatever is still decoding once the wait ends
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rejected := make(chan error, 1)
	s.source.RequestFrames(reqCtx, src.Path, plan.Schedule.Points(), plan.Tolerance, func(r entity.FrameResult) {
		if err := collector.Submit(r); err != nil {
			s.logger.Error("frame result rejected", zap.Int("index", r.Point.Index), zap.Error(err))
			select {
			case rejected <- err:
			default:
			}
			return
		}
		if !r.OK() {
			s.logger.Debug("frame request failed", zap.Int("index", r.Point.Index), zap.Error(r.Err))
		}
	})

	waitCtx := reqCtx
	if plan.CollectTimeout > 0 {
		var cancelWait context.CancelFunc
		waitCtx, cancelWait = context.WithTimeout(reqCtx, plan.CollectTimeout)
		defer cancelWait()
	}

	frames, err := collector.Await(waitCtx)
	stats := collector.Stats()
	metrics.FramesCollectedTotal.WithLabelValues(s.Name(), "succeeded").Add(float64(stats.Succeeded))
	metrics.FramesCollectedTotal.WithLabelValues(s.Name(), "failed").Add(float64(stats.Failed))
	metrics.FramesCollectedTotal.WithLabelValues(s.Name(), "missing").Add(float64(stats.Missing()))

	select {
	case rerr := <-rejected:
		return fmt.Errorf("collect frames: %w", rerr)
	default:
	}

	// the caller gave up; what arrived is not a partial result
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("collect frames: %w", cerr)
	}

	if err != nil {
		var partial *entity.PartialResultError
		if !errors.As(err, &partial) {
			return err
		}
		metrics.PartialResultsTotal.WithLabelValues(s.Name()).Inc()
		if !plan.BestEffort || len(frames) == 0 {
			return err
		}
		s.logger.Warn("continuing with partial frame set",
			zap.Int("requested", partial.Requested),
			zap.Int("succeeded", partial.Succeeded),
			zap.Int("failed", partial.Failed),
			zap.Int("missing", partial.Missing()),
			zap.Error(partial.Cause),
		)
	}

	for _, f := range frames {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}
