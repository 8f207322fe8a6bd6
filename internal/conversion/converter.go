package conversion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/fiapx/fiapx-gif-service/internal/domain/port"
	"github.com/fiapx/fiapx-gif-service/internal/domain/sampling"
	"github.com/fiapx/fiapx-gif-service/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Options are the per-request knobs. A nil SampleRate uses the source's
// native frame rate; an empty Strategy uses the converter's default.
type Options struct {
	SampleRate *int
	Strategy   string
	BestEffort bool
}

// Result describes a finished GIF.
type Result struct {
	Path       string
	Strategy   string
	SampleRate int
	Requested  int
	FrameCount int
	Delay      float64
	Duration   float64
}

// Outcome is delivered exactly once per started conversion.
type Outcome struct {
	Result Result
	Err    error
}

type ConverterConfig struct {
	OutputDir       string
	DefaultStrategy string
	Tolerance       time.Duration
	CollectTimeout  time.Duration
	// MaxFrames caps the schedule length; 0 uses sampling.DefaultMaxSamples.
	MaxFrames int
}

type Converter struct {
	prober     port.MediaProber
	encoder    port.GifEncoder
	strategies map[string]Strategy
	cfg        ConverterConfig
	logger     *zap.Logger
}

func NewConverter(
	prober port.MediaProber,
	encoder port.GifEncoder,
	cfg ConverterConfig,
	logger *zap.Logger,
	strategies ...Strategy,
) *Converter {
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = StrategyConcurrent
	}
	return &Converter{
		prober:     prober,
		encoder:    encoder,
		strategies: byName,
		cfg:        cfg,
		logger:     logger,
	}
}

// Convert runs a conversion to completion.
func (c *Converter) Convert(ctx context.Context, src Source, opts Options) (Result, error) {
	out, err := c.Start(ctx, src, opts)
	if err != nil {
		return Result{}, err
	}
	o := <-out
	return o.Result, o.Err
}

// Start validates the request and plans the schedule on the calling
// goroutine, returning any validation error directly. Frame collection and
// encoding then run in the background; the returned channel yields a single
// Outcome and is closed.
func (c *Converter) Start(ctx context.Context, src Source, opts Options) (<-chan Outcome, error) {
	strategy, plan, err := c.prepare(ctx, src, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := c.run(ctx, src, strategy, plan)
		out <- Outcome{Result: res, Err: err}
	}()
	return out, nil
}

func (c *Converter) prepare(ctx context.Context, src Source, opts Options) (Strategy, Plan, error) {
	if opts.SampleRate != nil && *opts.SampleRate <= 0 {
		return nil, Plan{}, fmt.Errorf("%w: %d", entity.ErrInvalidSampleRate, *opts.SampleRate)
	}

	name := opts.Strategy
	if name == "" {
		name = c.cfg.DefaultStrategy
	}
	strategy, ok := c.strategies[name]
	if !ok {
		return nil, Plan{}, fmt.Errorf("%w: %q", entity.ErrUnknownStrategy, name)
	}

	ctx, span := otel.Tracer("conversion").Start(ctx, "probe_source")
	info, err := c.prober.Probe(ctx, src.Path)
	span.End()
	if err != nil {
		if errors.Is(err, entity.ErrNoVideoTrack) {
			return nil, Plan{}, err
		}
		return nil, Plan{}, fmt.Errorf("probe source: %w", err)
	}
	if !info.HasVideo {
		return nil, Plan{}, entity.ErrNoVideoTrack
	}

	plan := Plan{
		Info:           info,
		Tolerance:      c.cfg.Tolerance,
		CollectTimeout: c.cfg.CollectTimeout,
		BestEffort:     opts.BestEffort,
	}
	if opts.SampleRate != nil {
		plan.Rate = *opts.SampleRate
	} else {
		plan.Rate = info.NativeSampleRate()
		plan.Native = true
		if plan.Rate <= 0 {
			return nil, Plan{}, fmt.Errorf("%w: source reports no frame rate", entity.ErrInvalidSampleRate)
		}
	}

	schedule, err := sampling.BuildBoundedSchedule(info.Duration, plan.Rate, c.cfg.MaxFrames)
	if err != nil {
		return nil, Plan{}, err
	}
	if schedule.Empty() {
		return nil, Plan{}, entity.ErrEmptyMedia
	}
	plan.Schedule = schedule
	plan.Delay = schedule.Step()

	c.logger.Debug("conversion planned",
		zap.String("source", src.Path),
		zap.String("strategy", strategy.Name()),
		zap.Int("sample_rate", plan.Rate),
		zap.Bool("native_rate", plan.Native),
		zap.Int("samples", schedule.Len()),
		zap.Float64("delay", plan.Delay),
	)
	return strategy, plan, nil
}

func (c *Converter) run(ctx context.Context, src Source, strategy Strategy, plan Plan) (Result, error) {
	tracer := otel.Tracer("conversion")
	ctx, span := tracer.Start(ctx, "convert_gif")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversion.strategy", strategy.Name()),
		attribute.Int("conversion.sample_rate", plan.Rate),
		attribute.Int("conversion.samples", plan.Schedule.Len()),
	)

	start := time.Now()
	dest := filepath.Join(c.cfg.OutputDir, uuid.NewString()+".gif")

	h, err := c.encoder.Open(dest, plan.Schedule.Len())
	if err != nil {
		if !errors.Is(err, entity.ErrDestinationCreateFailed) {
			err = fmt.Errorf("%w: %v", entity.ErrDestinationCreateFailed, err)
		}
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	h.SetLoopForever()

	var appended int
	emit := func(f entity.Frame) error {
		if err := h.AppendFrame(f.Image, plan.Delay); err != nil {
			return fmt.Errorf("append frame %d: %w", f.Point.Index, err)
		}
		appended++
		return nil
	}

	collectCtx, spanCollect := tracer.Start(ctx, "collect_frames")
	err = strategy.Collect(collectCtx, src, plan, emit)
	spanCollect.End()
	if err != nil {
		h.Abort()
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("%s conversion: %w", strategy.Name(), err)
	}

	_, spanFinalize := tracer.Start(ctx, "finalize_gif")
	err = h.Finalize()
	spanFinalize.End()
	if err != nil {
		h.Abort()
		if !errors.Is(err, entity.ErrFinalizeFailed) {
			err = fmt.Errorf("%w: %v", entity.ErrFinalizeFailed, err)
		}
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	metrics.ConversionDuration.WithLabelValues(strategy.Name()).Observe(time.Since(start).Seconds())

	return Result{
		Path:       dest,
		Strategy:   strategy.Name(),
		SampleRate: plan.Rate,
		Requested:  plan.Schedule.Len(),
		FrameCount: appended,
		Delay:      plan.Delay,
		Duration:   plan.Schedule.Duration().Seconds(),
	}, nil
}
