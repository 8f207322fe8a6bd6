package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-gif-service/internal/conversion"
	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/fiapx/fiapx-gif-service/internal/domain/port"
	"github.com/fiapx/fiapx-gif-service/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// GifConverter turns a local video file into a local GIF file.
type GifConverter interface {
	Convert(ctx context.Context, src conversion.Source, opts conversion.Options) (conversion.Result, error)
}

type ConvertGifUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	converter GifConverter
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       ConvertGifConfig
}

type ConvertGifConfig struct {
	TempDir    string
	MaxRetries int
	// SampleRate applies when the message carries none; nil means native.
	SampleRate *int
	Strategy   string
	BestEffort bool
}

func NewConvertGifUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	converter GifConverter,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ConvertGifConfig,
) *ConvertGifUseCase {
	return &ConvertGifUseCase{
		repo:      repo,
		storage:   storage,
		converter: converter,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// Execute handles one gif.conversion delivery. A nil return acks the
// message, including messages parked on the DLQ; an error requeues it.
func (uc *ConvertGifUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ConvertGifUseCase.Execute", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	totalTimer := time.Now()

	var msg entity.GifConversionMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}
	if msg.JobID == uuid.Nil || msg.VideoKey == "" {
		uc.logger.Error("message missing job_id or video_key", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: job_id and video_key are required")
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		job = entity.NewConversionJob(msg.UserID, msg.VideoKey, msg.Strategy, msg.FileSize, uc.cfg.MaxRetries)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("find job: %w", err)
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, skipping redelivery", zap.String("gif_key", job.GifKey))
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.convertPipeline(ctx, job, msg, rawMsg, log); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if job.Status != entity.JobStatusCompleted {
		return nil
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ConvertGifUseCase) options(msg entity.GifConversionMessage) conversion.Options {
	opts := conversion.Options{
		SampleRate: uc.cfg.SampleRate,
		Strategy:   uc.cfg.Strategy,
		BestEffort: uc.cfg.BestEffort || msg.BestEffort,
	}
	if msg.SampleRate != nil {
		opts.SampleRate = msg.SampleRate
	}
	if msg.Strategy != "" {
		opts.Strategy = msg.Strategy
	}
	return opts
}

func (uc *ConvertGifUseCase) convertPipeline(
	ctx context.Context,
	job *entity.ConversionJob,
	msg entity.GifConversionMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video from MinIO
	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	if err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Convert to GIF
	convStart := time.Now()
	opts := uc.options(msg)
	res, err := uc.converter.Convert(ctx, conversion.Source{Path: videoPath}, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("gif conversion interrupted, requeueing", zap.Error(err))
			return uc.handleRetryableFailure(context.WithoutCancel(ctx), job, msg, rawMsg, "convert_gif: "+err.Error(), log)
		}
		log.Error("gif conversion failed", zap.String("strategy", opts.Strategy), zap.Error(err))
		if entity.IsPermanent(err) || errors.Is(err, entity.ErrPartialResult) {
			job.Exhaust()
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "convert_gif: "+err.Error(), log)
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "convert_gif: "+err.Error(), log)
	}
	defer os.Remove(res.Path)
	metrics.JobProcessingDuration.WithLabelValues("convert").Observe(time.Since(convStart).Seconds())

	// Upload GIF to MinIO
	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "upload_gif")
	gifKey := fmt.Sprintf("%s/%s.gif", msg.UserID, job.ID.String())
	gifFile, err := os.Open(res.Path)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_gif: "+err.Error(), log)
	}
	defer gifFile.Close()
	stat, err := gifFile.Stat()
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "stat_gif: "+err.Error(), log)
	}
	if err := uc.storage.UploadGif(ctxUp, gifKey, gifFile, stat.Size()); err != nil {
		spanUp.End()
		log.Error("gif upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_gif: "+err.Error(), log)
	}
	spanUp.End()
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	// Mark completed
	job.Strategy = res.Strategy
	job.MarkCompleted(gifKey, res.SampleRate, res.FrameCount, res.Requested, res.Duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.String("strategy", res.Strategy),
		zap.Int("sample_rate", res.SampleRate),
		zap.Int("frame_count", res.FrameCount),
		zap.Int("requested_frames", res.Requested),
		zap.Float64("duration_secs", res.Duration),
		zap.String("gif_key", gifKey),
	)

	return nil
}

func (uc *ConvertGifUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.ConversionJob,
	msg entity.GifConversionMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ConvertGifUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.ConversionJob,
	msg entity.GifConversionMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg); err != nil {
		log.Error("failed to publish to DLQ", zap.Error(err))
	}

	uc.publishStatus(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, entity.FailureNotice{
			UserEmail: msg.UserEmail,
			JobID:     job.ID.String(),
			VideoKey:  msg.VideoKey,
			Reason:    errMsg,
		})
	}

	return nil
}

func (uc *ConvertGifUseCase) publishStatus(ctx context.Context, job *entity.ConversionJob, log *zap.Logger) {
	status := entity.GifStatusMessage{
		JobID:           job.ID,
		UserID:          job.UserID,
		Status:          job.Status,
		VideoKey:        job.VideoKey,
		GifKey:          job.GifKey,
		Strategy:        job.Strategy,
		SampleRate:      job.SampleRate,
		FrameCount:      job.FrameCount,
		RequestedFrames: job.RequestedFrames,
		Duration:        job.VideoDuration,
		ErrorMessage:    job.ErrorMessage,
		Attempt:         job.Attempt,
		MaxAttempts:     job.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, status); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
