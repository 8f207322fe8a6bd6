package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-gif-service/internal/conversion"
	"github.com/fiapx/fiapx-gif-service/internal/infra/config"
	"github.com/fiapx/fiapx-gif-service/internal/infra/email"
	"github.com/fiapx/fiapx-gif-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-gif-service/internal/infra/gif"
	"github.com/fiapx/fiapx-gif-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-gif-service/internal/infra/minio"
	"github.com/fiapx/fiapx-gif-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-gif-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-gif-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-gif-service/internal/usecase"
	"github.com/fiapx/fiapx-gif-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-gif-service",
		zap.String("strategy", cfg.GifStrategy),
		zap.Int("sample_rate", cfg.GifSampleRate),
		zap.Int("ffmpeg_workers", cfg.FFmpegWorkers),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		GifBucket:    cfg.MinIOGifBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	fatalOnErr(os.MkdirAll(cfg.TempDir, 0755), "create temp dir")

	// Conversion core
	grabber := ffmpeg.NewFrameGrabber(cfg.FFmpegBin, cfg.FFmpegWorkers, log)
	converter := conversion.NewConverter(
		ffmpeg.NewProber(cfg.FFprobeBin, log),
		gif.NewEncoder(cfg.GifMaxWidth, log),
		conversion.ConverterConfig{
			OutputDir:       cfg.TempDir,
			DefaultStrategy: cfg.GifStrategy,
			Tolerance:       cfg.Tolerance(),
			CollectTimeout:  cfg.GifCollectTimeout,
			MaxFrames:       cfg.GifMaxFrames,
		},
		log,
		conversion.NewSequential(grabber, log),
		conversion.NewConcurrent(grabber, log),
		conversion.NewStreaming(ffmpeg.NewStreamer(cfg.FFmpegBin, log), log),
	)

	repo := postgres.NewJobRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewConvertGifUseCase(
		repo, storage, converter,
		statusPub, dlqPub, notifier,
		log,
		usecase.ConvertGifConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
			SampleRate: cfg.DefaultSampleRate(),
			Strategy:   cfg.GifStrategy,
			BestEffort: cfg.GifBestEffort,
		},
	)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQConversionQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log,
		metrics.ReadinessCheck{Name: "postgres", Check: pool.Ping},
		metrics.ReadinessCheck{Name: "minio", Check: storage.Ping},
		metrics.ReadinessCheck{Name: "rabbitmq", Check: consumer.Ping},
	)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("fiapx-gif-service started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-gif-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
