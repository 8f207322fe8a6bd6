package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.ConversionJob) error {
	query := `
		INSERT INTO gif_jobs (
			id, user_id, video_key, gif_key, strategy, sample_rate, status,
			frame_count, requested_frames, file_size, video_duration,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.GifKey, job.Strategy, job.SampleRate,
		string(job.Status), job.FrameCount, job.RequestedFrames, job.FileSize,
		job.VideoDuration, job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.ConversionJob) error {
	query := `
		UPDATE gif_jobs SET
			status=$2, gif_key=$3, strategy=$4, sample_rate=$5, frame_count=$6,
			requested_frames=$7, video_duration=$8, attempt=$9, error_message=$10,
			updated_at=$11, completed_at=$12
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.GifKey, job.Strategy, job.SampleRate,
		job.FrameCount, job.RequestedFrames, job.VideoDuration, job.Attempt,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, entity.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ConversionJob, error) {
	query := `
		SELECT id, user_id, video_key, gif_key, strategy, sample_rate, status,
			frame_count, requested_frames, file_size, video_duration,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		FROM gif_jobs WHERE id=$1`

	job := &entity.ConversionJob{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.GifKey, &job.Strategy, &job.SampleRate,
		&status, &job.FrameCount, &job.RequestedFrames, &job.FileSize, &job.VideoDuration,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
