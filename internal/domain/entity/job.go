package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Conversion strategy names, as carried in messages and stored on jobs.
const (
	StrategySequential = "sequential"
	StrategyConcurrent = "concurrent"
	StrategyStreaming  = "streaming"
)

// Strategies lists the built-in strategy names.
var Strategies = []string{StrategySequential, StrategyConcurrent, StrategyStreaming}

// ConversionJob tracks one video-to-GIF request across retries.
type ConversionJob struct {
	ID              uuid.UUID
	UserID          string
	VideoKey        string
	GifKey          string
	Strategy        string
	SampleRate      int
	Status          JobStatus
	FrameCount      int
	RequestedFrames int
	FileSize        int64
	VideoDuration   float64
	Attempt         int
	MaxAttempts     int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func NewConversionJob(userID, videoKey, strategy string, fileSize int64, maxAttempts int) *ConversionJob {
	now := time.Now().UTC()
	return &ConversionJob{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		Strategy:    strategy,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *ConversionJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records the uploaded GIF and what the conversion produced.
// sampleRate is the rate actually used, which may be the source's native one.
func (j *ConversionJob) MarkCompleted(gifKey string, sampleRate, frameCount, requested int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.GifKey = gifKey
	j.SampleRate = sampleRate
	j.FrameCount = frameCount
	j.RequestedFrames = requested
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *ConversionJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

// Exhaust burns the remaining attempts so CanRetry reports false. Used for
// failures that another attempt cannot fix.
func (j *ConversionJob) Exhaust() {
	if j.Attempt < j.MaxAttempts {
		j.Attempt = j.MaxAttempts
	}
}

func (j *ConversionJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
