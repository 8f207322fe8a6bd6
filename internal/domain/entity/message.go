package entity

import "github.com/google/uuid"

// GifConversionMessage is the inbound message from the gif.conversion queue.
// SampleRate is optional; when absent the source's native rate is used.
type GifConversionMessage struct {
	JobID      uuid.UUID `json:"job_id"`
	UserID     string    `json:"user_id"`
	VideoKey   string    `json:"video_key"`
	FileSize   int64     `json:"file_size"`
	UserEmail  string    `json:"user_email"`
	SampleRate *int      `json:"sample_rate,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	BestEffort bool      `json:"best_effort,omitempty"`
}

// GifStatusMessage is the outbound message published to the gif.status queue.
type GifStatusMessage struct {
	JobID           uuid.UUID `json:"job_id"`
	UserID          string    `json:"user_id"`
	Status          JobStatus `json:"status"`
	VideoKey        string    `json:"video_key"`
	GifKey          string    `json:"gif_key,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
	SampleRate      int       `json:"sample_rate,omitempty"`
	FrameCount      int       `json:"frame_count,omitempty"`
	RequestedFrames int       `json:"requested_frames,omitempty"`
	Duration        float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Attempt         int       `json:"attempt"`
	MaxAttempts     int       `json:"max_attempts"`
}

// FailureNotice is what the user is told when a job fails for good.
type FailureNotice struct {
	UserEmail string
	JobID     string
	VideoKey  string
	Reason    string
}
