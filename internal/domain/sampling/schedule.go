// Package sampling builds sample schedules over a media duration and
// collects the frames decoded for them.
package sampling

import (
	"fmt"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
)

// Schedule is an immutable, strictly increasing list of sample points
// covering [0, duration).
type Schedule struct {
	points   []entity.SamplePoint
	step     float64
	rate     int
	duration entity.MediaTime
}

// DefaultMaxSamples bounds a schedule built without an explicit limit.
const DefaultMaxSamples = 3000

// BuildSchedule places samples every 1/sampleRate seconds, starting at zero
// and stopping before duration, with at most DefaultMaxSamples points.
//
// The running timestamp is accumulated by repeated addition rather than
// computed as index*step, so floating point drift can add one trailing
// sample (e.g. 1s at 10/s yields 11 points, the last at 0.9999999999999999).
// Downstream consumers rely on that placement.
func BuildSchedule(duration entity.MediaTime, sampleRate int) (Schedule, error) {
	return BuildBoundedSchedule(duration, sampleRate, DefaultMaxSamples)
}

// BuildBoundedSchedule is BuildSchedule with an explicit cap on the number
// of points. A schedule that would exceed maxSamples fails with
// ErrTooManySamples; maxSamples <= 0 means DefaultMaxSamples.
func BuildBoundedSchedule(duration entity.MediaTime, sampleRate, maxSamples int) (Schedule, error) {
	if sampleRate <= 0 {
		return Schedule{}, fmt.Errorf("%w: %d", entity.ErrInvalidSampleRate, sampleRate)
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}

	s := Schedule{rate: sampleRate, duration: duration}
	secs := duration.Seconds()
	if secs <= 0 {
		return s, nil
	}

	totalFrames := secs * float64(sampleRate)
	if totalFrames > float64(maxSamples) {
		return Schedule{}, tooMany(secs, sampleRate, maxSamples)
	}
	s.step = secs / totalFrames

	s.points = make([]entity.SamplePoint, 0, min(int(totalFrames)+1, maxSamples))
	for t := 0.0; t < secs; t += s.step {
		if len(s.points) == maxSamples {
			return Schedule{}, tooMany(secs, sampleRate, maxSamples)
		}
		s.points = append(s.points, entity.SamplePoint{
			Index:   len(s.points),
			Seconds: t,
			Time:    entity.MediaTimeFromSeconds(t, duration.Scale),
		})
	}
	return s, nil
}

func tooMany(secs float64, rate, limit int) error {
	return fmt.Errorf("%w: %.3fs at %d/s exceeds %d samples", entity.ErrTooManySamples, secs, rate, limit)
}

func (s Schedule) Len() int { return len(s.points) }

func (s Schedule) Empty() bool { return len(s.points) == 0 }

// Step is the spacing between samples in seconds, and the per-frame delay
// of the resulting animation.
func (s Schedule) Step() float64 { return s.step }

func (s Schedule) Rate() int { return s.rate }

func (s Schedule) Duration() entity.MediaTime { return s.duration }

// Points returns a copy of the schedule's sample points.
func (s Schedule) Points() []entity.SamplePoint {
	out := make([]entity.SamplePoint, len(s.points))
	copy(out, s.points)
	return out
}
