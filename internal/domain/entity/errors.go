package entity

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSampleRate       = errors.New("invalid sample rate")
	ErrNoVideoTrack            = errors.New("source has no video track")
	ErrEmptyMedia              = errors.New("source has zero duration")
	ErrUnknownStrategy         = errors.New("unknown conversion strategy")
	ErrDestinationCreateFailed = errors.New("could not create output destination")
	ErrFinalizeFailed          = errors.New("could not finalize output")
	ErrDuplicateSubmission     = errors.New("duplicate frame submission")
	ErrUnknownSamplePoint      = errors.New("frame submitted for unknown sample point")
	ErrPartialResult           = errors.New("partial result")
	ErrTooManySamples          = errors.New("schedule exceeds the sample limit")
)

// PartialResultError reports a collection that ended with fewer frames than
// were requested, either because some requests failed or because the wait
// was released by its context.
type PartialResultError struct {
	Requested int
	Succeeded int
	Failed    int
	// Cause is the first per-frame failure, or the context error when the
	// wait was cut short.
	Cause error
}

func (e *PartialResultError) Error() string {
	msg := fmt.Sprintf("partial result: %d/%d frames collected, %d failed", e.Succeeded, e.Requested, e.Failed)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Missing is the number of requests that never reported.
func (e *PartialResultError) Missing() int {
	return e.Requested - e.Succeeded - e.Failed
}

func (e *PartialResultError) Is(target error) bool {
	return target == ErrPartialResult
}

func (e *PartialResultError) Unwrap() error {
	return e.Cause
}

// IsPermanent reports whether retrying the same request can never succeed.
func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrInvalidSampleRate,
		ErrNoVideoTrack,
		ErrEmptyMedia,
		ErrUnknownStrategy,
		ErrDuplicateSubmission,
		ErrUnknownSamplePoint,
		ErrTooManySamples,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrUndecodableFrame marks a single frame a decode stream could not turn
// into an image. The stream itself is still usable.
var ErrUndecodableFrame = errors.New("undecodable frame")

var ErrJobNotFound = errors.New("job not found")
