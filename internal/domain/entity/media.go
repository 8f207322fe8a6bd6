package entity

import (
	"image"
	"math"
	"strconv"
)

// DefaultTimescale is used when the container does not report a time base.
// It matches ffmpeg's AV_TIME_BASE (microseconds).
const DefaultTimescale int32 = 1_000_000

// MediaTime is a rational timestamp: Value / Scale seconds.
type MediaTime struct {
	Value int64
	Scale int32
}

// MediaTimeFromSeconds rounds sec to the nearest tick of scale.
func MediaTimeFromSeconds(sec float64, scale int32) MediaTime {
	if scale <= 0 {
		scale = DefaultTimescale
	}
	return MediaTime{Value: int64(math.Round(sec * float64(scale))), Scale: scale}
}

func (t MediaTime) Seconds() float64 {
	if t.Scale <= 0 {
		return 0
	}
	return float64(t.Value) / float64(t.Scale)
}

func (t MediaTime) IsZero() bool {
	return t.Value == 0
}

// Compare returns -1, 0 or +1. Timestamps with different scales are compared
// exactly by cross-multiplication.
func (t MediaTime) Compare(o MediaTime) int {
	ts, us := int64(t.Scale), int64(o.Scale)
	if ts <= 0 {
		ts = 1
	}
	if us <= 0 {
		us = 1
	}
	l, r := t.Value*us, o.Value*ts
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

// FFmpegArg formats the timestamp for ffmpeg's -ss option.
func (t MediaTime) FFmpegArg() string {
	return strconv.FormatFloat(t.Seconds(), 'f', 6, 64)
}

// MediaInfo is what probing a source reports about its first video stream.
type MediaInfo struct {
	Duration  MediaTime
	Width     int
	Height    int
	FrameRate float64
	HasVideo  bool
}

// NativeSampleRate is the stream frame rate rounded to whole frames per second.
func (m MediaInfo) NativeSampleRate() int {
	return int(math.Round(m.FrameRate))
}

// SamplePoint is one entry of a sampling schedule. Index is assigned when the
// schedule is built and never changes.
type SamplePoint struct {
	Index   int
	Seconds float64
	Time    MediaTime
}

// Frame is a decoded still image. Actual is the timestamp the decoder landed
// on, which may differ from the requested point by up to the seek tolerance.
type Frame struct {
	Point  SamplePoint
	Actual MediaTime
	Image  image.Image
}

// FrameResult is the outcome of one frame request.
type FrameResult struct {
	Point SamplePoint
	Frame Frame
	Err   error
}

func (r FrameResult) OK() bool {
	return r.Err == nil && r.Frame.Image != nil
}
