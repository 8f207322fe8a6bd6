package conversion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	prober   *fakeProber
	source   *fakeSource
	streamer *fakeStreamer
	encoder  *fakeEncoder
	conv     *Converter
	outDir   string
}

func newHarness(t *testing.T, info entity.MediaInfo, cfg ConverterConfig) *harness {
	t.Helper()
	h := &harness{
		prober:   &fakeProber{info: info},
		source:   &fakeSource{},
		streamer: &fakeStreamer{},
		encoder:  &fakeEncoder{},
		outDir:   t.TempDir(),
	}
	cfg.OutputDir = h.outDir
	log := zap.NewNop()
	h.conv = NewConverter(h.prober, h.encoder, cfg, log,
		NewSequential(h.source, log),
		NewConcurrent(h.source, log),
		NewStreaming(h.streamer, log),
	)
	return h
}

func rate(n int) *int { return &n }

func TestConvertTwoSecondsAtTwoPerSecond(t *testing.T) {
	for _, strategy := range []string{StrategySequential, StrategyConcurrent} {
		t.Run(strategy, func(t *testing.T) {
			h := newHarness(t, videoInfo(2.0, 30), ConverterConfig{})

			res, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(2), Strategy: strategy})
			require.NoError(t, err)

			assert.Equal(t, []int{0, 1, 2, 3}, h.encoder.indexes)
			assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, h.encoder.delays)
			assert.True(t, h.encoder.loopForever)
			assert.True(t, h.encoder.finalized)
			assert.Equal(t, 4, h.encoder.expected)

			assert.Equal(t, 4, res.FrameCount)
			assert.Equal(t, 4, res.Requested)
			assert.Equal(t, 0.5, res.Delay)
			assert.Equal(t, 2, res.SampleRate)
			assert.Equal(t, strategy, res.Strategy)
			assert.Equal(t, h.encoder.destination, res.Path)
			assert.Equal(t, h.outDir, filepath.Dir(res.Path))
			assert.True(t, strings.HasSuffix(res.Path, ".gif"))
		})
	}
}

func TestConvertReordersOutOfOrderCompletions(t *testing.T) {
	h := newHarness(t, videoInfo(1.0, 30), ConverterConfig{})
	h.source.order = []int{2, 0, 1}

	res, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(3), Strategy: StrategyConcurrent})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, h.encoder.indexes)
	assert.Equal(t, 3, res.FrameCount)
}

func TestConvertParallelCompletions(t *testing.T) {
	h := newHarness(t, videoInfo(10.0, 30), ConverterConfig{CollectTimeout: 10 * time.Second})
	h.source.parallel = true

	res, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(20), Strategy: StrategyConcurrent})
	require.NoError(t, err)

	require.Equal(t, res.Requested, res.FrameCount)
	for i, idx := range h.encoder.indexes {
		assert.Equal(t, i, idx)
	}
}

func TestConvertFailedFrameReleasesWithPartialResult(t *testing.T) {
	decodeErr := errors.New("decode failed")
	h := newHarness(t, videoInfo(1.0, 30), ConverterConfig{})
	h.source.failAt = map[int]error{1: decodeErr}

	_, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(3), Strategy: StrategyConcurrent})

	require.ErrorIs(t, err, entity.ErrPartialResult)
	assert.ErrorIs(t, err, decodeErr)
	var partial *entity.PartialResultError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Succeeded)
	assert.Equal(t, 1, partial.Failed)
	assert.True(t, h.encoder.aborted, "partial artifact must be discarded")
	assert.False(t, h.encoder.finalized)
}

func TestConvertBestEffortKeepsPartialFrames(t *testing.T) {
	h := newHarness(t, videoInfo(1.0, 30), ConverterConfig{})
	h.source.failAt = map[int]error{1: errors.New("decode failed")}

	res, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{
		SampleRate: rate(3),
		Strategy:   StrategyConcurrent,
		BestEffort: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, h.encoder.indexes)
	assert.Equal(t, 2, res.FrameCount)
	assert.Equal(t, 3, res.Requested)
}

func TestConvertCollectTimeoutCancelsInFlightRequests(t *testing.T) {
	h := newHarness(t, videoInfo(2.0, 30), ConverterConfig{CollectTimeout: 50 * time.Millisecond})
	h.source.hangAt = map[int]bool{2: true}
	h.source.released = make(chan struct{}, 1)

	start := time.Now()
	_, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(2), Strategy: StrategyConcurrent})

	require.ErrorIs(t, err, entity.ErrPartialResult)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-h.source.released:
	case <-time.After(5 * time.Second):
		t.Fatal("hanging request was not cancelled")
	}
}

func TestConvertParentCancellationIsNotPartial(t *testing.T) {
	h := newHarness(t, videoInfo(2.0, 30), ConverterConfig{CollectTimeout: time.Minute})
	h.source.hangAt = map[int]bool{2: true}
	h.source.released = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := h.conv.Convert(ctx, Source{Path: "in.mp4"}, Options{
		SampleRate: rate(2),
		Strategy:   StrategyConcurrent,
		BestEffort: true,
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, entity.ErrPartialResult)
	assert.True(t, h.encoder.aborted)
	assert.False(t, h.encoder.finalized)

	select {
	case <-h.source.released:
	case <-time.After(5 * time.Second):
		t.Fatal("hanging request was not cancelled")
	}
}

func TestConvertRejectsScheduleOverFrameBudget(t *testing.T) {
	h := newHarness(t, videoInfo(2.0, 30), ConverterConfig{MaxFrames: 3})

	_, err := h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(2)})
	require.ErrorIs(t, err, entity.ErrTooManySamples)
	assert.True(t, entity.IsPermanent(err))
	assert.Zero(t, h.source.calls.Load())
	assert.Empty(t, h.encoder.destination, "encoder must not be opened")
}

func TestConvertDuplicateSubmissionFails(t *testing.T) {
	h := newHarness(t, videoInfo(1.0, 30), ConverterConfig{})
	h.source.dupAt = map[int]bool{0: true}

	_, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(3), Strategy: StrategyConcurrent})
	assert.ErrorIs(t, err, entity.ErrDuplicateSubmission)
	assert.True(t, h.encoder.aborted)
}

func TestConvertSequentialFailsFast(t *testing.T) {
	boom := errors.New("seek failed")
	h := newHarness(t, videoInfo(2.0, 30), ConverterConfig{})
	h.source.failAt = map[int]error{1: boom}

	_, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(2), Strategy: StrategySequential})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), h.source.calls.Load(), "no request after the failing one")
	assert.True(t, h.encoder.aborted)
	assert.False(t, h.encoder.finalized)
}

func TestConvertEmptyMediaNeverRequestsFrames(t *testing.T) {
	for _, strategy := range Strategies {
		h := newHarness(t, videoInfo(0, 30), ConverterConfig{})

		out, err := h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(10), Strategy: strategy})
		assert.ErrorIs(t, err, entity.ErrEmptyMedia, strategy)
		assert.Nil(t, out)
		assert.Zero(t, h.source.calls.Load())
		assert.Empty(t, h.encoder.destination, "encoder must not be opened")
	}
}

func TestConvertRejectsInvalidSampleRate(t *testing.T) {
	for _, r := range []int{0, -1} {
		h := newHarness(t, videoInfo(2, 30), ConverterConfig{})

		_, err := h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(r)})
		assert.ErrorIs(t, err, entity.ErrInvalidSampleRate)
		assert.Zero(t, h.prober.calls.Load(), "validation happens before probing")
	}
}

func TestConvertNativeRateUnknown(t *testing.T) {
	h := newHarness(t, videoInfo(2, 0), ConverterConfig{})

	_, err := h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{})
	assert.ErrorIs(t, err, entity.ErrInvalidSampleRate)
}

func TestConvertNoVideoTrack(t *testing.T) {
	h := newHarness(t, entity.MediaInfo{}, ConverterConfig{})
	_, err := h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{})
	assert.ErrorIs(t, err, entity.ErrNoVideoTrack)

	h = newHarness(t, entity.MediaInfo{}, ConverterConfig{})
	h.prober.err = entity.ErrNoVideoTrack
	_, err = h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{})
	assert.ErrorIs(t, err, entity.ErrNoVideoTrack)
}

func TestConvertUnknownStrategy(t *testing.T) {
	h := newHarness(t, videoInfo(2, 30), ConverterConfig{})
	_, err := h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{Strategy: "teleport"})
	assert.ErrorIs(t, err, entity.ErrUnknownStrategy)
}

func TestConvertUsesNativeRate(t *testing.T) {
	h := newHarness(t, videoInfo(2.0, 12), ConverterConfig{DefaultStrategy: StrategySequential})

	res, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 12, res.SampleRate)
	assert.InDelta(t, 24, res.Requested, 1)
	assert.InDelta(t, 1.0/12, res.Delay, 1e-12)
	assert.Equal(t, StrategySequential, res.Strategy)
}

func TestConvertDestinationCreateFailed(t *testing.T) {
	h := newHarness(t, videoInfo(2, 30), ConverterConfig{})
	h.encoder.openErr = errors.New("read-only file system")

	out, err := h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(2)})
	require.NoError(t, err, "destination errors are reported through the outcome")

	o := <-out
	assert.ErrorIs(t, o.Err, entity.ErrDestinationCreateFailed)
	assert.Zero(t, h.source.calls.Load())
}

func TestConvertFinalizeFailedDiscardsArtifact(t *testing.T) {
	h := newHarness(t, videoInfo(2, 30), ConverterConfig{})
	h.encoder.finalizeErr = errors.New("disk full")

	res, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(2)})
	assert.ErrorIs(t, err, entity.ErrFinalizeFailed)
	assert.Empty(t, res.Path)
	assert.True(t, h.encoder.aborted)
}

func TestStartDeliversExactlyOneOutcome(t *testing.T) {
	h := newHarness(t, videoInfo(2, 30), ConverterConfig{})

	out, err := h.conv.Start(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(2)})
	require.NoError(t, err)

	o, ok := <-out
	require.True(t, ok)
	require.NoError(t, o.Err)
	assert.Equal(t, 4, o.Result.FrameCount)

	_, ok = <-out
	assert.False(t, ok, "channel is closed after the outcome")
}

func TestConvertStreaming(t *testing.T) {
	h := newHarness(t, videoInfo(1.0, 4), ConverterConfig{})
	for i := 0; i < 4; i++ {
		p := entity.SamplePoint{Index: i, Seconds: float64(i) / 4, Time: entity.MediaTimeFromSeconds(float64(i)/4, 600)}
		h.streamer.frames = append(h.streamer.frames, entity.Frame{Point: p, Actual: p.Time, Image: frameImage(i)})
	}
	h.streamer.errs = map[int]error{2: entity.ErrUndecodableFrame}

	res, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{Strategy: StrategyStreaming})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 3}, h.encoder.indexes)
	assert.Equal(t, []float64{0.25, 0.25, 0.25}, h.encoder.delays)
	assert.True(t, h.encoder.loopForever)
	assert.Equal(t, 0, h.streamer.gotRate, "native rate streams every frame")
	assert.True(t, h.streamer.closed)
	assert.Equal(t, 3, res.FrameCount)
	assert.Equal(t, 4, res.Requested)
}

func TestConvertStreamingForcedRate(t *testing.T) {
	h := newHarness(t, videoInfo(1.0, 30), ConverterConfig{})
	h.streamer.frames = []entity.Frame{{Image: frameImage(0)}}

	_, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{SampleRate: rate(5), Strategy: StrategyStreaming})
	require.NoError(t, err)
	assert.Equal(t, 5, h.streamer.gotRate)
	assert.Equal(t, []float64{0.2}, h.encoder.delays)
}

func TestConvertStreamingReadError(t *testing.T) {
	readErr := errors.New("broken pipe")
	h := newHarness(t, videoInfo(1.0, 30), ConverterConfig{})
	h.streamer.frames = []entity.Frame{{Image: frameImage(0)}, {Image: frameImage(1)}}
	h.streamer.errs = map[int]error{1: readErr}

	_, err := h.conv.Convert(context.Background(), Source{Path: "in.mp4"}, Options{Strategy: StrategyStreaming})
	assert.ErrorIs(t, err, readErr)
	assert.True(t, h.encoder.aborted)
}
