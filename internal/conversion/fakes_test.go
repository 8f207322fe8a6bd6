package conversion

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/fiapx/fiapx-gif-service/internal/domain/port"
)

// frameImage encodes the sample index in the single pixel so the encoder
// fake can tell frames apart.
func frameImage(index int) image.Image {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.Pix[0] = uint8(index)
	return img
}

type fakeProber struct {
	info  entity.MediaInfo
	err   error
	calls atomic.Int32
}

func (p *fakeProber) Probe(context.Context, string) (entity.MediaInfo, error) {
	p.calls.Add(1)
	return p.info, p.err
}

func videoInfo(seconds float64, fps float64) entity.MediaInfo {
	return entity.MediaInfo{
		Duration:  entity.MediaTimeFromSeconds(seconds, 600),
		Width:     4,
		Height:    4,
		FrameRate: fps,
		HasVideo:  true,
	}
}

// fakeSource serves both request styles. Bulk requests report in the
// order given by order (schedule indexes), or in schedule order when nil.
type fakeSource struct {
	failAt   map[int]error
	hangAt   map[int]bool
	dupAt    map[int]bool
	order    []int
	parallel bool
	calls    atomic.Int32
	released chan struct{}
}

func (s *fakeSource) frame(p entity.SamplePoint) (entity.Frame, error) {
	s.calls.Add(1)
	if err := s.failAt[p.Index]; err != nil {
		return entity.Frame{}, err
	}
	return entity.Frame{Point: p, Actual: p.Time, Image: frameImage(p.Index)}, nil
}

func (s *fakeSource) RequestFrame(_ context.Context, _ string, p entity.SamplePoint, _ time.Duration) (entity.Frame, error) {
	return s.frame(p)
}

func (s *fakeSource) RequestFrames(ctx context.Context, _ string, points []entity.SamplePoint, _ time.Duration, onResult func(entity.FrameResult)) {
	order := s.order
	if order == nil {
		for i := range points {
			order = append(order, i)
		}
	}

	report := func(p entity.SamplePoint) {
		if s.hangAt[p.Index] {
			// never reports on its own; gives up when the request is cancelled
			go func() {
				<-ctx.Done()
				if s.released != nil {
					s.released <- struct{}{}
				}
			}()
			return
		}
		f, err := s.frame(p)
		onResult(entity.FrameResult{Point: p, Frame: f, Err: err})
		if s.dupAt[p.Index] {
			onResult(entity.FrameResult{Point: p, Frame: f, Err: err})
		}
	}

	if !s.parallel {
		for _, i := range order {
			report(points[i])
		}
		return
	}
	for _, i := range order {
		go report(points[i])
	}
}

type fakeStreamer struct {
	frames   []entity.Frame
	errs     map[int]error
	openErr  error
	gotRate  int
	closed   bool
	position int
}

func (s *fakeStreamer) Open(_ context.Context, _ string, _ entity.MediaInfo, rate int) (port.FrameReader, error) {
	s.gotRate = rate
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s, nil
}

func (s *fakeStreamer) Next(context.Context) (entity.Frame, error) {
	for s.position < len(s.frames) {
		i := s.position
		s.position++
		if err := s.errs[i]; err != nil {
			return entity.Frame{}, err
		}
		return s.frames[i], nil
	}
	return entity.Frame{}, io.EOF
}

func (s *fakeStreamer) Close() error {
	s.closed = true
	return nil
}

type fakeEncoder struct {
	openErr     error
	finalizeErr error

	mu          sync.Mutex
	destination string
	expected    int
	loopForever bool
	indexes     []int
	delays      []float64
	finalized   bool
	aborted     bool
}

func (e *fakeEncoder) Open(destination string, expected int) (port.EncoderHandle, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.destination = destination
	e.expected = expected
	return e, nil
}

func (e *fakeEncoder) SetLoopForever() { e.loopForever = true }

func (e *fakeEncoder) AppendFrame(img image.Image, delay float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := img.(*image.Gray)
	if !ok {
		return errors.New("unexpected image type")
	}
	e.indexes = append(e.indexes, int(g.Pix[0]))
	e.delays = append(e.delays, delay)
	return nil
}

func (e *fakeEncoder) Finalize() error {
	if e.finalizeErr != nil {
		return e.finalizeErr
	}
	e.finalized = true
	return nil
}

func (e *fakeEncoder) Abort() { e.aborted = true }
