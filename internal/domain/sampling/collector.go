package sampling

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
)

var errNoImage = errors.New("frame request returned no image")

// OrderedFrames is a collection's successful frames, ascending by actual
// timestamp and then by schedule index.
type OrderedFrames []entity.Frame

// Collector gathers the results of the frame requests issued for one
// schedule. Results may arrive concurrently and in any order. Every point
// of the schedule must report exactly once, success or failure, and the
// waiter is released when the last one does.
//
// A Collector serves a single conversion and is not reusable.
type Collector struct {
	expected int
	done     chan struct{}

	mu        sync.Mutex
	seen      map[int]struct{}
	frames    []entity.Frame
	failed    int
	firstFail error
}

// Stats is a point-in-time view of a collection.
type Stats struct {
	Expected  int
	Succeeded int
	Failed    int
}

func (s Stats) Missing() int {
	return s.Expected - s.Succeeded - s.Failed
}

func NewCollector(schedule Schedule) *Collector {
	c := &Collector{
		expected: schedule.Len(),
		done:     make(chan struct{}),
		seen:     make(map[int]struct{}, schedule.Len()),
		frames:   make([]entity.Frame, 0, schedule.Len()),
	}
	if c.expected == 0 {
		close(c.done)
	}
	return c
}

// Submit records the result for one sample point. It never blocks on the
// waiter. A second result for the same point is rejected with
// entity.ErrDuplicateSubmission and leaves the collection untouched.
func (c *Collector) Submit(r entity.FrameResult) error {
	idx := r.Point.Index

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx < 0 || idx >= c.expected {
		return fmt.Errorf("%w: index %d of %d", entity.ErrUnknownSamplePoint, idx, c.expected)
	}
	if _, dup := c.seen[idx]; dup {
		return fmt.Errorf("%w: index %d", entity.ErrDuplicateSubmission, idx)
	}
	c.seen[idx] = struct{}{}

	if r.OK() {
		f := r.Frame
		f.Point = r.Point
		if f.Actual.Scale == 0 {
			f.Actual = r.Point.Time
		}
		c.frames = append(c.frames, f)
	} else {
		c.failed++
		if c.firstFail == nil {
			cause := r.Err
			if cause == nil {
				cause = errNoImage
			}
			c.firstFail = fmt.Errorf("sample %d at %.3fs: %w", idx, r.Point.Seconds, cause)
		}
	}

	if len(c.seen) == c.expected {
		close(c.done)
	}
	return nil
}

// Done is closed once every sample point has reported.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Await blocks until every point has reported or ctx ends, whichever comes
// first, and returns the successful frames in order. When any point failed
// or never reported, the frames gathered so far are returned together with
// an *entity.PartialResultError.
func (c *Collector) Await(ctx context.Context) (OrderedFrames, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
	}

	c.mu.Lock()
	frames := make(OrderedFrames, len(c.frames))
	copy(frames, c.frames)
	failed, firstFail := c.failed, c.firstFail
	complete := len(c.seen) == c.expected
	c.mu.Unlock()

	sortFrames(frames)

	if complete && failed == 0 {
		return frames, nil
	}

	cause := firstFail
	if !complete {
		cause = errors.Join(ctx.Err(), firstFail)
	}
	return frames, &entity.PartialResultError{
		Requested: c.expected,
		Succeeded: len(frames),
		Failed:    failed,
		Cause:     cause,
	}
}

func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Expected: c.expected, Succeeded: len(c.frames), Failed: c.failed}
}

func sortFrames(frames []entity.Frame) {
	slices.SortFunc(frames, func(a, b entity.Frame) int {
		if c := a.Actual.Compare(b.Actual); c != 0 {
			return c
		}
		return cmp.Compare(a.Point.Index, b.Point.Index)
	})
}
