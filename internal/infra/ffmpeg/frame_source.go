package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ptsTimePattern = regexp.MustCompile(`pts_time:\s*(-?[0-9]+(?:\.[0-9]+)?)`)

// FrameGrabber decodes single frames by seeking with ffmpeg, one process per
// frame. It serves both the one-at-a-time and the bulk request styles.
type FrameGrabber struct {
	bin     string
	workers int
	logger  *zap.Logger
}

func NewFrameGrabber(bin string, workers int, logger *zap.Logger) *FrameGrabber {
	if bin == "" {
		bin = "ffmpeg"
	}
	if workers < 1 {
		workers = 1
	}
	return &FrameGrabber{bin: bin, workers: workers, logger: logger}
}

func (g *FrameGrabber) RequestFrame(ctx context.Context, path string, point entity.SamplePoint, tolerance time.Duration) (entity.Frame, error) {
	if err := ctx.Err(); err != nil {
		return entity.Frame{}, err
	}

	cmd := exec.CommandContext(ctx, g.bin,
		"-hide_banner",
		"-nostdin",
		"-v", "info",
		"-ss", point.Time.FFmpegArg(),
		"-i", path,
		"-frames:v", "1",
		"-vf", "showinfo",
		"-an",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entity.Frame{}, ctxErr
		}
		return entity.Frame{}, fmt.Errorf("ffmpeg error: %w, output: %s", err, lastLines(stderr.Bytes(), 5))
	}
	if stdout.Len() == 0 {
		return entity.Frame{}, fmt.Errorf("no frame decoded at %ss", point.Time.FFmpegArg())
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return entity.Frame{}, fmt.Errorf("decode frame at %ss: %w", point.Time.FFmpegArg(), err)
	}

	actual := point.Time
	if offset, ok := parsePTSOffset(stderr.Bytes()); ok {
		actual = entity.MediaTimeFromSeconds(point.Seconds+offset, point.Time.Scale)
		if tolerance > 0 && math.Abs(offset) > tolerance.Seconds() {
			g.logger.Debug("decoded frame outside tolerance",
				zap.Int("index", point.Index),
				zap.Float64("requested", point.Seconds),
				zap.Float64("offset", offset),
				zap.Duration("tolerance", tolerance),
			)
		}
	}

	return entity.Frame{Point: point, Actual: actual, Image: img}, nil
}

// RequestFrames fans the points out over at most g.workers concurrent ffmpeg
// processes. A failing point does not stop its siblings.
func (g *FrameGrabber) RequestFrames(ctx context.Context, path string, points []entity.SamplePoint, tolerance time.Duration, onResult func(entity.FrameResult)) {
	go func() {
		var eg errgroup.Group
		eg.SetLimit(g.workers)

		for _, p := range points {
			p := p
			eg.Go(func() error {
				frame, err := g.RequestFrame(ctx, path, p, tolerance)
				onResult(entity.FrameResult{Point: p, Frame: frame, Err: err})
				return nil
			})
		}
		_ = eg.Wait()

		g.logger.Debug("bulk frame requests drained", zap.Int("points", len(points)))
	}()
}

// parsePTSOffset reads the first frame's pts_time from showinfo output. With
// input seeking the timestamps restart at zero, so the value is the distance
// between the requested time and the frame actually decoded.
func parsePTSOffset(stderr []byte) (float64, bool) {
	m := ptsTimePattern.FindSubmatch(stderr)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lastLines(b []byte, n int) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return string(bytes.Join(lines, []byte("\n")))
}
