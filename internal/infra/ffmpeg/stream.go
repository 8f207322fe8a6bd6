package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/fiapx/fiapx-gif-service/internal/domain/port"
	"go.uber.org/zap"
)

// Streamer decodes a whole video in one ffmpeg process and hands out raw
// RGBA frames in presentation order.
type Streamer struct {
	bin    string
	logger *zap.Logger
}

func NewStreamer(bin string, logger *zap.Logger) *Streamer {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Streamer{bin: bin, logger: logger}
}

func (s *Streamer) Open(ctx context.Context, path string, info entity.MediaInfo, rate int) (port.FrameReader, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("stream %s: unknown frame size %dx%d", path, info.Width, info.Height)
	}

	args := []string{"-hide_banner", "-nostdin", "-v", "error", "-i", path}
	if rate > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%d", rate))
	}
	args = append(args, "-an", "-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")

	cmd := exec.CommandContext(ctx, s.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	r := &rawFrameReader{
		cmd:       cmd,
		width:     info.Width,
		height:    info.Height,
		frameSize: info.Width * info.Height * 4,
		fps:       float64(rate),
		scale:     info.Duration.Scale,
		logger:    s.logger,
	}
	if r.fps <= 0 {
		r.fps = info.FrameRate
	}
	cmd.Stderr = &r.stderr
	r.out = bufio.NewReaderSize(stdout, r.frameSize)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return r, nil
}

type rawFrameReader struct {
	cmd       *exec.Cmd
	out       *bufio.Reader
	stderr    bytes.Buffer
	width     int
	height    int
	frameSize int
	fps       float64
	scale     int32
	index     int
	waited    bool
	waitErr   error
	logger    *zap.Logger
}

func (r *rawFrameReader) Next(ctx context.Context) (entity.Frame, error) {
	if err := ctx.Err(); err != nil {
		return entity.Frame{}, err
	}
	if r.waited {
		return entity.Frame{}, io.EOF
	}

	buf := make([]byte, r.frameSize)
	n, err := io.ReadFull(r.out, buf)
	switch {
	case errors.Is(err, io.EOF):
		if werr := r.wait(); werr != nil {
			return entity.Frame{}, fmt.Errorf("ffmpeg stream: %w, output: %s", werr, lastLines(r.stderr.Bytes(), 5))
		}
		return entity.Frame{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.index++
		return entity.Frame{}, fmt.Errorf("%w: truncated frame %d (%d of %d bytes)", entity.ErrUndecodableFrame, r.index-1, n, r.frameSize)
	case err != nil:
		return entity.Frame{}, fmt.Errorf("read frame %d: %w", r.index, err)
	}

	var seconds float64
	if r.fps > 0 {
		seconds = float64(r.index) / r.fps
	}
	ts := entity.MediaTimeFromSeconds(seconds, r.scale)
	frame := entity.Frame{
		Point:  entity.SamplePoint{Index: r.index, Seconds: seconds, Time: ts},
		Actual: ts,
		Image: &image.RGBA{
			Pix:    buf,
			Stride: 4 * r.width,
			Rect:   image.Rect(0, 0, r.width, r.height),
		},
	}
	r.index++
	return frame, nil
}

func (r *rawFrameReader) Close() error {
	if r.waited {
		return nil
	}
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.wait()
	r.logger.Debug("frame stream closed", zap.Int("frames_read", r.index))
	return nil
}

func (r *rawFrameReader) wait() error {
	if !r.waited {
		r.waited = true
		r.waitErr = r.cmd.Wait()
	}
	return r.waitErr
}
