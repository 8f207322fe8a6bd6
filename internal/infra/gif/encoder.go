// Package gif writes frame sequences into looping animated GIF files.
package gif

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"math"
	"os"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/fiapx/fiapx-gif-service/internal/domain/port"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

var errHandleClosed = errors.New("gif handle already closed")

type Encoder struct {
	maxWidth int
	logger   *zap.Logger
}

// NewEncoder returns an encoder that downscales frames wider than maxWidth,
// keeping the aspect ratio. A maxWidth of 0 keeps the source size.
func NewEncoder(maxWidth int, logger *zap.Logger) *Encoder {
	return &Encoder{maxWidth: maxWidth, logger: logger}
}

func (e *Encoder) Open(destination string, expectedFrames int) (port.EncoderHandle, error) {
	f, err := os.Create(destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDestinationCreateFailed, err)
	}
	if expectedFrames < 0 {
		expectedFrames = 0
	}
	return &handle{
		file:     f,
		path:     destination,
		maxWidth: e.maxWidth,
		logger:   e.logger,
		anim: &gif.GIF{
			Image:     make([]*image.Paletted, 0, expectedFrames),
			Delay:     make([]int, 0, expectedFrames),
			LoopCount: -1,
		},
	}, nil
}

type handle struct {
	file     *os.File
	path     string
	maxWidth int
	anim     *gif.GIF
	closed   bool
	logger   *zap.Logger
}

// SetLoopForever makes the animation repeat indefinitely.
func (h *handle) SetLoopForever() {
	h.anim.LoopCount = 0
}

func (h *handle) AppendFrame(img image.Image, delaySeconds float64) error {
	if h.closed {
		return errHandleClosed
	}
	if img == nil {
		return errors.New("append nil image")
	}

	src := h.scale(img)
	b := src.Bounds()
	paletted := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette.Plan9)
	draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), src, b.Min)

	h.anim.Image = append(h.anim.Image, paletted)
	h.anim.Delay = append(h.anim.Delay, centiseconds(delaySeconds))
	return nil
}

func (h *handle) Finalize() error {
	if h.closed {
		return fmt.Errorf("%w: %v", entity.ErrFinalizeFailed, errHandleClosed)
	}
	if len(h.anim.Image) == 0 {
		h.Abort()
		return fmt.Errorf("%w: no frames appended", entity.ErrFinalizeFailed)
	}

	w := bufio.NewWriter(h.file)
	if err := gif.EncodeAll(w, h.anim); err != nil {
		h.Abort()
		return fmt.Errorf("%w: encode: %v", entity.ErrFinalizeFailed, err)
	}
	if err := w.Flush(); err != nil {
		h.Abort()
		return fmt.Errorf("%w: flush: %v", entity.ErrFinalizeFailed, err)
	}
	if err := h.file.Close(); err != nil {
		h.closed = true
		_ = os.Remove(h.path)
		return fmt.Errorf("%w: close: %v", entity.ErrFinalizeFailed, err)
	}
	h.closed = true

	h.logger.Debug("gif finalized",
		zap.String("path", h.path),
		zap.Int("frames", len(h.anim.Image)),
		zap.Int("loop_count", h.anim.LoopCount),
	)
	return nil
}

// Abort discards the artifact. Safe to call more than once.
func (h *handle) Abort() {
	if h.closed {
		return
	}
	h.closed = true
	_ = h.file.Close()
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("failed to remove partial gif", zap.String("path", h.path), zap.Error(err))
	}
}

func (h *handle) scale(img image.Image) image.Image {
	b := img.Bounds()
	if h.maxWidth <= 0 || b.Dx() <= h.maxWidth {
		return img
	}
	height := int(math.Round(float64(b.Dy()) * float64(h.maxWidth) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, h.maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// centiseconds converts a delay to GIF units, never rounding a non-zero
// delay down to zero.
func centiseconds(seconds float64) int {
	cs := int(math.Round(seconds * 100))
	if cs < 1 && seconds > 0 {
		cs = 1
	}
	return cs
}
