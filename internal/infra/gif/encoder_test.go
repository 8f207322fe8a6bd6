package gif

import (
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestEncoderWritesLoopingAnimation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gif")
	h, err := NewEncoder(0, zap.NewNop()).Open(path, 4)
	require.NoError(t, err)

	h.SetLoopForever()
	for _, c := range []color.Color{color.White, color.Black, color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}} {
		require.NoError(t, h.AppendFrame(solid(8, 6, c), 0.5))
	}
	require.NoError(t, h.Finalize())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)

	assert.Len(t, anim.Image, 4)
	assert.Equal(t, []int{50, 50, 50, 50}, anim.Delay)
	assert.Equal(t, 0, anim.LoopCount)
	assert.Equal(t, 8, anim.Config.Width)
	assert.Equal(t, 6, anim.Config.Height)
}

func TestEncoderWithoutLoopPlaysOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "once.gif")
	h, err := NewEncoder(0, zap.NewNop()).Open(path, 1)
	require.NoError(t, err)
	require.NoError(t, h.AppendFrame(solid(2, 2, color.White), 0.1))
	require.NoError(t, h.Finalize())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Equal(t, -1, anim.LoopCount)
}

func TestEncoderDownscalesWideFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.gif")
	h, err := NewEncoder(32, zap.NewNop()).Open(path, 1)
	require.NoError(t, err)
	h.SetLoopForever()
	require.NoError(t, h.AppendFrame(solid(64, 48, color.Gray{Y: 128}), 0.25))
	require.NoError(t, h.Finalize())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := gif.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 24, cfg.Height)
}

func TestEncoderOpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "out.gif")
	_, err := NewEncoder(0, zap.NewNop()).Open(path, 1)
	assert.ErrorIs(t, err, entity.ErrDestinationCreateFailed)
}

func TestEncoderFinalizeWithoutFramesDiscardsArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gif")
	h, err := NewEncoder(0, zap.NewNop()).Open(path, 3)
	require.NoError(t, err)

	err = h.Finalize()
	assert.ErrorIs(t, err, entity.ErrFinalizeFailed)
	assert.NoFileExists(t, path)
}

func TestEncoderAbortRemovesArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aborted.gif")
	h, err := NewEncoder(0, zap.NewNop()).Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, h.AppendFrame(solid(2, 2, color.White), 0.1))

	h.Abort()
	h.Abort()
	assert.NoFileExists(t, path)
	assert.Error(t, h.AppendFrame(solid(2, 2, color.White), 0.1))
	assert.ErrorIs(t, h.Finalize(), entity.ErrFinalizeFailed)
}

func TestCentiseconds(t *testing.T) {
	assert.Equal(t, 50, centiseconds(0.5))
	assert.Equal(t, 3, centiseconds(1.0/30))
	assert.Equal(t, 1, centiseconds(0.001))
	assert.Equal(t, 0, centiseconds(0))
}
