package port

import "image"

type GifEncoder interface {
	Open(destination string, expectedFrames int) (EncoderHandle, error)
}

// EncoderHandle is a single output artifact being written. Either Finalize
// or Abort ends it; Abort removes whatever was written.
type EncoderHandle interface {
	SetLoopForever()
	AppendFrame(img image.Image, delaySeconds float64) error
	Finalize() error
	Abort()
}
