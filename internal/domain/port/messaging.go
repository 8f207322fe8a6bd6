package port

import (
	"context"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
)

type StatusPublisher interface {
	PublishStatus(ctx context.Context, status entity.GifStatusMessage) error
}

// DLQPublisher parks a raw inbound message that will never be processed.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, rawMsg []byte, reason string) error
}
