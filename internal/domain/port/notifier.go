package port

import (
	"context"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
)

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, notice entity.FailureNotice) error
}
