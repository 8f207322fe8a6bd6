package port

import (
	"context"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"github.com/google/uuid"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.ConversionJob) error
	Update(ctx context.Context, job *entity.ConversionJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ConversionJob, error)
}
