package distribution

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/distribution/dto"
	"github.com/fekuna/qurban-engine/internal/model"
)

type UseCase interface {
	CreateCategory(ctx context.Context, input *dto.CreateCategoryInput) (*model.DistributionCategory, error)
	ListCategories(ctx context.Context) ([]model.DistributionCategory, error)

	CreateRecipient(ctx context.Context, input *dto.CreateRecipientInput) (*model.Recipient, error)
	ListRecipients(ctx context.Context, filters *dto.RecipientFilters) ([]model.Recipient, error)

	Distribute(ctx context.Context, input *dto.DistributeInput) (*dto.DistributeResult, error)
	ListRecords(ctx context.Context, filters *dto.RecordFilters) ([]model.DistributionRecord, int, error)
}
