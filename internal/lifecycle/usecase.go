package lifecycle

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/lifecycle/dto"
	"github.com/fekuna/qurban-engine/internal/model"
)

type UseCase interface {
	Advance(ctx context.Context, input *dto.AdvanceInput) (*dto.AdvanceResult, error)
	SetInventory(ctx context.Context, input *dto.FlagInput) (*model.AnimalInstance, error)
	SetBuyerReceived(ctx context.Context, input *dto.FlagInput) (*model.AnimalInstance, error)
}
