package animal

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/internal/model"
)

type UseCase interface {
	CreateType(ctx context.Context, input *dto.CreateTypeInput) (*model.AnimalType, error)
	ListTypes(ctx context.Context) ([]model.AnimalType, error)

	Register(ctx context.Context, input *dto.RegisterInput) (*dto.RegisterResult, error)
	ImportRegistrations(ctx context.Context, inputs []dto.RegisterInput) []dto.ImportOutcome
	Allocate(ctx context.Context, typeID string, shares int) ([]model.Binding, error)
	Renumber(ctx context.Context, groupSize int) (int, error)

	GetAnimal(ctx context.Context, identifier string) (*model.AnimalInstance, error)
	ListAnimals(ctx context.Context, filters *dto.AnimalFilters) ([]model.AnimalInstance, int, error)
}
