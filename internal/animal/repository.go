package animal

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/internal/model"
)

// Repository returns (nil, nil) from single-row lookups when nothing matches.
// Methods ending in ForUpdate lock the returned row until the surrounding
// transaction ends.
type Repository interface {
	// Catalog
	CreateType(ctx context.Context, t *model.AnimalType) error
	GetType(ctx context.Context, id string) (*model.AnimalType, error)
	GetTypeForUpdate(ctx context.Context, id string) (*model.AnimalType, error)
	ListTypes(ctx context.Context) ([]model.AnimalType, error)

	// Instances
	Create(ctx context.Context, a *model.AnimalInstance) error
	FindByIdentifier(ctx context.Context, identifier string) (*model.AnimalInstance, error)
	FindByIdentifierForUpdate(ctx context.Context, identifier string) (*model.AnimalInstance, error)
	FindAll(ctx context.Context, filters *dto.AnimalFilters) ([]model.AnimalInstance, int, error)
	ListByTypeInCreationOrder(ctx context.Context, typeID string) ([]model.AnimalInstance, error)
	Update(ctx context.Context, a *model.AnimalInstance) error
	UpdateIdentifier(ctx context.Context, id, identifier string) error

	// Collective buckets
	FindOpenSharedForUpdate(ctx context.Context, typeID string) (*model.AnimalInstance, error)
	UpdateRemainingShares(ctx context.Context, id string, remaining int) error

	// Sequencing
	ReserveOrdinals(ctx context.Context, typeID string, n int) (first int, err error)
	ResetSequence(ctx context.Context, typeID string, next int) error
	GetGroupSize(ctx context.Context) (size int, ok bool, err error)
	SetGroupSize(ctx context.Context, size int) error
}
