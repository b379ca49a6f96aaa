package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/qurban-engine/internal/animal"
	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/internal/animal/naming"
	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/metrics"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/pkg/apperror"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type animalUseCase struct {
	repo      animal.Repository
	txm       tx.Manager
	events    *event.Dispatcher
	metrics   *metrics.Metrics
	groupSize int
	logger    logger.ZapLogger
}

// AllocatedPayload is published as animal.allocated.
type AllocatedPayload struct {
	AnimalTypeID string          `json:"animal_type_id"`
	Collective   bool            `json:"collective"`
	Requested    int             `json:"requested"`
	BuyerName    string          `json:"buyer_name,omitempty"`
	Bindings     []model.Binding `json:"bindings"`
}

// NewAnimalUseCase builds the registration and allocation usecase. groupSize
// is used until an administrator persists one through Renumber.
func NewAnimalUseCase(repo animal.Repository, txm tx.Manager, events *event.Dispatcher, m *metrics.Metrics, groupSize int, log logger.ZapLogger) animal.UseCase {
	if groupSize <= 0 {
		groupSize = naming.DefaultGroupSize
	}
	return &animalUseCase{
		repo:      repo,
		txm:       txm,
		events:    events,
		metrics:   m,
		groupSize: groupSize,
		logger:    log.Named("animal"),
	}
}

func (uc *animalUseCase) CreateType(ctx context.Context, input *dto.CreateTypeInput) (*model.AnimalType, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperror.Validation("animal type name is required")
	}
	if input.Category != model.CategoryLarge && input.Category != model.CategorySmall {
		return nil, apperror.Validation("unrecognized animal category %q", input.Category)
	}
	if input.Target < 0 || input.MaxPrice < 0 {
		return nil, apperror.Validation("target and max price must not be negative")
	}

	grouping, sharing := model.DefaultPolicies(input.Category)
	switch input.GroupingPolicy {
	case "":
	case model.GroupingAlways, model.GroupingByVolume:
		grouping = input.GroupingPolicy
	default:
		return nil, apperror.Validation("unrecognized grouping policy %q", input.GroupingPolicy)
	}
	switch input.SharingPolicy {
	case "":
	case model.SharingNone, model.SharingCollective:
		sharing = input.SharingPolicy
	default:
		return nil, apperror.Validation("unrecognized sharing policy %q", input.SharingPolicy)
	}

	existing, err := uc.repo.ListTypes(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range existing {
		if strings.EqualFold(t.Name, name) {
			return nil, apperror.Validation("animal type %q already exists", name)
		}
	}

	now := time.Now()
	t := &model.AnimalType{
		BaseModel:       model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		Name:            name,
		Category:        input.Category,
		Target:          input.Target,
		MaxPrice:        input.MaxPrice,
		CollectivePrice: input.CollectivePrice,
		GroupingPolicy:  grouping,
		SharingPolicy:   sharing,
	}
	if err := uc.repo.CreateType(ctx, t); err != nil {
		uc.logger.Error("failed to create animal type", zap.String("name", name), zap.Error(err))
		return nil, err
	}
	uc.logger.Info("animal type created", zap.String("id", t.ID), zap.String("name", t.Name))
	return t, nil
}

func (uc *animalUseCase) ListTypes(ctx context.Context) ([]model.AnimalType, error) {
	return uc.repo.ListTypes(ctx)
}

func (uc *animalUseCase) Register(ctx context.Context, input *dto.RegisterInput) (*dto.RegisterResult, error) {
	if input.AnimalTypeID == "" {
		return nil, apperror.Validation("animal_type_id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive, got %d", input.Quantity)
	}
	if input.IsCollective && input.Quantity > model.MaxShares {
		return nil, apperror.Validation("a collective purchase takes at most %d shares, got %d", model.MaxShares, input.Quantity)
	}

	var (
		result  *dto.RegisterResult
		created int
	)
	err := uc.txm.DoSerializable(ctx, func(ctx context.Context) error {
		t, err := uc.repo.GetTypeForUpdate(ctx, input.AnimalTypeID)
		if err != nil {
			return err
		}
		if t == nil {
			return apperror.NotFound("animal type %s not found", input.AnimalTypeID)
		}

		var bindings []model.Binding
		if input.IsCollective {
			if !t.IsShareable() {
				return apperror.Validation("animal type %s does not accept collective purchases", t.Name)
			}
			bindings, created, err = uc.allocate(ctx, t, input.Quantity)
		} else {
			bindings, err = uc.createIndividual(ctx, t, input.Quantity, input.Metadata)
			created = len(bindings)
		}
		if err != nil {
			return err
		}

		result = &dto.RegisterResult{AnimalType: *t, Bindings: bindings}
		uc.events.Emit(ctx, event.TypeAnimalAllocated, AllocatedPayload{
			AnimalTypeID: t.ID,
			Collective:   input.IsCollective,
			Requested:    input.Quantity,
			BuyerName:    input.Metadata.BuyerName,
			Bindings:     bindings,
		})
		return nil
	})
	if err != nil {
		if input.IsCollective {
			uc.metrics.ObserveAllocation(string(apperror.KindOf(err)), 0, 0)
		}
		return nil, err
	}

	if input.IsCollective {
		uc.metrics.ObserveAllocation("ok", input.Quantity, created)
	}
	uc.metrics.ObserveRegistered(result.AnimalType.Name, created)
	uc.logger.Info("registration accepted",
		zap.String("type", result.AnimalType.Name),
		zap.Int("quantity", input.Quantity),
		zap.Bool("collective", input.IsCollective),
		zap.Strings("identifiers", result.Identifiers()),
	)
	return result, nil
}

// ImportRegistrations registers each input in its own transaction, in order.
// A failed input is reported in its outcome and does not stop the batch.
func (uc *animalUseCase) ImportRegistrations(ctx context.Context, inputs []dto.RegisterInput) []dto.ImportOutcome {
	outcomes := make([]dto.ImportOutcome, len(inputs))
	for i := range inputs {
		res, err := uc.Register(ctx, &inputs[i])
		outcomes[i] = dto.ImportOutcome{Index: i, Result: res, Err: err}
		if err != nil {
			uc.logger.Warn("import row rejected", zap.Int("index", i), zap.Error(err))
		}
	}
	return outcomes
}

func (uc *animalUseCase) Allocate(ctx context.Context, typeID string, shares int) ([]model.Binding, error) {
	res, err := uc.Register(ctx, &dto.RegisterInput{AnimalTypeID: typeID, Quantity: shares, IsCollective: true})
	if err != nil {
		return nil, err
	}
	return res.Bindings, nil
}

// allocate packs shares into the open shared animal with the most room,
// creating new shared animals once none is left. It must run inside a
// transaction that holds the lock on t's row.
func (uc *animalUseCase) allocate(ctx context.Context, t *model.AnimalType, shares int) ([]model.Binding, int, error) {
	groupSize, err := uc.currentGroupSize(ctx)
	if err != nil {
		return nil, 0, err
	}

	var (
		bindings []model.Binding
		created  int
	)
	remaining := shares
	for remaining > 0 {
		bucket, err := uc.repo.FindOpenSharedForUpdate(ctx, t.ID)
		if err != nil {
			return nil, 0, err
		}

		if bucket != nil {
			grant := min(remaining, *bucket.RemainingShares)
			if err := uc.repo.UpdateRemainingShares(ctx, bucket.ID, *bucket.RemainingShares-grant); err != nil {
				return nil, 0, err
			}
			bindings = append(bindings, model.Binding{
				AnimalID:      bucket.ID,
				Identifier:    bucket.Identifier,
				SharesGranted: grant,
			})
			remaining -= grant
			continue
		}

		grant := min(remaining, model.MaxShares)
		first, err := uc.repo.ReserveOrdinals(ctx, t.ID, 1)
		if err != nil {
			return nil, 0, err
		}
		left := model.MaxShares - grant
		a := newInstance(t, naming.Name(t, first, 0, groupSize, ""))
		a.IsShared = true
		a.RemainingShares = &left
		if err := uc.repo.Create(ctx, a); err != nil {
			return nil, 0, err
		}
		created++
		bindings = append(bindings, model.Binding{
			AnimalID:      a.ID,
			Identifier:    a.Identifier,
			IsNew:         true,
			SharesGranted: grant,
		})
		remaining -= grant
	}
	return bindings, created, nil
}

func (uc *animalUseCase) createIndividual(ctx context.Context, t *model.AnimalType, n int, meta dto.RegisterMetadata) ([]model.Binding, error) {
	groupSize, err := uc.currentGroupSize(ctx)
	if err != nil {
		return nil, err
	}
	first, err := uc.repo.ReserveOrdinals(ctx, t.ID, n)
	if err != nil {
		return nil, err
	}

	var note *string
	if meta.Note != "" {
		note = &meta.Note
	}

	bindings := make([]model.Binding, 0, n)
	for i, identifier := range naming.Batch(t, first, n, groupSize) {
		a := newInstance(t, identifier)
		a.Note = note
		if err := uc.repo.Create(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to create animal %d of %d: %w", i+1, n, err)
		}
		bindings = append(bindings, model.Binding{AnimalID: a.ID, Identifier: a.Identifier, IsNew: true})
	}
	return bindings, nil
}

// Renumber persists groupSize and recomputes every identifier from creation
// order. Running it twice with the same size renames nothing the second time.
func (uc *animalUseCase) Renumber(ctx context.Context, groupSize int) (int, error) {
	if groupSize <= 0 {
		return 0, apperror.Validation("group size must be positive, got %d", groupSize)
	}

	renamed := 0
	err := uc.txm.DoSerializable(ctx, func(ctx context.Context) error {
		renamed = 0
		if err := uc.repo.SetGroupSize(ctx, groupSize); err != nil {
			return err
		}
		types, err := uc.repo.ListTypes(ctx)
		if err != nil {
			return err
		}
		for _, summary := range types {
			t, err := uc.repo.GetTypeForUpdate(ctx, summary.ID)
			if err != nil {
				return err
			}
			if t == nil {
				continue
			}
			animals, err := uc.repo.ListByTypeInCreationOrder(ctx, t.ID)
			if err != nil {
				return err
			}
			for i, a := range animals {
				identifier := naming.Name(t, 0, i, groupSize, "")
				if identifier == a.Identifier {
					continue
				}
				if err := uc.repo.UpdateIdentifier(ctx, a.ID, identifier); err != nil {
					return err
				}
				renamed++
			}
			if err := uc.repo.ResetSequence(ctx, t.ID, len(animals)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		uc.logger.Error("renumbering failed", zap.Int("group_size", groupSize), zap.Error(err))
		return 0, err
	}

	uc.logger.Info("identifiers renumbered", zap.Int("group_size", groupSize), zap.Int("renamed", renamed))
	return renamed, nil
}

func (uc *animalUseCase) GetAnimal(ctx context.Context, identifier string) (*model.AnimalInstance, error) {
	a, err := uc.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperror.NotFound("animal %s not found", identifier)
	}
	return a, nil
}

func (uc *animalUseCase) ListAnimals(ctx context.Context, filters *dto.AnimalFilters) ([]model.AnimalInstance, int, error) {
	if filters == nil {
		filters = &dto.AnimalFilters{}
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, 0, apperror.Validation("unrecognized status %q", filters.Status)
	}
	return uc.repo.FindAll(ctx, filters)
}

func (uc *animalUseCase) currentGroupSize(ctx context.Context) (int, error) {
	size, ok, err := uc.repo.GetGroupSize(ctx)
	if err != nil {
		return 0, err
	}
	if !ok || size <= 0 {
		return uc.groupSize, nil
	}
	return size, nil
}

func newInstance(t *model.AnimalType, identifier string) *model.AnimalInstance {
	now := time.Now()
	return &model.AnimalInstance{
		BaseModel:  model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		Identifier: identifier,
		TypeID:     t.ID,
		Status:     model.StatusRegistered,
	}
}
