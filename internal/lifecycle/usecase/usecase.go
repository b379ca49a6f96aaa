package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/lifecycle"
	"github.com/fekuna/qurban-engine/internal/lifecycle/dto"
	"github.com/fekuna/qurban-engine/internal/metrics"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product"
	productdto "github.com/fekuna/qurban-engine/internal/product/dto"
	"github.com/fekuna/qurban-engine/pkg/apperror"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"go.uber.org/zap"
)

// AnimalStore is the slice of animal.Repository the lifecycle needs.
type AnimalStore interface {
	FindByIdentifierForUpdate(ctx context.Context, identifier string) (*model.AnimalInstance, error)
	Update(ctx context.Context, a *model.AnimalInstance) error
}

// Ledger is satisfied by product.UseCase.
type Ledger interface {
	Post(ctx context.Context, input *productdto.PostInput) (*productdto.PostResult, error)
}

type lifecycleUseCase struct {
	animals AnimalStore
	catalog product.Catalog
	ledger  Ledger
	txm     tx.Manager
	events  *event.Dispatcher
	metrics *metrics.Metrics
	logger  logger.ZapLogger
}

func NewLifecycleUseCase(animals AnimalStore, catalog product.Catalog, ledger Ledger, txm tx.Manager, events *event.Dispatcher, m *metrics.Metrics, log logger.ZapLogger) lifecycle.UseCase {
	return &lifecycleUseCase{
		animals: animals,
		catalog: catalog,
		ledger:  ledger,
		txm:     txm,
		events:  events,
		metrics: m,
		logger:  log.Named("lifecycle"),
	}
}

func actorPtr(actor string) *string {
	if actor == "" {
		return nil
	}
	return &actor
}

func (uc *lifecycleUseCase) Advance(ctx context.Context, input *dto.AdvanceInput) (*dto.AdvanceResult, error) {
	if input.Identifier == "" {
		return nil, apperror.Validation("identifier is required")
	}
	override := input.Target != nil
	var target model.Status
	if override {
		s, err := model.ParseStatus(string(*input.Target))
		if err != nil {
			return nil, apperror.Validation("%v", err)
		}
		target = s
	}
	packages := 1
	if input.MeatPackages != nil {
		if *input.MeatPackages < 0 {
			return nil, apperror.Validation("meat packages must not be negative, got %d", *input.MeatPackages)
		}
		if *input.MeatPackages > 0 {
			packages = *input.MeatPackages
		}
	}

	var res *dto.AdvanceResult
	err := uc.txm.Do(ctx, func(ctx context.Context) error {
		a, err := uc.animals.FindByIdentifierForUpdate(ctx, input.Identifier)
		if err != nil {
			return err
		}
		if a == nil {
			return apperror.NotFound("animal %s not found", input.Identifier)
		}

		next := target
		if !override {
			idx := a.Status.Index()
			if idx < 0 {
				return fmt.Errorf("animal %s has unrecognized status %q", a.Identifier, a.Status)
			}
			if idx == len(model.Statuses)-1 {
				return apperror.AlreadyTerminal("animal %s is already %s", a.Identifier, a.Status)
			}
			next = model.Statuses[idx+1]
		}

		now := time.Now()
		res = &dto.AdvanceResult{Previous: a.Status, Current: next, SeededEvents: []model.LedgerEvent{}}
		a.Status = next
		a.UpdatedAt = now

		seed := false
		switch next {
		case model.StatusSlaughtered:
			if !a.Slaughtered {
				a.Slaughtered = true
				a.SlaughteredAt = &now
				a.SlaughteredBy = actorPtr(input.ActorID)
				seed = true
			}
		case model.StatusProcessed:
			if a.ProcessedAt == nil {
				a.ProcessedAt = &now
				a.ProcessedBy = actorPtr(input.ActorID)
				a.MeatPackages = &packages
			}
		}
		if err := uc.animals.Update(ctx, a); err != nil {
			return err
		}

		if seed {
			events, err := uc.seed(ctx, a)
			if err != nil {
				return err
			}
			res.SeededEvents = events
		}
		res.Animal = *a

		uc.events.Emit(ctx, event.TypeAnimalStatusChanged, dto.StatusChangedPayload{
			AnimalID:   a.ID,
			Identifier: a.Identifier,
			Previous:   res.Previous,
			Current:    res.Current,
			Override:   override,
			Seeded:     len(res.SeededEvents),
			ActorID:    input.ActorID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.ObserveTransition(string(res.Current), override)
	uc.logger.Info("animal status changed",
		zap.String("identifier", res.Animal.Identifier),
		zap.String("from", string(res.Previous)),
		zap.String("to", string(res.Current)),
		zap.Bool("override", override),
		zap.Int("seeded", len(res.SeededEvents)),
	)
	return res, nil
}

// seed posts one produced unit for every non-meat by-product of the animal's
// type. Meat is weighed in by hand later.
func (uc *lifecycleUseCase) seed(ctx context.Context, a *model.AnimalInstance) ([]model.LedgerEvent, error) {
	products, err := uc.catalog.ListByAnimalType(ctx, a.TypeID)
	if err != nil {
		return nil, err
	}
	var out []model.LedgerEvent
	for _, p := range products {
		if p.IsMeat() {
			continue
		}
		posted, err := uc.ledger.Post(ctx, &productdto.PostInput{
			ProductID: p.ID,
			Direction: string(model.DirectionAdd),
			Location:  string(model.LocationProduction),
			Quantity:  1,
			Note:      fmt.Sprintf("Auto-generated from slaughter of %s", a.Identifier),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed %s for %s: %w", p.Name, a.Identifier, err)
		}
		if posted.Event != nil {
			out = append(out, *posted.Event)
		}
	}
	return out, nil
}

func (uc *lifecycleUseCase) SetInventory(ctx context.Context, input *dto.FlagInput) (*model.AnimalInstance, error) {
	return uc.setFlag(ctx, input, "on_inventory", func(a *model.AnimalInstance, now time.Time) {
		a.OnInventory = input.Value
		if input.Value {
			a.InventoryAt = &now
			a.InventoryBy = actorPtr(input.ActorID)
		} else {
			a.InventoryAt = nil
			a.InventoryBy = nil
		}
	})
}

func (uc *lifecycleUseCase) SetBuyerReceived(ctx context.Context, input *dto.FlagInput) (*model.AnimalInstance, error) {
	return uc.setFlag(ctx, input, "received_by_buyer", func(a *model.AnimalInstance, now time.Time) {
		a.ReceivedByBuyer = input.Value
		if input.Value {
			a.ReceivedAt = &now
			a.ReceivedBy = actorPtr(input.ActorID)
		} else {
			a.ReceivedAt = nil
			a.ReceivedBy = nil
		}
	})
}

func (uc *lifecycleUseCase) setFlag(ctx context.Context, input *dto.FlagInput, flag string, apply func(*model.AnimalInstance, time.Time)) (*model.AnimalInstance, error) {
	if input.Identifier == "" {
		return nil, apperror.Validation("identifier is required")
	}

	var out *model.AnimalInstance
	err := uc.txm.Do(ctx, func(ctx context.Context) error {
		a, err := uc.animals.FindByIdentifierForUpdate(ctx, input.Identifier)
		if err != nil {
			return err
		}
		if a == nil {
			return apperror.NotFound("animal %s not found", input.Identifier)
		}
		now := time.Now()
		apply(a, now)
		a.UpdatedAt = now
		if err := uc.animals.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("animal flag updated",
		zap.String("identifier", out.Identifier),
		zap.String("flag", flag),
		zap.Bool("value", input.Value),
	)
	return out, nil
}
