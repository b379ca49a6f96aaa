package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/metrics"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product"
	"github.com/fekuna/qurban-engine/internal/product/dto"
	"github.com/fekuna/qurban-engine/pkg/apperror"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnimalTypeReader is satisfied by animal.Repository.
type AnimalTypeReader interface {
	GetType(ctx context.Context, id string) (*model.AnimalType, error)
}

type productUseCase struct {
	repo        product.Repository
	catalog     product.Catalog
	animalTypes AnimalTypeReader
	txm         tx.Manager
	events      *event.Dispatcher
	metrics     *metrics.Metrics
	logger      logger.ZapLogger
}

// NewProductUseCase builds the conservation ledger. catalog serves
// by-product listings and may be nil, in which case repo is read directly.
func NewProductUseCase(repo product.Repository, catalog product.Catalog, animalTypes AnimalTypeReader, txm tx.Manager, events *event.Dispatcher, m *metrics.Metrics, log logger.ZapLogger) product.UseCase {
	if catalog == nil {
		catalog = repo
	}
	return &productUseCase{
		repo:        repo,
		catalog:     catalog,
		animalTypes: animalTypes,
		txm:         txm,
		events:      events,
		metrics:     m,
		logger:      log.Named("ledger"),
	}
}

func (uc *productUseCase) CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.ByProductType, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || input.AnimalTypeID == "" {
		return nil, apperror.Validation("name and animal_type_id are required")
	}
	if !input.Kind.Valid() {
		return nil, apperror.Validation("unrecognized product kind %q", input.Kind)
	}
	if input.TargetPackages < 0 {
		return nil, apperror.Validation("target packages must not be negative")
	}

	t, err := uc.animalTypes.GetType(ctx, input.AnimalTypeID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperror.NotFound("animal type %s not found", input.AnimalTypeID)
	}

	now := time.Now()
	p := &model.ByProductType{
		BaseModel:      model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		AnimalTypeID:   t.ID,
		Name:           name,
		Kind:           input.Kind,
		UnitWeight:     input.UnitWeight,
		TargetPackages: input.TargetPackages,
	}
	err = uc.txm.Do(ctx, func(ctx context.Context) error {
		if err := uc.repo.CreateProduct(ctx, p); err != nil {
			return err
		}
		if inv, ok := uc.catalog.(product.CatalogInvalidator); ok {
			tx.AfterCommit(ctx, func() {
				if err := inv.Invalidate(context.WithoutCancel(ctx), t.ID); err != nil {
					uc.logger.Warn("failed to invalidate catalog cache", zap.String("animal_type_id", t.ID), zap.Error(err))
				}
			})
		}
		return nil
	})
	if err != nil {
		uc.logger.Error("failed to create product", zap.String("name", name), zap.Error(err))
		return nil, err
	}

	uc.logger.Info("product created", zap.String("id", p.ID), zap.String("name", p.Name), zap.String("kind", string(p.Kind)))
	return p, nil
}

func (uc *productUseCase) ListProducts(ctx context.Context, animalTypeID string) ([]model.ByProductType, error) {
	if animalTypeID == "" {
		return nil, apperror.Validation("animal_type_id is required")
	}
	return uc.catalog.ListByAnimalType(ctx, animalTypeID)
}

// Post appends one ledger event and applies it to the product's counter.
// Decrements are clamped at zero. Receiving more than was produced is
// recorded as a discrepancy but never rejected.
func (uc *productUseCase) Post(ctx context.Context, input *dto.PostInput) (*dto.PostResult, error) {
	dir, err := model.ParseDirection(input.Direction)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}
	loc, err := model.ParseLocation(input.Location)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}
	if input.ProductID == "" {
		return nil, apperror.Validation("product_id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive, got %d", input.Quantity)
	}

	var res *dto.PostResult
	err = uc.txm.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = uc.post(ctx, input.ProductID, dir, loc, input.Quantity, input.Note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (uc *productUseCase) post(ctx context.Context, productID string, dir model.Direction, loc model.Location, qty int, note string) (*dto.PostResult, error) {
	p, err := uc.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperror.NotFound("product %s not found", productID)
	}
	c, err := uc.repo.GetCounterForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("counter row for product %s is missing", productID)
	}

	applied := qty
	switch {
	case dir == model.DirectionAdd && loc == model.LocationProduction:
		c.Produced += qty
	case dir == model.DirectionAdd && loc == model.LocationInventory:
		c.Received += qty
	case dir == model.DirectionDecrease && loc == model.LocationProduction:
		applied = min(qty, c.Produced)
		c.Produced -= applied
	case dir == model.DirectionDecrease && loc == model.LocationInventory:
		applied = min(qty, c.Received)
		c.Received -= applied
	}

	now := time.Now()
	c.UpdatedAt = now
	evt := &model.LedgerEvent{
		ID:        uuid.New().String(),
		ProductID: productID,
		Direction: dir,
		Location:  loc,
		Quantity:  qty,
		Note:      note,
		CreatedAt: now,
	}
	if err := uc.repo.AppendEvent(ctx, evt); err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateCounter(ctx, c); err != nil {
		return nil, err
	}

	res := &dto.PostResult{Applied: true, AppliedQuantity: applied, Counter: *c, Event: evt}
	if dir == model.DirectionAdd && loc == model.LocationInventory && c.Received > c.Produced {
		msg := fmt.Sprintf("Discrepancy detected: received (%d) > produced (%d)", c.Received, c.Produced)
		res.Discrepancy, err = uc.appendErrorLog(ctx, productID, model.DiscrepancyReceivedExceedsProduced, c.Produced, c.Received, msg)
		if err != nil {
			return nil, err
		}
	}

	uc.events.Emit(ctx, event.TypeProductCountersChanged, res.Counter)
	tx.AfterCommit(ctx, func() {
		uc.metrics.ObserveLedgerPost(string(dir), string(loc))
		uc.logger.Info("ledger event posted",
			zap.String("product", p.Name),
			zap.String("direction", string(dir)),
			zap.String("location", string(loc)),
			zap.Int("quantity", qty),
			zap.Int("applied", applied),
		)
	})
	return res, nil
}

// RecordDelivery adds quantity to the product's delivered counter. Delivering
// more than was received is flagged, not rejected.
func (uc *productUseCase) RecordDelivery(ctx context.Context, productID string, quantity int) (*dto.PostResult, error) {
	if quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive, got %d", quantity)
	}

	var res *dto.PostResult
	err := uc.txm.Do(ctx, func(ctx context.Context) error {
		p, err := uc.repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.NotFound("product %s not found", productID)
		}
		c, err := uc.repo.GetCounterForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("counter row for product %s is missing", productID)
		}

		c.Delivered += quantity
		c.UpdatedAt = time.Now()
		if err := uc.repo.UpdateCounter(ctx, c); err != nil {
			return err
		}

		res = &dto.PostResult{Applied: true, AppliedQuantity: quantity, Counter: *c}
		if c.Delivered > c.Received {
			msg := fmt.Sprintf("Discrepancy detected: delivered (%d) > received (%d)", c.Delivered, c.Received)
			res.Discrepancy, err = uc.appendErrorLog(ctx, productID, model.DiscrepancyDeliveredExceedsReceived, c.Received, c.Delivered, msg)
			if err != nil {
				return err
			}
		}
		uc.events.Emit(ctx, event.TypeProductCountersChanged, res.Counter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (uc *productUseCase) appendErrorLog(ctx context.Context, productID string, kind model.DiscrepancyKind, expected, actual int, note string) (*model.Discrepancy, error) {
	l := &model.ErrorLog{
		ID:        uuid.New().String(),
		ProductID: productID,
		Kind:      kind,
		Expected:  expected,
		Actual:    actual,
		Note:      note,
		CreatedAt: time.Now(),
	}
	if err := uc.repo.AppendErrorLog(ctx, l); err != nil {
		return nil, err
	}

	uc.events.Emit(ctx, event.TypeErrorLogAppended, l)
	tx.AfterCommit(ctx, func() {
		uc.metrics.ObserveDiscrepancy(string(kind))
		uc.logger.Warn("conservation discrepancy",
			zap.String("product_id", productID),
			zap.String("kind", string(kind)),
			zap.Int("expected", expected),
			zap.Int("actual", actual),
		)
	})
	return &model.Discrepancy{
		ErrorLogID: l.ID,
		ProductID:  productID,
		Kind:       kind,
		Expected:   expected,
		Actual:     actual,
		DetectedAt: l.CreatedAt,
	}, nil
}

func (uc *productUseCase) GetCounter(ctx context.Context, productID string) (*model.ProductCounter, error) {
	c, err := uc.repo.GetCounter(ctx, productID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperror.NotFound("product %s not found", productID)
	}
	return c, nil
}

func (uc *productUseCase) ListCounters(ctx context.Context, animalTypeID string) ([]model.ProductCounter, error) {
	return uc.repo.ListCounters(ctx, animalTypeID)
}

func (uc *productUseCase) ListEvents(ctx context.Context, filters *dto.EventFilters) ([]model.LedgerEvent, int, error) {
	if filters == nil {
		filters = &dto.EventFilters{}
	}
	if filters.Location != "" {
		loc, err := model.ParseLocation(string(filters.Location))
		if err != nil {
			return nil, 0, apperror.Validation("%v", err)
		}
		filters.Location = loc
	}
	return uc.repo.ListEvents(ctx, filters)
}

func (uc *productUseCase) ListErrorLogs(ctx context.Context, filters *dto.ErrorLogFilters) ([]model.ErrorLog, error) {
	if filters == nil {
		filters = &dto.ErrorLogFilters{}
	}
	return uc.repo.ListErrorLogs(ctx, filters)
}

// ResolveErrorLog attaches an operator note. The discrepancy itself stays.
func (uc *productUseCase) ResolveErrorLog(ctx context.Context, id, note string) (*model.ErrorLog, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperror.Validation("resolution note is required")
	}

	var l *model.ErrorLog
	err := uc.txm.Do(ctx, func(ctx context.Context) error {
		var err error
		l, err = uc.repo.GetErrorLog(ctx, id)
		if err != nil {
			return err
		}
		if l == nil {
			return apperror.NotFound("error log %s not found", id)
		}
		if err := uc.repo.SetErrorLogResolution(ctx, id, note); err != nil {
			return err
		}
		l.Resolution = &note
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("error log resolved", zap.String("id", id))
	return l, nil
}
