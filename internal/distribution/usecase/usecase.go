package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fekuna/qurban-engine/internal/distribution"
	"github.com/fekuna/qurban-engine/internal/distribution/dto"
	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/metrics"
	"github.com/fekuna/qurban-engine/internal/model"
	productdto "github.com/fekuna/qurban-engine/internal/product/dto"
	"github.com/fekuna/qurban-engine/pkg/apperror"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const couponAttempts = 3

// ProductReader is satisfied by product.Repository.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*model.ByProductType, error)
}

// DeliveryRecorder is satisfied by product.UseCase.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, productID string, quantity int) (*productdto.PostResult, error)
}

type distributionUseCase struct {
	repo     distribution.Repository
	products ProductReader
	ledger   DeliveryRecorder
	txm      tx.Manager
	events   *event.Dispatcher
	metrics  *metrics.Metrics
	logger   logger.ZapLogger
}

func NewDistributionUseCase(repo distribution.Repository, products ProductReader, ledger DeliveryRecorder, txm tx.Manager, events *event.Dispatcher, m *metrics.Metrics, log logger.ZapLogger) distribution.UseCase {
	return &distributionUseCase{
		repo:     repo,
		products: products,
		ledger:   ledger,
		txm:      txm,
		events:   events,
		metrics:  m,
		logger:   log.Named("distribution"),
	}
}

func (uc *distributionUseCase) CreateCategory(ctx context.Context, input *dto.CreateCategoryInput) (*model.DistributionCategory, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperror.Validation("category name is required")
	}
	if input.Target < 0 {
		return nil, apperror.Validation("target must not be negative")
	}

	now := time.Now()
	c := &model.DistributionCategory{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		Name:      name,
		Target:    input.Target,
	}
	if err := uc.repo.CreateCategory(ctx, c); err != nil {
		uc.logger.Error("failed to create distribution category", zap.String("name", name), zap.Error(err))
		return nil, err
	}
	uc.logger.Info("distribution category created", zap.String("id", c.ID), zap.String("name", c.Name), zap.Int("target", c.Target))
	return c, nil
}

func (uc *distributionUseCase) ListCategories(ctx context.Context) ([]model.DistributionCategory, error) {
	return uc.repo.ListCategories(ctx)
}

// CouponCode returns a fresh KPN-XXXXXXXX code.
func CouponCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "KPN-" + strings.ToUpper(raw[:8])
}

// CreateRecipient registers a recipient under a category and issues a coupon.
// Each insert stands alone so a coupon collision can be retried.
func (uc *distributionUseCase) CreateRecipient(ctx context.Context, input *dto.CreateRecipientInput) (*model.Recipient, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || input.CategoryID == "" {
		return nil, apperror.Validation("name and category_id are required")
	}
	c, err := uc.repo.GetCategory(ctx, input.CategoryID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperror.NotFound("distribution category %s not found", input.CategoryID)
	}

	now := time.Now()
	rec := &model.Recipient{
		BaseModel:  model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		CategoryID: c.ID,
		Name:       name,
	}
	for attempt := 1; ; attempt++ {
		rec.CouponCode = CouponCode()
		err = uc.repo.CreateRecipient(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, distribution.ErrDuplicateCoupon) || attempt == couponAttempts {
			uc.logger.Error("failed to create recipient", zap.String("name", name), zap.Error(err))
			return nil, err
		}
		uc.logger.Warn("coupon code collision, reissuing", zap.String("coupon", rec.CouponCode))
	}

	uc.logger.Info("recipient created", zap.String("id", rec.ID), zap.String("category", c.Name), zap.String("coupon", rec.CouponCode))
	return rec, nil
}

func (uc *distributionUseCase) ListRecipients(ctx context.Context, filters *dto.RecipientFilters) ([]model.Recipient, error) {
	if filters == nil {
		filters = &dto.RecipientFilters{}
	}
	return uc.repo.ListRecipients(ctx, filters)
}

// Distribute records one hand-off. Every referenced row is checked before the
// first write; delivered counters that overtake received are flagged, never
// refused.
func (uc *distributionUseCase) Distribute(ctx context.Context, input *dto.DistributeInput) (*dto.DistributeResult, error) {
	if input.RecipientID == "" {
		return nil, apperror.Validation("recipient_id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive, got %d", input.Quantity)
	}
	if len(input.ProductIDs) == 0 {
		return nil, apperror.Validation("at least one product is required")
	}
	seen := make(map[string]bool, len(input.ProductIDs))
	for _, id := range input.ProductIDs {
		if id == "" {
			return nil, apperror.Validation("product id must not be empty")
		}
		if seen[id] {
			return nil, apperror.Validation("product %s listed twice", id)
		}
		seen[id] = true
	}

	var res *dto.DistributeResult
	err := uc.txm.Do(ctx, func(ctx context.Context) error {
		recipient, err := uc.repo.GetRecipientForUpdate(ctx, input.RecipientID)
		if err != nil {
			return err
		}
		if recipient == nil {
			return apperror.NotFound("recipient %s not found", input.RecipientID)
		}
		if recipient.Received {
			return apperror.InvalidState("recipient %s already received their allocation", recipient.ID)
		}
		for _, id := range input.ProductIDs {
			p, err := uc.products.GetProduct(ctx, id)
			if err != nil {
				return err
			}
			if p == nil {
				return apperror.NotFound("product %s not found", id)
			}
		}

		now := time.Now()
		record := model.DistributionRecord{
			ID:           uuid.New().String(),
			RecipientID:  recipient.ID,
			PackageCount: input.Quantity,
			CreatedAt:    now,
		}
		if input.ActorID != "" {
			record.CreatedBy = &input.ActorID
		}
		for _, id := range input.ProductIDs {
			record.Items = append(record.Items, model.DistributionItem{RecordID: record.ID, ProductID: id, Quantity: input.Quantity})
		}
		if err := uc.repo.CreateRecord(ctx, &record); err != nil {
			return err
		}

		res = &dto.DistributeResult{Record: record, Discrepancies: []model.Discrepancy{}}
		for _, id := range input.ProductIDs {
			delivered, err := uc.ledger.RecordDelivery(ctx, id, input.Quantity)
			if err != nil {
				return err
			}
			if delivered.Discrepancy != nil {
				res.Discrepancies = append(res.Discrepancies, *delivered.Discrepancy)
			}
		}

		if err := uc.repo.IncrementRealized(ctx, recipient.CategoryID, 1); err != nil {
			return err
		}
		if err := uc.repo.MarkRecipientReceived(ctx, recipient.ID, now); err != nil {
			return err
		}
		recipient.Received = true
		recipient.ReceivedAt = &now
		recipient.UpdatedAt = now
		res.Recipient = *recipient

		uc.events.Emit(ctx, event.TypeDistributionRecorded, dto.RecordedPayload{
			RecordID:    record.ID,
			RecipientID: recipient.ID,
			CategoryID:  recipient.CategoryID,
			ProductIDs:  input.ProductIDs,
			Quantity:    input.Quantity,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.metrics.ObserveDistribution()
	uc.logger.Info("distribution recorded",
		zap.String("record_id", res.Record.ID),
		zap.String("recipient_id", res.Recipient.ID),
		zap.Int("products", len(input.ProductIDs)),
		zap.Int("quantity", input.Quantity),
		zap.Int("discrepancies", len(res.Discrepancies)),
	)
	return res, nil
}

func (uc *distributionUseCase) ListRecords(ctx context.Context, filters *dto.RecordFilters) ([]model.DistributionRecord, int, error) {
	if filters == nil {
		filters = &dto.RecordFilters{}
	}
	return uc.repo.ListRecords(ctx, filters)
}
