package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product/dto"
	"github.com/fekuna/qurban-engine/pkg/apperror"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func validateItems(items []dto.ShipmentItemInput) error {
	if len(items) == 0 {
		return apperror.Validation("at least one item is required")
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return apperror.Validation("product_id is required")
		}
		if item.Quantity <= 0 {
			return apperror.Validation("quantity of %s must be positive, got %d", item.ProductID, item.Quantity)
		}
		if seen[item.ProductID] {
			return apperror.Validation("product %s listed twice", item.ProductID)
		}
		seen[item.ProductID] = true
	}
	return nil
}

func (uc *productUseCase) requireProducts(ctx context.Context, items []dto.ShipmentItemInput) error {
	for _, item := range items {
		p, err := uc.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.NotFound("product %s not found", item.ProductID)
		}
	}
	return nil
}

// CreateShipment records a batch leaving the production floor. Counters move
// only when the batch is received.
func (uc *productUseCase) CreateShipment(ctx context.Context, input *dto.CreateShipmentInput) (*model.Shipment, error) {
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}

	s := &model.Shipment{
		ID:        uuid.New().String(),
		Status:    model.ShipmentShipped,
		ShippedAt: time.Now(),
	}
	if input.Note != "" {
		s.Note = &input.Note
	}
	for _, item := range input.Items {
		s.Items = append(s.Items, model.ShipmentItem{ShipmentID: s.ID, ProductID: item.ProductID, Quantity: item.Quantity})
	}

	err := uc.txm.Do(ctx, func(ctx context.Context) error {
		if err := uc.requireProducts(ctx, input.Items); err != nil {
			return err
		}
		return uc.repo.CreateShipment(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("shipment created", zap.String("id", s.ID), zap.Int("items", len(s.Items)))
	return s, nil
}

// ReceiveShipment posts every received item into inventory and flags each
// product whose received quantity differs from what was shipped.
func (uc *productUseCase) ReceiveShipment(ctx context.Context, input *dto.ReceiveShipmentInput) (*dto.ReceiveShipmentResult, error) {
	if input.ShipmentID == "" {
		return nil, apperror.Validation("shipment_id is required")
	}
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}

	var res *dto.ReceiveShipmentResult
	err := uc.txm.Do(ctx, func(ctx context.Context) error {
		s, err := uc.repo.GetShipmentForUpdate(ctx, input.ShipmentID)
		if err != nil {
			return err
		}
		if s == nil {
			return apperror.NotFound("shipment %s not found", input.ShipmentID)
		}
		if s.Status == model.ShipmentReceived {
			return apperror.InvalidState("shipment %s was already received", s.ID)
		}
		if err := uc.requireProducts(ctx, input.Items); err != nil {
			return err
		}

		shipped := make(map[string]int, len(s.Items))
		for _, item := range s.Items {
			shipped[item.ProductID] = item.Quantity
		}

		res = &dto.ReceiveShipmentResult{Posts: []dto.PostResult{}, Discrepancies: []model.Discrepancy{}}
		note := fmt.Sprintf("Received from shipment #%s", s.ID)
		for _, item := range input.Items {
			posted, err := uc.post(ctx, item.ProductID, model.DirectionAdd, model.LocationInventory, item.Quantity, note)
			if err != nil {
				return err
			}
			res.Posts = append(res.Posts, *posted)
			if posted.Discrepancy != nil {
				res.Discrepancies = append(res.Discrepancies, *posted.Discrepancy)
			}

			expected, ok := shipped[item.ProductID]
			delete(shipped, item.ProductID)
			var reason string
			switch {
			case !ok:
				reason = "product not in original shipment"
			case expected != item.Quantity:
				reason = "quantity mismatch"
			default:
				continue
			}
			d, err := uc.appendErrorLog(ctx, item.ProductID, model.DiscrepancyShipmentMismatch, expected, item.Quantity,
				fmt.Sprintf("Shipment #%s: %s (expected: %d, received: %d)", s.ID, reason, expected, item.Quantity))
			if err != nil {
				return err
			}
			res.Discrepancies = append(res.Discrepancies, *d)
		}

		// Whatever is left was shipped but never arrived.
		for _, item := range s.Items {
			if _, missing := shipped[item.ProductID]; !missing {
				continue
			}
			d, err := uc.appendErrorLog(ctx, item.ProductID, model.DiscrepancyShipmentMismatch, item.Quantity, 0,
				fmt.Sprintf("Shipment #%s: product missing on arrival (expected: %d, received: 0)", s.ID, item.Quantity))
			if err != nil {
				return err
			}
			res.Discrepancies = append(res.Discrepancies, *d)
		}

		now := time.Now()
		s.Status = model.ShipmentReceived
		s.ReceivedAt = &now
		if err := uc.repo.MarkShipmentReceived(ctx, s); err != nil {
			return err
		}
		res.Shipment = *s
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("shipment received",
		zap.String("id", input.ShipmentID),
		zap.Int("items", len(input.Items)),
		zap.Int("discrepancies", len(res.Discrepancies)),
	)
	return res, nil
}

func (uc *productUseCase) ListShipments(ctx context.Context, status model.ShipmentStatus) ([]model.Shipment, error) {
	if status != "" && status != model.ShipmentShipped && status != model.ShipmentReceived {
		return nil, apperror.Validation("unrecognized shipment status %q", status)
	}
	return uc.repo.ListShipments(ctx, status)
}
