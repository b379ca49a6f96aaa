package product

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product/dto"
)

type UseCase interface {
	CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.ByProductType, error)
	ListProducts(ctx context.Context, animalTypeID string) ([]model.ByProductType, error)

	Post(ctx context.Context, input *dto.PostInput) (*dto.PostResult, error)
	RecordDelivery(ctx context.Context, productID string, quantity int) (*dto.PostResult, error)
	GetCounter(ctx context.Context, productID string) (*model.ProductCounter, error)
	ListCounters(ctx context.Context, animalTypeID string) ([]model.ProductCounter, error)
	ListEvents(ctx context.Context, filters *dto.EventFilters) ([]model.LedgerEvent, int, error)

	CreateShipment(ctx context.Context, input *dto.CreateShipmentInput) (*model.Shipment, error)
	ReceiveShipment(ctx context.Context, input *dto.ReceiveShipmentInput) (*dto.ReceiveShipmentResult, error)
	ListShipments(ctx context.Context, status model.ShipmentStatus) ([]model.Shipment, error)

	ListErrorLogs(ctx context.Context, filters *dto.ErrorLogFilters) ([]model.ErrorLog, error)
	ResolveErrorLog(ctx context.Context, id, note string) (*model.ErrorLog, error)

	Reconcile(ctx context.Context) (*dto.ReconcileReport, error)
}
