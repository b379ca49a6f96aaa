package product

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product/dto"
)

// Catalog is the read path for by-product reference data.
type Catalog interface {
	ListByAnimalType(ctx context.Context, animalTypeID string) ([]model.ByProductType, error)
}

// CatalogInvalidator is implemented by caching catalogs.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, animalTypeID string) error
}

// Repository returns (nil, nil) from single-row lookups when nothing matches.
type Repository interface {
	Catalog

	CreateProduct(ctx context.Context, p *model.ByProductType) error
	GetProduct(ctx context.Context, id string) (*model.ByProductType, error)

	// Counters. CreateProduct also creates the zeroed counter row.
	GetCounter(ctx context.Context, productID string) (*model.ProductCounter, error)
	GetCounterForUpdate(ctx context.Context, productID string) (*model.ProductCounter, error)
	UpdateCounter(ctx context.Context, c *model.ProductCounter) error
	ListCounters(ctx context.Context, animalTypeID string) ([]model.ProductCounter, error)

	// Append-only ledger
	AppendEvent(ctx context.Context, e *model.LedgerEvent) error
	ListEvents(ctx context.Context, filters *dto.EventFilters) ([]model.LedgerEvent, int, error)

	AppendErrorLog(ctx context.Context, l *model.ErrorLog) error
	GetErrorLog(ctx context.Context, id string) (*model.ErrorLog, error)
	ListErrorLogs(ctx context.Context, filters *dto.ErrorLogFilters) ([]model.ErrorLog, error)
	SetErrorLogResolution(ctx context.Context, id, resolution string) error

	CreateShipment(ctx context.Context, s *model.Shipment) error
	GetShipmentForUpdate(ctx context.Context, id string) (*model.Shipment, error)
	MarkShipmentReceived(ctx context.Context, s *model.Shipment) error
	ListShipments(ctx context.Context, status model.ShipmentStatus) ([]model.Shipment, error)
}
