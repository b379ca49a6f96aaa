package dto

import (
	"time"

	"github.com/fekuna/qurban-engine/internal/model"
)

type EventFilters struct {
	ProductID string
	Location  model.Location
	Page      int
	PageSize  int
}

type ErrorLogFilters struct {
	ProductID      string
	UnresolvedOnly bool
}

// PostResult reports a ledger mutation. Discrepancy is set when the mutation
// was applied but left the counters violating conservation.
type PostResult struct {
	Applied         bool                 `json:"applied"`
	AppliedQuantity int                  `json:"applied_quantity"`
	Counter         model.ProductCounter `json:"counter"`
	Event           *model.LedgerEvent   `json:"event,omitempty"`
	Discrepancy     *model.Discrepancy   `json:"discrepancy,omitempty"`
}

type ReceiveShipmentResult struct {
	Shipment      model.Shipment      `json:"shipment"`
	Posts         []PostResult        `json:"posts"`
	Discrepancies []model.Discrepancy `json:"discrepancies"`
}

// Finding is a counter that violates conservation at sweep time.
type Finding struct {
	ProductID string                `json:"product_id"`
	Kind      model.DiscrepancyKind `json:"kind"`
	Expected  int                   `json:"expected"`
	Actual    int                   `json:"actual"`
}

type ReconcileReport struct {
	Checked   int       `json:"checked"`
	Findings  []Finding `json:"findings"`
	CheckedAt time.Time `json:"checked_at"`
}
