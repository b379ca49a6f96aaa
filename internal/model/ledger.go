package model

import (
	"fmt"
	"strings"
	"time"
)

type Direction string

const (
	DirectionAdd      Direction = "ADD"
	DirectionDecrease Direction = "DECREASE"
)

func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(raw))); d {
	case DirectionAdd, DirectionDecrease:
		return d, nil
	}
	return "", fmt.Errorf("unrecognized direction %q", raw)
}

type Location string

const (
	LocationProduction Location = "PRODUCTION"
	LocationInventory  Location = "INVENTORY"
)

func ParseLocation(raw string) (Location, error) {
	switch l := Location(strings.ToUpper(strings.TrimSpace(raw))); l {
	case LocationProduction, LocationInventory:
		return l, nil
	}
	return "", fmt.Errorf("unrecognized location %q", raw)
}

type LedgerEvent struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Direction Direction `db:"direction" json:"direction"`
	Location  Location  `db:"location" json:"location"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Note      string    `db:"note" json:"note"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type DiscrepancyKind string

const (
	DiscrepancyReceivedExceedsProduced  DiscrepancyKind = "RECEIVED_EXCEEDS_PRODUCED"
	DiscrepancyDeliveredExceedsReceived DiscrepancyKind = "DELIVERED_EXCEEDS_RECEIVED"
	DiscrepancyShipmentMismatch         DiscrepancyKind = "SHIPMENT_MISMATCH"
)

type ErrorLog struct {
	ID         string          `db:"id" json:"id"`
	ProductID  string          `db:"product_id" json:"product_id"`
	Kind       DiscrepancyKind `db:"kind" json:"kind"`
	Expected   int             `db:"expected" json:"expected"`
	Actual     int             `db:"actual" json:"actual"`
	Note       string          `db:"note" json:"note"`
	Resolution *string         `db:"resolution" json:"resolution"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Discrepancy is the non-blocking outcome attached to a ledger result.
type Discrepancy struct {
	ErrorLogID string          `json:"error_log_id"`
	ProductID  string          `json:"product_id"`
	Kind       DiscrepancyKind `json:"kind"`
	Expected   int             `json:"expected"`
	Actual     int             `json:"actual"`
	DetectedAt time.Time       `json:"detected_at"`
}

type ShipmentStatus string

const (
	ShipmentShipped  ShipmentStatus = "SHIPPED"
	ShipmentReceived ShipmentStatus = "RECEIVED"
)

type Shipment struct {
	ID         string         `db:"id" json:"id"`
	Status     ShipmentStatus `db:"status" json:"status"`
	Note       *string        `db:"note" json:"note"`
	ShippedAt  time.Time      `db:"shipped_at" json:"shipped_at"`
	ReceivedAt *time.Time     `db:"received_at" json:"received_at"`
	Items      []ShipmentItem `db:"-" json:"items"`
}

type ShipmentItem struct {
	ShipmentID string `db:"shipment_id" json:"shipment_id"`
	ProductID  string `db:"product_id" json:"product_id"`
	Quantity   int    `db:"quantity" json:"quantity"`
}
