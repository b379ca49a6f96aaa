package dto

import "github.com/fekuna/qurban-engine/internal/model"

type CreateProductInput struct {
	AnimalTypeID   string            `json:"animal_type_id"`
	Name           string            `json:"name"`
	Kind           model.ProductKind `json:"kind"`
	UnitWeight     *float64          `json:"unit_weight"`
	TargetPackages int               `json:"target_packages"`
}

type PostInput struct {
	ProductID string `json:"product_id"`
	Direction string `json:"direction"`
	Location  string `json:"location"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note"`
}

type ShipmentItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateShipmentInput struct {
	Items []ShipmentItemInput `json:"items"`
	Note  string              `json:"note"`
}

type ReceiveShipmentInput struct {
	ShipmentID string              `json:"shipment_id"`
	Items      []ShipmentItemInput `json:"items"`
}
