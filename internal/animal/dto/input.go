package dto

import "github.com/fekuna/qurban-engine/internal/model"

type CreateTypeInput struct {
	Name            string
	Category        model.AnimalCategory
	Target          int
	MaxPrice        float64
	CollectivePrice *float64
	// Optional overrides of the category defaults.
	GroupingPolicy model.GroupingPolicy
	SharingPolicy  model.SharingPolicy
}

type RegisterMetadata struct {
	BuyerName string `json:"buyer_name"`
	Note      string `json:"note"`
}

type RegisterInput struct {
	AnimalTypeID string           `json:"animal_type_id"`
	Quantity     int              `json:"quantity"`
	IsCollective bool             `json:"is_collective"`
	Metadata     RegisterMetadata `json:"metadata"`
}
