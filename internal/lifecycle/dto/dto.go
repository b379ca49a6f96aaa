package dto

import "github.com/fekuna/qurban-engine/internal/model"

// AdvanceInput moves an animal one step, or straight to Target when set.
type AdvanceInput struct {
	Identifier   string        `json:"identifier"`
	Target       *model.Status `json:"target_status"`
	ActorID      string        `json:"-"`
	MeatPackages *int          `json:"meat_packages"`
}

type AdvanceResult struct {
	Animal       model.AnimalInstance `json:"animal"`
	Previous     model.Status         `json:"previous_status"`
	Current      model.Status         `json:"current_status"`
	SeededEvents []model.LedgerEvent  `json:"seeded_events"`
}

type FlagInput struct {
	Identifier string `json:"identifier"`
	Value      bool   `json:"value"`
	ActorID    string `json:"-"`
}

// StatusChangedPayload is published as animal.status_changed.
type StatusChangedPayload struct {
	AnimalID   string       `json:"animal_id"`
	Identifier string       `json:"identifier"`
	Previous   model.Status `json:"previous_status"`
	Current    model.Status `json:"current_status"`
	Override   bool         `json:"override"`
	Seeded     int          `json:"seeded"`
	ActorID    string       `json:"actor_id,omitempty"`
}
