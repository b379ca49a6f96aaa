package dto

import "github.com/fekuna/qurban-engine/internal/model"

type AnimalFilters struct {
	TypeID   string
	Status   model.Status
	IsShared *bool
	Page     int
	PageSize int
}

type RegisterResult struct {
	AnimalType model.AnimalType `json:"animal_type"`
	Bindings   []model.Binding  `json:"bindings"`
}

// Identifiers lists the identifiers bound to the purchase.
func (r *RegisterResult) Identifiers() []string {
	out := make([]string, len(r.Bindings))
	for i, b := range r.Bindings {
		out[i] = b.Identifier
	}
	return out
}

// ImportOutcome pairs one bulk-import request with its result or error.
type ImportOutcome struct {
	Index  int
	Result *RegisterResult
	Err    error
}
