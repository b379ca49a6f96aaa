package dto

import "github.com/fekuna/qurban-engine/internal/model"

type RecipientFilters struct {
	CategoryID   string `json:"category_id"`
	ReceivedOnly *bool  `json:"received"`
}

type RecordFilters struct {
	RecipientID string `json:"recipient_id"`
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
}

// DistributeResult carries the record plus any delivered-exceeds-received
// discrepancies the handout produced. Those never block the handout.
type DistributeResult struct {
	Record        model.DistributionRecord `json:"record"`
	Recipient     model.Recipient          `json:"recipient"`
	Discrepancies []model.Discrepancy      `json:"discrepancies"`
}

// RecordedPayload is published as distribution.recorded.
type RecordedPayload struct {
	RecordID    string   `json:"record_id"`
	RecipientID string   `json:"recipient_id"`
	CategoryID  string   `json:"category_id"`
	ProductIDs  []string `json:"product_ids"`
	Quantity    int      `json:"quantity"`
}
