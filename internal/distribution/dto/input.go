package dto

type CreateCategoryInput struct {
	Name   string `json:"name"`
	Target int    `json:"target"`
}

type CreateRecipientInput struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
}

type DistributeInput struct {
	RecipientID string   `json:"recipient_id"`
	ProductIDs  []string `json:"product_ids"`
	Quantity    int      `json:"quantity"`
	ActorID     string   `json:"-"`
}
