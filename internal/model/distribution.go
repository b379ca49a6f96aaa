package model

import "time"

type DistributionCategory struct {
	BaseModel
	Name     string `db:"name" json:"name"`
	Target   int    `db:"target" json:"target"`
	Realized int    `db:"realized" json:"realized"`
}

type Recipient struct {
	BaseModel
	CategoryID string     `db:"category_id" json:"category_id"`
	Name       string     `db:"name" json:"name"`
	CouponCode string     `db:"coupon_code" json:"coupon_code"`
	Received   bool       `db:"received" json:"received"`
	ReceivedAt *time.Time `db:"received_at" json:"received_at"`
}

type DistributionRecord struct {
	ID           string             `db:"id" json:"id"`
	RecipientID  string             `db:"recipient_id" json:"recipient_id"`
	PackageCount int                `db:"package_count" json:"package_count"`
	CreatedBy    *string            `db:"created_by" json:"created_by"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	Items        []DistributionItem `db:"-" json:"items"`
}

type DistributionItem struct {
	RecordID  string `db:"record_id" json:"record_id"`
	ProductID string `db:"product_id" json:"product_id"`
	Quantity  int    `db:"quantity" json:"quantity"`
}
