package model

import "time"

type ProductKind string

const (
	ProductMeat   ProductKind = "MEAT"
	ProductHide   ProductKind = "HIDE"
	ProductHead   ProductKind = "HEAD"
	ProductBones  ProductKind = "BONES"
	ProductOrgans ProductKind = "ORGANS"
	ProductFeet   ProductKind = "FEET"
	ProductOther  ProductKind = "OTHER"
)

var ProductKinds = []ProductKind{
	ProductMeat, ProductHide, ProductHead, ProductBones, ProductOrgans, ProductFeet, ProductOther,
}

func (k ProductKind) Valid() bool {
	for _, v := range ProductKinds {
		if v == k {
			return true
		}
	}
	return false
}

type ByProductType struct {
	BaseModel
	AnimalTypeID   string      `db:"animal_type_id" json:"animal_type_id"`
	Name           string      `db:"name" json:"name"`
	Kind           ProductKind `db:"kind" json:"kind"`
	UnitWeight     *float64    `db:"unit_weight" json:"unit_weight"`
	TargetPackages int         `db:"target_packages" json:"target_packages"`
}

// IsMeat reports whether the product needs a manual weigh-in instead of
// being seeded at slaughter.
func (p *ByProductType) IsMeat() bool {
	return p.Kind == ProductMeat
}

type ProductCounter struct {
	ProductID string    `db:"product_id" json:"product_id"`
	Produced  int       `db:"produced" json:"produced"`
	Received  int       `db:"received" json:"received"`
	Delivered int       `db:"delivered" json:"delivered"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
