package model

import (
	"fmt"
	"strings"
	"time"
)

// MaxShares is the physical division of one collective animal.
const MaxShares = 7

// VolumeGroupingThreshold is the registration target above which BY_VOLUME
// types get grouped identifiers.
const VolumeGroupingThreshold = 100

type AnimalCategory string

const (
	CategoryLarge AnimalCategory = "LARGE" // indivisible-large, e.g. cattle
	CategorySmall AnimalCategory = "SMALL" // whole-small, e.g. goat, sheep
)

type GroupingPolicy string

const (
	GroupingAlways   GroupingPolicy = "ALWAYS"
	GroupingByVolume GroupingPolicy = "BY_VOLUME"
)

type SharingPolicy string

const (
	SharingNone       SharingPolicy = "NONE"
	SharingCollective SharingPolicy = "COLLECTIVE"
)

type AnimalType struct {
	BaseModel
	Name            string         `db:"name" json:"name"`
	Category        AnimalCategory `db:"category" json:"category"`
	Target          int            `db:"target" json:"target"`
	MaxPrice        float64        `db:"max_price" json:"max_price"`
	CollectivePrice *float64       `db:"collective_price" json:"collective_price"`
	GroupingPolicy  GroupingPolicy `db:"grouping_policy" json:"grouping_policy"`
	SharingPolicy   SharingPolicy  `db:"sharing_policy" json:"sharing_policy"`
}

// DefaultPolicies returns the capability flags a category gets when a type
// is created without explicit policies.
func DefaultPolicies(c AnimalCategory) (GroupingPolicy, SharingPolicy) {
	if c == CategorySmall {
		return GroupingAlways, SharingNone
	}
	return GroupingByVolume, SharingCollective
}

// IsGrouped reports whether identifiers of this type carry a group letter.
func (t *AnimalType) IsGrouped() bool {
	switch t.GroupingPolicy {
	case GroupingAlways:
		return true
	case GroupingByVolume:
		return t.Target > VolumeGroupingThreshold
	}
	return false
}

func (t *AnimalType) IsShareable() bool {
	return t.SharingPolicy == SharingCollective
}

type Status string

const (
	StatusRegistered    Status = "REGISTERED"
	StatusArrived       Status = "ARRIVED"
	StatusHealthChecked Status = "HEALTH_CHECKED"
	StatusSlaughtered   Status = "SLAUGHTERED"
	StatusProcessed     Status = "PROCESSED"
)

// Statuses lists every processing status in lifecycle order.
var Statuses = []Status{
	StatusRegistered,
	StatusArrived,
	StatusHealthChecked,
	StatusSlaughtered,
	StatusProcessed,
}

// Index returns the position of s in Statuses, or -1.
func (s Status) Index() int {
	for i, v := range Statuses {
		if v == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.Index() >= 0 }

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unrecognized status %q", raw)
	}
	return s, nil
}

type AnimalInstance struct {
	BaseModel
	Identifier      string     `db:"identifier" json:"identifier"`
	TypeID          string     `db:"type_id" json:"type_id"`
	Status          Status     `db:"status" json:"status"`
	IsShared        bool       `db:"is_shared" json:"is_shared"`
	RemainingShares *int       `db:"remaining_shares" json:"remaining_shares"`
	Slaughtered     bool       `db:"slaughtered" json:"slaughtered"`
	SlaughteredAt   *time.Time `db:"slaughtered_at" json:"slaughtered_at"`
	SlaughteredBy   *string    `db:"slaughtered_by" json:"slaughtered_by"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at"`
	ProcessedBy     *string    `db:"processed_by" json:"processed_by"`
	MeatPackages    *int       `db:"meat_packages" json:"meat_packages"`
	OnInventory     bool       `db:"on_inventory" json:"on_inventory"`
	InventoryAt     *time.Time `db:"inventory_at" json:"inventory_at"`
	InventoryBy     *string    `db:"inventory_by" json:"inventory_by"`
	ReceivedByBuyer bool       `db:"received_by_buyer" json:"received_by_buyer"`
	ReceivedAt      *time.Time `db:"received_at" json:"received_at"`
	ReceivedBy      *string    `db:"received_by" json:"received_by"`
	Note            *string    `db:"note" json:"note"`
}

// Binding records how many shares of a purchase landed on one animal.
type Binding struct {
	AnimalID      string `json:"animal_id"`
	Identifier    string `json:"identifier"`
	IsNew         bool   `json:"is_new"`
	SharesGranted int    `json:"shares_granted"`
}
