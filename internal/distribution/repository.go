package distribution

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/qurban-engine/internal/distribution/dto"
	"github.com/fekuna/qurban-engine/internal/model"
)

// ErrDuplicateCoupon is returned by CreateRecipient when the coupon code is
// already issued.
var ErrDuplicateCoupon = errors.New("coupon code already issued")

// Repository returns (nil, nil) from single-row lookups when nothing matches.
type Repository interface {
	CreateCategory(ctx context.Context, c *model.DistributionCategory) error
	GetCategory(ctx context.Context, id string) (*model.DistributionCategory, error)
	ListCategories(ctx context.Context) ([]model.DistributionCategory, error)
	IncrementRealized(ctx context.Context, categoryID string, by int) error

	CreateRecipient(ctx context.Context, r *model.Recipient) error
	GetRecipientForUpdate(ctx context.Context, id string) (*model.Recipient, error)
	ListRecipients(ctx context.Context, filters *dto.RecipientFilters) ([]model.Recipient, error)
	MarkRecipientReceived(ctx context.Context, id string, at time.Time) error

	CreateRecord(ctx context.Context, rec *model.DistributionRecord) error
	ListRecords(ctx context.Context, filters *dto.RecordFilters) ([]model.DistributionRecord, int, error)
}
