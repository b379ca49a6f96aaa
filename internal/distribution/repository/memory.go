package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fekuna/qurban-engine/internal/distribution"
	"github.com/fekuna/qurban-engine/internal/distribution/dto"
	"github.com/fekuna/qurban-engine/internal/model"
)

// MemoryRepository keeps distribution state in process, in insertion order.
type MemoryRepository struct {
	mu         sync.RWMutex
	categories []model.DistributionCategory
	recipients []model.Recipient
	records    []model.DistributionRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) CreateCategory(_ context.Context, c *model.DistributionCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories = append(r.categories, *c)
	return nil
}

func (r *MemoryRepository) GetCategory(_ context.Context, id string) (*model.DistributionCategory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.categories {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListCategories(_ context.Context) ([]model.DistributionCategory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.DistributionCategory(nil), r.categories...), nil
}

func (r *MemoryRepository) IncrementRealized(_ context.Context, categoryID string, by int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.categories {
		if r.categories[i].ID == categoryID {
			r.categories[i].Realized += by
			r.categories[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("category %s: expected 1 row affected, got 0", categoryID)
}

func (r *MemoryRepository) CreateRecipient(_ context.Context, rec *model.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.recipients {
		if existing.CouponCode == rec.CouponCode {
			return distribution.ErrDuplicateCoupon
		}
	}
	r.recipients = append(r.recipients, *rec)
	return nil
}

func (r *MemoryRepository) GetRecipientForUpdate(_ context.Context, id string) (*model.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.recipients {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListRecipients(_ context.Context, f *dto.RecipientFilters) ([]model.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Recipient
	for _, rec := range r.recipients {
		if f.CategoryID != "" && rec.CategoryID != f.CategoryID {
			continue
		}
		if f.ReceivedOnly != nil && rec.Received != *f.ReceivedOnly {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *MemoryRepository) MarkRecipientReceived(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recipients {
		if r.recipients[i].ID == id {
			r.recipients[i].Received = true
			r.recipients[i].ReceivedAt = &at
			r.recipients[i].UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("recipient %s: expected 1 row affected, got 0", id)
}

func (r *MemoryRepository) CreateRecord(_ context.Context, rec *model.DistributionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	cp.Items = append([]model.DistributionItem(nil), rec.Items...)
	r.records = append(r.records, cp)
	return nil
}

// ListRecords returns newest first.
func (r *MemoryRepository) ListRecords(_ context.Context, f *dto.RecordFilters) ([]model.DistributionRecord, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []model.DistributionRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if f.RecipientID != "" && rec.RecipientID != f.RecipientID {
			continue
		}
		rec.Items = append([]model.DistributionItem(nil), rec.Items...)
		items = append(items, rec)
	}

	count := len(items)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.PageSize
		if start > len(items) {
			start = len(items)
		}
		end := min(start+f.PageSize, len(items))
		items = items[start:end]
	}
	return items, count, nil
}
