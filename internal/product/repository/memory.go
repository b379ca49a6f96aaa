package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product/dto"
)

// MemoryRepository is the in-process ledger store used with tx.LocalManager.
type MemoryRepository struct {
	mu        sync.RWMutex
	products  []model.ByProductType
	counters  map[string]model.ProductCounter
	events    []model.LedgerEvent
	errorLogs []model.ErrorLog
	shipments []model.Shipment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{counters: make(map[string]model.ProductCounter)}
}

func (r *MemoryRepository) CreateProduct(_ context.Context, p *model.ByProductType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.counters[p.ID]; exists {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	r.products = append(r.products, *p)
	r.counters[p.ID] = model.ProductCounter{ProductID: p.ID, UpdatedAt: p.CreatedAt}
	return nil
}

func (r *MemoryRepository) GetProduct(_ context.Context, id string) (*model.ByProductType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListByAnimalType(_ context.Context, animalTypeID string) ([]model.ByProductType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ByProductType
	for _, p := range r.products {
		if p.AnimalTypeID == animalTypeID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetCounter(_ context.Context, productID string) (*model.ProductCounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.counters[productID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryRepository) GetCounterForUpdate(ctx context.Context, productID string) (*model.ProductCounter, error) {
	return r.GetCounter(ctx, productID)
}

func (r *MemoryRepository) UpdateCounter(_ context.Context, c *model.ProductCounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counters[c.ProductID]; !ok {
		return fmt.Errorf("counter %s: expected 1 row affected, got 0", c.ProductID)
	}
	r.counters[c.ProductID] = *c
	return nil
}

func (r *MemoryRepository) ListCounters(_ context.Context, animalTypeID string) ([]model.ProductCounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ProductCounter
	if animalTypeID == "" {
		for _, c := range r.counters {
			out = append(out, c)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
		return out, nil
	}
	for _, p := range r.products {
		if p.AnimalTypeID == animalTypeID {
			out = append(out, r.counters[p.ID])
		}
	}
	return out, nil
}

func (r *MemoryRepository) AppendEvent(_ context.Context, e *model.LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *MemoryRepository) ListEvents(_ context.Context, f *dto.EventFilters) ([]model.LedgerEvent, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []model.LedgerEvent
	for _, e := range r.events {
		if f.ProductID != "" && e.ProductID != f.ProductID {
			continue
		}
		if f.Location != "" && e.Location != f.Location {
			continue
		}
		items = append(items, e)
	}
	count := len(items)
	if f.PageSize > 0 {
		page := max(f.Page, 1)
		start := min((page-1)*f.PageSize, count)
		end := min(start+f.PageSize, count)
		items = items[start:end]
	}
	return items, count, nil
}

func (r *MemoryRepository) AppendErrorLog(_ context.Context, l *model.ErrorLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorLogs = append(r.errorLogs, *l)
	return nil
}

func (r *MemoryRepository) GetErrorLog(_ context.Context, id string) (*model.ErrorLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.errorLogs {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, nil
}

// ListErrorLogs returns newest first.
func (r *MemoryRepository) ListErrorLogs(_ context.Context, f *dto.ErrorLogFilters) ([]model.ErrorLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ErrorLog
	for i := len(r.errorLogs) - 1; i >= 0; i-- {
		l := r.errorLogs[i]
		if f.ProductID != "" && l.ProductID != f.ProductID {
			continue
		}
		if f.UnresolvedOnly && l.Resolution != nil {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *MemoryRepository) SetErrorLogResolution(_ context.Context, id, resolution string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.errorLogs {
		if r.errorLogs[i].ID == id {
			r.errorLogs[i].Resolution = &resolution
			return nil
		}
	}
	return fmt.Errorf("error log %s: expected 1 row affected, got 0", id)
}

func (r *MemoryRepository) CreateShipment(_ context.Context, s *model.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shipments = append(r.shipments, cloneShipment(*s))
	return nil
}

func (r *MemoryRepository) GetShipmentForUpdate(_ context.Context, id string) (*model.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.shipments {
		if s.ID == id {
			c := cloneShipment(s)
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) MarkShipmentReceived(_ context.Context, s *model.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.shipments {
		if r.shipments[i].ID == s.ID {
			r.shipments[i].Status = s.Status
			r.shipments[i].ReceivedAt = s.ReceivedAt
			return nil
		}
	}
	return fmt.Errorf("shipment %s: expected 1 row affected, got 0", s.ID)
}

// ListShipments returns the most recently shipped first.
func (r *MemoryRepository) ListShipments(_ context.Context, status model.ShipmentStatus) ([]model.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Shipment
	for i := len(r.shipments) - 1; i >= 0; i-- {
		s := r.shipments[i]
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, cloneShipment(s))
	}
	return out, nil
}

func cloneShipment(s model.Shipment) model.Shipment {
	s.Items = append([]model.ShipmentItem(nil), s.Items...)
	return s
}
