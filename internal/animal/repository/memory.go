package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/internal/model"
)

// MemoryRepository keeps animals in process memory. Row locks are no-ops;
// pair it with tx.LocalManager, which serializes whole transactions.
type MemoryRepository struct {
	mu        sync.RWMutex
	types     map[string]model.AnimalType
	animals   map[string]model.AnimalInstance
	seqOf     map[string]int64 // insertion order, breaks created_at ties
	nextSeq   int64
	sequences map[string]int
	groupSize *int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		types:     make(map[string]model.AnimalType),
		animals:   make(map[string]model.AnimalInstance),
		seqOf:     make(map[string]int64),
		sequences: make(map[string]int),
	}
}

func (r *MemoryRepository) CreateType(_ context.Context, t *model.AnimalType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.ID]; exists {
		return fmt.Errorf("animal type %s already exists", t.ID)
	}
	r.types[t.ID] = *t
	return nil
}

func (r *MemoryRepository) GetType(_ context.Context, id string) (*model.AnimalType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *MemoryRepository) GetTypeForUpdate(ctx context.Context, id string) (*model.AnimalType, error) {
	return r.GetType(ctx, id)
}

func (r *MemoryRepository) ListTypes(_ context.Context) ([]model.AnimalType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AnimalType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) Create(_ context.Context, a *model.AnimalInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.animals[a.ID]; exists {
		return fmt.Errorf("animal %s already exists", a.ID)
	}
	for _, existing := range r.animals {
		if existing.Identifier == a.Identifier {
			return fmt.Errorf("failed to create animal %s: identifier already in use", a.Identifier)
		}
	}
	r.animals[a.ID] = cloneAnimal(*a)
	r.nextSeq++
	r.seqOf[a.ID] = r.nextSeq
	return nil
}

func (r *MemoryRepository) FindByIdentifier(_ context.Context, identifier string) (*model.AnimalInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.animals {
		if a.Identifier == identifier {
			c := cloneAnimal(a)
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FindByIdentifierForUpdate(ctx context.Context, identifier string) (*model.AnimalInstance, error) {
	return r.FindByIdentifier(ctx, identifier)
}

func (r *MemoryRepository) FindAll(_ context.Context, f *dto.AnimalFilters) ([]model.AnimalInstance, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []model.AnimalInstance
	for _, a := range r.sortedLocked() {
		if f.TypeID != "" && a.TypeID != f.TypeID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.IsShared != nil && a.IsShared != *f.IsShared {
			continue
		}
		items = append(items, a)
	}

	count := len(items)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.PageSize
		if start > count {
			start = count
		}
		end := start + f.PageSize
		if end > count {
			end = count
		}
		items = items[start:end]
	}
	return items, count, nil
}

func (r *MemoryRepository) ListByTypeInCreationOrder(_ context.Context, typeID string) ([]model.AnimalInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.AnimalInstance
	for _, a := range r.sortedLocked() {
		if a.TypeID == typeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, a *model.AnimalInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.animals[a.ID]
	if !ok {
		return fmt.Errorf("animal %s: expected 1 row affected, got 0", a.ID)
	}
	updated := cloneAnimal(*a)
	// Identity and share columns are owned by other methods.
	updated.Identifier = existing.Identifier
	updated.TypeID = existing.TypeID
	updated.IsShared = existing.IsShared
	updated.RemainingShares = existing.RemainingShares
	updated.CreatedAt = existing.CreatedAt
	r.animals[a.ID] = updated
	return nil
}

func (r *MemoryRepository) UpdateIdentifier(_ context.Context, id, identifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.animals[id]
	if !ok {
		return fmt.Errorf("animal %s: expected 1 row affected, got 0", id)
	}
	a.Identifier = identifier
	a.UpdatedAt = time.Now()
	r.animals[id] = a
	return nil
}

func (r *MemoryRepository) FindOpenSharedForUpdate(_ context.Context, typeID string) (*model.AnimalInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *model.AnimalInstance
	for _, a := range r.sortedLocked() {
		if a.TypeID != typeID || !a.IsShared || a.RemainingShares == nil || *a.RemainingShares <= 0 {
			continue
		}
		if best == nil || *a.RemainingShares > *best.RemainingShares {
			c := a
			best = &c
		}
	}
	return best, nil
}

func (r *MemoryRepository) UpdateRemainingShares(_ context.Context, id string, remaining int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.animals[id]
	if !ok || !a.IsShared {
		return fmt.Errorf("animal %s: expected 1 row affected, got 0", id)
	}
	a.RemainingShares = &remaining
	a.UpdatedAt = time.Now()
	r.animals[id] = a
	return nil
}

func (r *MemoryRepository) ReserveOrdinals(_ context.Context, typeID string, n int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := r.sequences[typeID]
	if !ok {
		for _, a := range r.animals {
			if a.TypeID == typeID {
				next++
			}
		}
	}
	r.sequences[typeID] = next + n
	return next, nil
}

func (r *MemoryRepository) ResetSequence(_ context.Context, typeID string, next int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences[typeID] = next
	return nil
}

func (r *MemoryRepository) GetGroupSize(_ context.Context) (int, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.groupSize == nil {
		return 0, false, nil
	}
	return *r.groupSize, true, nil
}

func (r *MemoryRepository) SetGroupSize(_ context.Context, size int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groupSize = &size
	return nil
}

// sortedLocked returns clones of all animals in creation order.
func (r *MemoryRepository) sortedLocked() []model.AnimalInstance {
	out := make([]model.AnimalInstance, 0, len(r.animals))
	for _, a := range r.animals {
		out = append(out, cloneAnimal(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return r.seqOf[out[i].ID] < r.seqOf[out[j].ID]
	})
	return out
}

func cloneAnimal(a model.AnimalInstance) model.AnimalInstance {
	if a.RemainingShares != nil {
		v := *a.RemainingShares
		a.RemainingShares = &v
	}
	if a.MeatPackages != nil {
		v := *a.MeatPackages
		a.MeatPackages = &v
	}
	return a
}
