package usecase_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/qurban-engine/internal/animal"
	animaldto "github.com/fekuna/qurban-engine/internal/animal/dto"
	animalrepo "github.com/fekuna/qurban-engine/internal/animal/repository"
	animaluc "github.com/fekuna/qurban-engine/internal/animal/usecase"
	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/lifecycle"
	"github.com/fekuna/qurban-engine/internal/lifecycle/dto"
	"github.com/fekuna/qurban-engine/internal/lifecycle/usecase"
	"github.com/fekuna/qurban-engine/internal/metrics"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product"
	productdto "github.com/fekuna/qurban-engine/internal/product/dto"
	productrepo "github.com/fekuna/qurban-engine/internal/product/repository"
	productuc "github.com/fekuna/qurban-engine/internal/product/usecase"
	"github.com/fekuna/qurban-engine/pkg/apperror"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
)

type fixture struct {
	ctx        context.Context
	uc         lifecycle.UseCase
	animals    animal.UseCase
	animalRepo *animalrepo.MemoryRepository
	ledger     product.UseCase
	events     *event.Recorder
	metrics    *metrics.Metrics
	cow        *model.AnimalType
	products   map[string]*model.ByProductType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:        context.Background(),
		animalRepo: animalrepo.NewMemoryRepository(),
		events:     &event.Recorder{},
		metrics:    metrics.NewWithRegistry(prometheus.NewRegistry()),
		products:   map[string]*model.ByProductType{},
	}
	log := logger.NewNop()
	txm := tx.NewLocalManager()
	dispatcher := event.NewDispatcher(f.events, log)

	f.animals = animaluc.NewAnimalUseCase(f.animalRepo, txm, dispatcher, f.metrics, 50, log)
	products := productrepo.NewMemoryRepository()
	f.ledger = productuc.NewProductUseCase(products, nil, f.animalRepo, txm, dispatcher, f.metrics, log)
	f.uc = usecase.NewLifecycleUseCase(f.animalRepo, products, f.ledger, txm, dispatcher, f.metrics, log)

	var err error
	f.cow, err = f.animals.CreateType(f.ctx, &animaldto.CreateTypeInput{Name: "cow", Category: model.CategoryLarge, Target: 20})
	require.NoError(t, err)

	for name, kind := range map[string]model.ProductKind{
		"meat": model.ProductMeat,
		"hide": model.ProductHide,
		"head": model.ProductHead,
	} {
		p, err := f.ledger.CreateProduct(f.ctx, &productdto.CreateProductInput{AnimalTypeID: f.cow.ID, Name: name, Kind: kind})
		require.NoError(t, err)
		f.products[name] = p
	}
	return f
}

func (f *fixture) register(t *testing.T) string {
	t.Helper()
	res, err := f.animals.Register(f.ctx, &animaldto.RegisterInput{AnimalTypeID: f.cow.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	return res.Bindings[0].Identifier
}

func (f *fixture) produced(t *testing.T, name string) int {
	t.Helper()
	c, err := f.ledger.GetCounter(f.ctx, f.products[name].ID)
	require.NoError(t, err)
	return c.Produced
}

func (f *fixture) advance(t *testing.T, identifier string, target *model.Status) *dto.AdvanceResult {
	t.Helper()
	res, err := f.uc.Advance(f.ctx, &dto.AdvanceInput{Identifier: identifier, Target: target, ActorID: "panitia-1"})
	require.NoError(t, err)
	return res
}

func status(s model.Status) *model.Status { return &s }

func TestAdvance_WalksStatesInOrder(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)

	prev := model.StatusRegistered
	for _, want := range model.Statuses[1:] {
		res := f.advance(t, id, nil)
		assert.Equal(t, prev, res.Previous)
		assert.Equal(t, want, res.Current)
		assert.Equal(t, want, res.Animal.Status)
		prev = want
	}

	_, err := f.uc.Advance(f.ctx, &dto.AdvanceInput{Identifier: id})
	require.ErrorIs(t, err, apperror.ErrAlreadyTerminal)

	a, err := f.animals.GetAnimal(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, a.Status)
	assert.Len(t, f.events.OfType(event.TypeAnimalStatusChanged), 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("PROCESSED", "advance")))
}

func TestAdvance_SlaughterSeedsNonMeatProductsOnce(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)

	res := f.advance(t, id, status(model.StatusSlaughtered))
	assert.True(t, res.Animal.Slaughtered)
	require.NotNil(t, res.Animal.SlaughteredBy)
	assert.Equal(t, "panitia-1", *res.Animal.SlaughteredBy)
	require.Len(t, res.SeededEvents, 2)
	for _, e := range res.SeededEvents {
		assert.Equal(t, model.DirectionAdd, e.Direction)
		assert.Equal(t, model.LocationProduction, e.Location)
		assert.Equal(t, 1, e.Quantity)
	}
	assert.Equal(t, 1, f.produced(t, "hide"))
	assert.Equal(t, 1, f.produced(t, "head"))
	assert.Equal(t, 0, f.produced(t, "meat"))

	// Re-applying, or going back and forward again, must not seed twice.
	res = f.advance(t, id, status(model.StatusSlaughtered))
	assert.Empty(t, res.SeededEvents)
	f.advance(t, id, status(model.StatusArrived))
	f.advance(t, id, nil)
	res = f.advance(t, id, nil)
	assert.Equal(t, model.StatusSlaughtered, res.Current)
	assert.Empty(t, res.SeededEvents)

	assert.Equal(t, 1, f.produced(t, "hide"))
	assert.Equal(t, 1, f.produced(t, "head"))
}

func TestAdvance_OverrideToProcessedDoesNotSeed(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)

	res := f.advance(t, id, status(model.StatusProcessed))
	assert.Empty(t, res.SeededEvents)
	assert.False(t, res.Animal.Slaughtered)
	assert.Equal(t, 0, f.produced(t, "hide"))
}

func TestAdvance_ProcessedStampsAreKept(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)
	f.advance(t, id, status(model.StatusSlaughtered))

	four := 4
	res, err := f.uc.Advance(f.ctx, &dto.AdvanceInput{Identifier: id, ActorID: "panitia-2", MeatPackages: &four})
	require.NoError(t, err)
	require.NotNil(t, res.Animal.ProcessedAt)
	require.NotNil(t, res.Animal.MeatPackages)
	assert.Equal(t, 4, *res.Animal.MeatPackages)
	stamped := *res.Animal.ProcessedAt

	nine := 9
	res, err = f.uc.Advance(f.ctx, &dto.AdvanceInput{Identifier: id, Target: status(model.StatusProcessed), ActorID: "panitia-3", MeatPackages: &nine})
	require.NoError(t, err)
	assert.Equal(t, 4, *res.Animal.MeatPackages)
	assert.True(t, stamped.Equal(*res.Animal.ProcessedAt))
	assert.Equal(t, "panitia-2", *res.Animal.ProcessedBy)
}

func TestAdvance_DefaultsMeatPackagesToOne(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)

	res := f.advance(t, id, status(model.StatusProcessed))
	require.NotNil(t, res.Animal.MeatPackages)
	assert.Equal(t, 1, *res.Animal.MeatPackages)
}

func TestAdvance_Rejections(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)

	_, err := f.uc.Advance(f.ctx, &dto.AdvanceInput{Identifier: "cow_404"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.uc.Advance(f.ctx, &dto.AdvanceInput{Identifier: id, Target: status("EATEN")})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	negative := -2
	_, err = f.uc.Advance(f.ctx, &dto.AdvanceInput{Identifier: id, MeatPackages: &negative})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	a, err := f.animals.GetAnimal(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRegistered, a.Status)
	assert.Empty(t, f.events.OfType(event.TypeAnimalStatusChanged))
}

func TestFlags(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)

	a, err := f.uc.SetInventory(f.ctx, &dto.FlagInput{Identifier: id, Value: true, ActorID: "gudang"})
	require.NoError(t, err)
	assert.True(t, a.OnInventory)
	require.NotNil(t, a.InventoryBy)
	assert.Equal(t, "gudang", *a.InventoryBy)

	a, err = f.uc.SetBuyerReceived(f.ctx, &dto.FlagInput{Identifier: id, Value: true})
	require.NoError(t, err)
	assert.True(t, a.ReceivedByBuyer)
	assert.NotNil(t, a.ReceivedAt)
	assert.Nil(t, a.ReceivedBy)
	assert.True(t, a.OnInventory)

	a, err = f.uc.SetInventory(f.ctx, &dto.FlagInput{Identifier: id, Value: false})
	require.NoError(t, err)
	assert.False(t, a.OnInventory)
	assert.Nil(t, a.InventoryAt)

	_, err = f.uc.SetBuyerReceived(f.ctx, &dto.FlagInput{Identifier: "cow_404", Value: true})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
