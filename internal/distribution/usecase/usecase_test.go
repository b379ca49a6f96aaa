package usecase_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	animalrepo "github.com/fekuna/qurban-engine/internal/animal/repository"
	"github.com/fekuna/qurban-engine/internal/distribution"
	"github.com/fekuna/qurban-engine/internal/distribution/dto"
	"github.com/fekuna/qurban-engine/internal/distribution/repository"
	"github.com/fekuna/qurban-engine/internal/distribution/usecase"
	"github.com/fekuna/qurban-engine/internal/event"
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
	ctx     context.Context
	uc      distribution.UseCase
	repo    *repository.MemoryRepository
	ledger  product.UseCase
	events  *event.Recorder
	metrics *metrics.Metrics
	meat    *model.ByProductType
	hide    *model.ByProductType
	warga   *model.DistributionCategory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		repo:    repository.NewMemoryRepository(),
		events:  &event.Recorder{},
		metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	log := logger.NewNop()
	txm := tx.NewLocalManager()
	dispatcher := event.NewDispatcher(f.events, log)

	animals := animalrepo.NewMemoryRepository()
	require.NoError(t, animals.CreateType(f.ctx, &model.AnimalType{
		BaseModel:      model.BaseModel{ID: "type-cow", CreatedAt: time.Now()},
		Name:           "cow",
		Category:       model.CategoryLarge,
		GroupingPolicy: model.GroupingByVolume,
		SharingPolicy:  model.SharingCollective,
	}))
	products := productrepo.NewMemoryRepository()
	f.ledger = productuc.NewProductUseCase(products, nil, animals, txm, dispatcher, f.metrics, log)
	f.uc = usecase.NewDistributionUseCase(f.repo, products, f.ledger, txm, dispatcher, f.metrics, log)

	var err error
	f.meat, err = f.ledger.CreateProduct(f.ctx, &productdto.CreateProductInput{AnimalTypeID: "type-cow", Name: "meat pack", Kind: model.ProductMeat})
	require.NoError(t, err)
	f.hide, err = f.ledger.CreateProduct(f.ctx, &productdto.CreateProductInput{AnimalTypeID: "type-cow", Name: "hide", Kind: model.ProductHide})
	require.NoError(t, err)
	for _, p := range []*model.ByProductType{f.meat, f.hide} {
		for _, loc := range []string{"PRODUCTION", "INVENTORY"} {
			_, err := f.ledger.Post(f.ctx, &productdto.PostInput{ProductID: p.ID, Direction: "ADD", Location: loc, Quantity: 2})
			require.NoError(t, err)
		}
	}

	f.warga, err = f.uc.CreateCategory(f.ctx, &dto.CreateCategoryInput{Name: "warga", Target: 100})
	require.NoError(t, err)
	return f
}

func (f *fixture) recipient(t *testing.T, name string) *model.Recipient {
	t.Helper()
	r, err := f.uc.CreateRecipient(f.ctx, &dto.CreateRecipientInput{CategoryID: f.warga.ID, Name: name})
	require.NoError(t, err)
	return r
}

func (f *fixture) delivered(t *testing.T, p *model.ByProductType) int {
	t.Helper()
	c, err := f.ledger.GetCounter(f.ctx, p.ID)
	require.NoError(t, err)
	return c.Delivered
}

func (f *fixture) realized(t *testing.T) int {
	t.Helper()
	cats, err := f.uc.ListCategories(f.ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	return cats[0].Realized
}

func TestCreateRecipient_IssuesCoupon(t *testing.T) {
	f := newFixture(t)
	a := f.recipient(t, "Pak Ahmad")
	b := f.recipient(t, "Bu Rina")

	pattern := regexp.MustCompile(`^KPN-[0-9A-F]{8}$`)
	assert.Regexp(t, pattern, a.CouponCode)
	assert.Regexp(t, pattern, b.CouponCode)
	assert.NotEqual(t, a.CouponCode, b.CouponCode)
	assert.False(t, a.Received)

	_, err := f.uc.CreateRecipient(f.ctx, &dto.CreateRecipientInput{CategoryID: "nope", Name: "x"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = f.uc.CreateRecipient(f.ctx, &dto.CreateRecipientInput{CategoryID: f.warga.ID, Name: "  "})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDistribute_UpdatesCountersCategoryAndRecipient(t *testing.T) {
	f := newFixture(t)
	r := f.recipient(t, "Pak Ahmad")

	res, err := f.uc.Distribute(f.ctx, &dto.DistributeInput{
		RecipientID: r.ID,
		ProductIDs:  []string{f.meat.ID, f.hide.ID},
		Quantity:    1,
		ActorID:     "panitia-1",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Discrepancies)
	assert.Equal(t, 1, res.Record.PackageCount)
	require.Len(t, res.Record.Items, 2)
	require.NotNil(t, res.Record.CreatedBy)
	assert.True(t, res.Recipient.Received)
	assert.NotNil(t, res.Recipient.ReceivedAt)

	assert.Equal(t, 1, f.delivered(t, f.meat))
	assert.Equal(t, 1, f.delivered(t, f.hide))
	assert.Equal(t, 1, f.realized(t))

	received := true
	done, err := f.uc.ListRecipients(f.ctx, &dto.RecipientFilters{ReceivedOnly: &received})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, r.ID, done[0].ID)

	records, total, err := f.uc.ListRecords(f.ctx, &dto.RecordFilters{RecipientID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, records[0].Items, 2)

	assert.Len(t, f.events.OfType(event.TypeDistributionRecorded), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Distributions))
}

func TestDistribute_FlagsDeliveredBeyondReceived(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.Distribute(f.ctx, &dto.DistributeInput{RecipientID: f.recipient(t, "A").ID, ProductIDs: []string{f.hide.ID}, Quantity: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Discrepancies)

	res, err = f.uc.Distribute(f.ctx, &dto.DistributeInput{RecipientID: f.recipient(t, "B").ID, ProductIDs: []string{f.hide.ID}, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 1)
	d := res.Discrepancies[0]
	assert.Equal(t, model.DiscrepancyDeliveredExceedsReceived, d.Kind)
	assert.Equal(t, 2, d.Expected)
	assert.Equal(t, 3, d.Actual)

	assert.Equal(t, 3, f.delivered(t, f.hide))
	assert.Equal(t, 2, f.realized(t))

	logs, err := f.ledger.ListErrorLogs(f.ctx, &productdto.ErrorLogFilters{ProductID: f.hide.ID})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestDistribute_RejectsWithoutPartialEffects(t *testing.T) {
	f := newFixture(t)
	r := f.recipient(t, "Pak Ahmad")

	cases := []struct {
		name  string
		input dto.DistributeInput
		want  error
	}{
		{"zero quantity", dto.DistributeInput{RecipientID: r.ID, ProductIDs: []string{f.meat.ID}}, apperror.ErrValidation},
		{"no products", dto.DistributeInput{RecipientID: r.ID, Quantity: 1}, apperror.ErrValidation},
		{"duplicate product", dto.DistributeInput{RecipientID: r.ID, ProductIDs: []string{f.meat.ID, f.meat.ID}, Quantity: 1}, apperror.ErrValidation},
		{"unknown recipient", dto.DistributeInput{RecipientID: "ghost", ProductIDs: []string{f.meat.ID}, Quantity: 1}, apperror.ErrNotFound},
		{"unknown product", dto.DistributeInput{RecipientID: r.ID, ProductIDs: []string{f.meat.ID, "ghost"}, Quantity: 1}, apperror.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.Distribute(f.ctx, &tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Equal(t, 0, f.delivered(t, f.meat))
	assert.Equal(t, 0, f.realized(t))
	_, total, err := f.uc.ListRecords(f.ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, f.events.OfType(event.TypeDistributionRecorded))
}

func TestDistribute_SecondHandoutIsRefused(t *testing.T) {
	f := newFixture(t)
	r := f.recipient(t, "Pak Ahmad")
	input := &dto.DistributeInput{RecipientID: r.ID, ProductIDs: []string{f.meat.ID}, Quantity: 1}

	_, err := f.uc.Distribute(f.ctx, input)
	require.NoError(t, err)
	_, err = f.uc.Distribute(f.ctx, input)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	assert.Equal(t, 1, f.delivered(t, f.meat))
	assert.Equal(t, 1, f.realized(t))
}
