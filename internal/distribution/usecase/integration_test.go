//go:build integration

package usecase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/fekuna/qurban-engine/internal/animal"
	animaldto "github.com/fekuna/qurban-engine/internal/animal/dto"
	animalrepo "github.com/fekuna/qurban-engine/internal/animal/repository"
	animaluc "github.com/fekuna/qurban-engine/internal/animal/usecase"
	"github.com/fekuna/qurban-engine/internal/distribution"
	"github.com/fekuna/qurban-engine/internal/distribution/dto"
	"github.com/fekuna/qurban-engine/internal/distribution/repository"
	"github.com/fekuna/qurban-engine/internal/distribution/usecase"
	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/lifecycle"
	lifecycledto "github.com/fekuna/qurban-engine/internal/lifecycle/dto"
	lifecycleuc "github.com/fekuna/qurban-engine/internal/lifecycle/usecase"
	"github.com/fekuna/qurban-engine/internal/metrics"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product"
	productdto "github.com/fekuna/qurban-engine/internal/product/dto"
	productrepo "github.com/fekuna/qurban-engine/internal/product/repository"
	productuc "github.com/fekuna/qurban-engine/internal/product/usecase"
	"github.com/fekuna/qurban-engine/pkg/database/postgres"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/fekuna/qurban-engine/pkg/testutil/containers"
)

const eventsChannel = "qurban.events.test"

// PostgresFlowSuite runs the engine end to end on Postgres and Redis.
type PostgresFlowSuite struct {
	suite.Suite

	pg    *containers.PostgresContainer
	redis *containers.RedisContainer

	animals      animal.UseCase
	ledger       product.UseCase
	lifecycle    lifecycle.UseCase
	distribution distribution.UseCase
}

func TestPostgresFlowSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(PostgresFlowSuite))
}

func (s *PostgresFlowSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.redis = containers.NewRedisContainer(s.T())

	log := logger.NewNop()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	txm := postgres.NewTxManager(s.pg.DB, 10)
	dispatcher := event.NewDispatcher(event.NewRedisPublisher(s.redis.Client, eventsChannel), log)

	animals := animalrepo.NewPGRepository(s.pg.DB)
	products := productrepo.NewPGRepository(s.pg.DB)
	catalog := productrepo.NewCachedCatalog(products, s.redis.Client, time.Minute, log)

	s.animals = animaluc.NewAnimalUseCase(animals, txm, dispatcher, m, 50, log)
	s.ledger = productuc.NewProductUseCase(products, catalog, animals, txm, dispatcher, m, log)
	s.lifecycle = lifecycleuc.NewLifecycleUseCase(animals, catalog, s.ledger, txm, dispatcher, m, log)
	s.distribution = usecase.NewDistributionUseCase(repository.NewPGRepository(s.pg.DB), products, s.ledger, txm, dispatcher, m, log)
}

func (s *PostgresFlowSuite) createType(name string, cat model.AnimalCategory) *model.AnimalType {
	at, err := s.animals.CreateType(context.Background(), &animaldto.CreateTypeInput{
		Name:     name + uuid.NewString()[:6],
		Category: cat,
		Target:   100,
		MaxPrice: 30_000_000,
	})
	s.Require().NoError(err)
	return at
}

func (s *PostgresFlowSuite) TestConcurrentCollectiveAllocation() {
	cow := s.createType("cow", model.CategoryLarge)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := s.animals.Allocate(ctx, cow.ID, 3)
			return err
		})
	}
	s.Require().NoError(g.Wait())

	isShared := true
	animals, total, err := s.animals.ListAnimals(context.Background(), &animaldto.AnimalFilters{TypeID: cow.ID, IsShared: &isShared, PageSize: 100})
	s.Require().NoError(err)

	want := (24 + model.MaxShares - 1) / model.MaxShares
	s.Equal(want, total)
	remaining := 0
	seen := map[string]bool{}
	for _, a := range animals {
		s.Require().NotNil(a.RemainingShares)
		remaining += *a.RemainingShares
		s.False(seen[a.Identifier], "duplicate identifier %s", a.Identifier)
		seen[a.Identifier] = true
	}
	s.Equal(want*model.MaxShares-24, remaining)
}

func (s *PostgresFlowSuite) TestSlaughterToDistribution() {
	ctx := context.Background()

	sub := s.redis.Client.Client.Subscribe(ctx, eventsChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	s.Require().NoError(err)

	goat := s.createType("goat", model.CategorySmall)
	meat, err := s.ledger.CreateProduct(ctx, &productdto.CreateProductInput{AnimalTypeID: goat.ID, Name: "meat pack", Kind: model.ProductMeat})
	s.Require().NoError(err)
	hide, err := s.ledger.CreateProduct(ctx, &productdto.CreateProductInput{AnimalTypeID: goat.ID, Name: "hide", Kind: model.ProductHide})
	s.Require().NoError(err)

	listed, err := s.ledger.ListProducts(ctx, goat.ID)
	s.Require().NoError(err)
	s.Len(listed, 2)
	cached, err := s.redis.Client.Client.Exists(ctx, "qurban:catalog:"+goat.ID).Result()
	s.Require().NoError(err)
	s.Equal(int64(1), cached)

	reg, err := s.animals.Register(ctx, &animaldto.RegisterInput{AnimalTypeID: goat.ID, Quantity: 1})
	s.Require().NoError(err)
	identifier := reg.Identifiers()[0]

	slaughtered := model.StatusSlaughtered
	adv, err := s.lifecycle.Advance(ctx, &lifecycledto.AdvanceInput{Identifier: identifier, Target: &slaughtered, ActorID: "panitia-1"})
	s.Require().NoError(err)
	s.Equal(model.StatusSlaughtered, adv.Current)
	s.Len(adv.SeededEvents, 1)

	counter, err := s.ledger.GetCounter(ctx, hide.ID)
	s.Require().NoError(err)
	s.Equal(1, counter.Produced)

	for _, in := range []productdto.PostInput{
		{ProductID: meat.ID, Direction: "ADD", Location: "PRODUCTION", Quantity: 1},
		{ProductID: meat.ID, Direction: "ADD", Location: "INVENTORY", Quantity: 1},
		{ProductID: hide.ID, Direction: "ADD", Location: "INVENTORY", Quantity: 1},
	} {
		res, err := s.ledger.Post(ctx, &in)
		s.Require().NoError(err)
		s.Nil(res.Discrepancy)
	}

	cat, err := s.distribution.CreateCategory(ctx, &dto.CreateCategoryInput{Name: "warga", Target: 10})
	s.Require().NoError(err)
	recipient, err := s.distribution.CreateRecipient(ctx, &dto.CreateRecipientInput{CategoryID: cat.ID, Name: "Pak Ahmad"})
	s.Require().NoError(err)

	res, err := s.distribution.Distribute(ctx, &dto.DistributeInput{
		RecipientID: recipient.ID,
		ProductIDs:  []string{meat.ID, hide.ID},
		Quantity:    1,
		ActorID:     "panitia-1",
	})
	s.Require().NoError(err)
	s.Empty(res.Discrepancies)
	s.True(res.Recipient.Received)

	for _, p := range []*model.ByProductType{meat, hide} {
		c, err := s.ledger.GetCounter(ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(1, c.Delivered)
	}

	records, total, err := s.distribution.ListRecords(ctx, &dto.RecordFilters{RecipientID: recipient.ID})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(records[0].Items, 2)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		msg, err := sub.ReceiveMessage(recvCtx)
		s.Require().NoError(err, "no distribution.recorded event published")
		var evt struct {
			Type string `json:"type"`
		}
		s.Require().NoError(json.Unmarshal([]byte(msg.Payload), &evt))
		if evt.Type == event.TypeDistributionRecorded {
			break
		}
	}

	_, err = s.distribution.Distribute(ctx, &dto.DistributeInput{RecipientID: recipient.ID, ProductIDs: []string{meat.ID}, Quantity: 1})
	s.Error(err)
}
