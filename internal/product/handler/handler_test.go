package handler_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	animalrepo "github.com/fekuna/qurban-engine/internal/animal/repository"
	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product/dto"
	"github.com/fekuna/qurban-engine/internal/product/handler"
	"github.com/fekuna/qurban-engine/internal/product/repository"
	"github.com/fekuna/qurban-engine/internal/product/usecase"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/fekuna/qurban-engine/pkg/rpc"
)

const cowTypeID = "type-cow"

func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	animals := animalrepo.NewMemoryRepository()
	require.NoError(t, animals.CreateType(ctx, &model.AnimalType{
		BaseModel:      model.BaseModel{ID: cowTypeID, CreatedAt: time.Now()},
		Name:           "cow",
		Category:       model.CategoryLarge,
		GroupingPolicy: model.GroupingByVolume,
		SharingPolicy:  model.SharingCollective,
	}))
	uc := usecase.NewProductUseCase(repository.NewMemoryRepository(), nil, animals, tx.NewLocalManager(),
		event.NewDispatcher(event.NopPublisher{}, log), nil, log)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	handler.RegisterLedgerServiceServer(srv, handler.NewLedgerHandler(uc, log))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func method(name string) string { return "/" + handler.ServiceName + "/" + name }

func createProduct(t *testing.T, conn *grpc.ClientConn, name string, kind model.ProductKind) model.ByProductType {
	t.Helper()
	var out struct {
		Product model.ByProductType `json:"product"`
	}
	require.NoError(t, rpc.Invoke(context.Background(), conn, method("CreateProduct"), map[string]any{
		"animal_type_id": cowTypeID, "name": name, "kind": kind, "target_packages": 20,
	}, &out))
	return out.Product
}

func TestLedgerService_PostAndFlag(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()
	hide := createProduct(t, conn, "hide", model.ProductHide)

	var res dto.PostResult
	require.NoError(t, rpc.Invoke(ctx, conn, method("PostLedger"), map[string]any{
		"product_id": hide.ID, "direction": "add", "location": "production", "quantity": 2,
	}, &res))
	assert.Equal(t, 2, res.Counter.Produced)
	assert.Nil(t, res.Discrepancy)

	require.NoError(t, rpc.Invoke(ctx, conn, method("PostLedger"), map[string]any{
		"product_id": hide.ID, "direction": "ADD", "location": "INVENTORY", "quantity": 3,
	}, &res))
	require.NotNil(t, res.Discrepancy)
	assert.Equal(t, model.DiscrepancyReceivedExceedsProduced, res.Discrepancy.Kind)

	var logs struct {
		ErrorLogs []model.ErrorLog `json:"error_logs"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("ListErrorLogs"), map[string]any{"unresolved_only": true}, &logs))
	require.Len(t, logs.ErrorLogs, 1)

	var resolved struct {
		ErrorLog model.ErrorLog `json:"error_log"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("ResolveErrorLog"), map[string]any{
		"id": logs.ErrorLogs[0].ID, "note": "recounted at the gate",
	}, &resolved))
	require.NotNil(t, resolved.ErrorLog.Resolution)

	var report dto.ReconcileReport
	require.NoError(t, rpc.Invoke(ctx, conn, method("Reconcile"), map[string]any{}, &report))
	assert.Equal(t, 1, report.Checked)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, 3, report.Findings[0].Actual)
}

func TestLedgerService_ShipmentRoundTrip(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()
	head := createProduct(t, conn, "head", model.ProductHead)

	var created struct {
		Shipment model.Shipment `json:"shipment"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("CreateShipment"), map[string]any{
		"items": []map[string]any{{"product_id": head.ID, "quantity": 4}},
	}, &created))
	assert.Equal(t, model.ShipmentShipped, created.Shipment.Status)

	var received dto.ReceiveShipmentResult
	require.NoError(t, rpc.Invoke(ctx, conn, method("ReceiveShipment"), map[string]any{
		"shipment_id": created.Shipment.ID,
		"items":       []map[string]any{{"product_id": head.ID, "quantity": 3}},
	}, &received))
	assert.Equal(t, model.ShipmentReceived, received.Shipment.Status)

	kinds := make([]model.DiscrepancyKind, 0, len(received.Discrepancies))
	for _, d := range received.Discrepancies {
		kinds = append(kinds, d.Kind)
	}
	assert.Contains(t, kinds, model.DiscrepancyShipmentMismatch)

	var counter struct {
		Counter model.ProductCounter `json:"counter"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("GetCounter"), map[string]any{"product_id": head.ID}, &counter))
	assert.Equal(t, 3, counter.Counter.Received)

	err := rpc.Invoke(ctx, conn, method("ReceiveShipment"), map[string]any{
		"shipment_id": created.Shipment.ID,
		"items":       []map[string]any{{"product_id": head.ID, "quantity": 1}},
	}, nil)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestLedgerService_MapsErrorsToCodes(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()

	err := rpc.Invoke(ctx, conn, method("PostLedger"), map[string]any{
		"product_id": "p", "direction": "SIDEWAYS", "location": "INVENTORY", "quantity": 1,
	}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = rpc.Invoke(ctx, conn, method("PostLedger"), map[string]any{
		"product_id": "p", "direction": "ADD", "location": "INVENTORY", "quantity": 1,
	}, nil)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = rpc.Invoke(ctx, conn, method("ListShipments"), map[string]any{"status": "LOST"}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
