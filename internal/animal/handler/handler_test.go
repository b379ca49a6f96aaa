package handler_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/fekuna/qurban-engine/internal/animal/handler"
	"github.com/fekuna/qurban-engine/internal/animal/repository"
	"github.com/fekuna/qurban-engine/internal/animal/usecase"
	"github.com/fekuna/qurban-engine/internal/event"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/fekuna/qurban-engine/pkg/rpc"
)

func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	log := logger.NewNop()
	uc := usecase.NewAnimalUseCase(repository.NewMemoryRepository(), tx.NewLocalManager(),
		event.NewDispatcher(event.NopPublisher{}, log), nil, 50, log)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	handler.RegisterAnimalServiceServer(srv, handler.NewAnimalHandler(uc, log))
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

func TestAnimalService_RegisterCollectiveOverGRPC(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()

	var created struct {
		AnimalType model.AnimalType `json:"animal_type"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("CreateType"), map[string]any{
		"name": "cow", "category": "LARGE", "target": 20, "max_price": 21000000,
	}, &created))
	assert.Equal(t, model.SharingCollective, created.AnimalType.SharingPolicy)

	var reg struct {
		Bindings []model.Binding `json:"bindings"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("Register"), map[string]any{
		"animal_type_id": created.AnimalType.ID,
		"quantity":       3,
		"is_collective":  true,
		"metadata":       map[string]any{"buyer_name": "Bu Siti"},
	}, &reg))
	require.Len(t, reg.Bindings, 1)
	assert.Equal(t, "cow_1", reg.Bindings[0].Identifier)
	assert.Equal(t, 3, reg.Bindings[0].SharesGranted)

	var got struct {
		Animal model.AnimalInstance `json:"animal"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("GetAnimal"), map[string]any{"identifier": "cow_1"}, &got))
	require.NotNil(t, got.Animal.RemainingShares)
	assert.Equal(t, 4, *got.Animal.RemainingShares)
}

func TestAnimalService_MapsErrorsToCodes(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()

	err := rpc.Invoke(ctx, conn, method("Register"), map[string]any{"animal_type_id": "x", "quantity": 0}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = rpc.Invoke(ctx, conn, method("Register"), map[string]any{"animal_type_id": "x", "quantity": 1}, nil)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = rpc.Invoke(ctx, conn, method("GetAnimal"), map[string]any{"identifier": "cow_9"}, nil)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestAnimalService_ImportReportsEachRow(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()

	var created struct {
		AnimalType model.AnimalType `json:"animal_type"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("CreateType"), map[string]any{
		"name": "goat", "category": "SMALL", "target": 80,
	}, &created))

	var out struct {
		Accepted int                     `json:"accepted"`
		Rejected int                     `json:"rejected"`
		Outcomes []handler.ImportOutcome `json:"outcomes"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("ImportRegistrations"), map[string]any{
		"registrations": []map[string]any{
			{"animal_type_id": created.AnimalType.ID, "quantity": 2},
			{"animal_type_id": created.AnimalType.ID, "quantity": 1, "is_collective": true},
		},
	}, &out))
	assert.Equal(t, 1, out.Accepted)
	assert.Equal(t, 1, out.Rejected)
	require.Len(t, out.Outcomes, 2)
	assert.Equal(t, []string{"goat_A-01", "goat_A-02"}, out.Outcomes[0].Identifiers)
	assert.Equal(t, codes.InvalidArgument.String(), out.Outcomes[1].ErrorCode)
}

func TestAnimalService_Renumber(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()

	var created struct {
		AnimalType model.AnimalType `json:"animal_type"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("CreateType"), map[string]any{
		"name": "goat", "category": "SMALL", "target": 10, "max_price": 4000000,
	}, &created))
	require.NoError(t, rpc.Invoke(ctx, conn, method("Register"), map[string]any{
		"animal_type_id": created.AnimalType.ID, "quantity": 3,
	}, nil))

	var out struct {
		Renamed int `json:"renamed"`
	}
	require.NoError(t, rpc.Invoke(ctx, conn, method("Renumber"), map[string]any{"group_size": 2}, &out))
	assert.Equal(t, 1, out.Renamed)

	require.NoError(t, rpc.Invoke(ctx, conn, method("GetAnimal"), map[string]any{"identifier": "goat_B-01"}, nil))

	require.NoError(t, rpc.Invoke(ctx, conn, method("Renumber"), map[string]any{"group_size": 2}, &out))
	assert.Equal(t, 0, out.Renamed)

	err := rpc.Invoke(ctx, conn, method("Renumber"), map[string]any{"group_size": 0}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
