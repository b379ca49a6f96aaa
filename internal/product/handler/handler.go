package handler

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product"
	"github.com/fekuna/qurban-engine/internal/product/dto"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/fekuna/qurban-engine/pkg/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "qurban.v1.LedgerService"

type LedgerServiceServer interface {
	CreateProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListProducts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PostLedger(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCounter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCounters(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateShipment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReceiveShipment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListShipments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListErrorLogs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveErrorLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func method(name string, call func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return rpc.Unary(ServiceName, name, func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
		return call(srv.(LedgerServiceServer), ctx, req)
	})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method("CreateProduct", LedgerServiceServer.CreateProduct),
		method("ListProducts", LedgerServiceServer.ListProducts),
		method("PostLedger", LedgerServiceServer.PostLedger),
		method("GetCounter", LedgerServiceServer.GetCounter),
		method("ListCounters", LedgerServiceServer.ListCounters),
		method("ListEvents", LedgerServiceServer.ListEvents),
		method("CreateShipment", LedgerServiceServer.CreateShipment),
		method("ReceiveShipment", LedgerServiceServer.ReceiveShipment),
		method("ListShipments", LedgerServiceServer.ListShipments),
		method("ListErrorLogs", LedgerServiceServer.ListErrorLogs),
		method("ResolveErrorLog", LedgerServiceServer.ResolveErrorLog),
		method("Reconcile", LedgerServiceServer.Reconcile),
	},
	Metadata: "qurban/v1/ledger.proto",
}

func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var _ LedgerServiceServer = (*LedgerHandler)(nil)

type LedgerHandler struct {
	uc     product.UseCase
	logger logger.ZapLogger
}

func NewLedgerHandler(uc product.UseCase, log logger.ZapLogger) *LedgerHandler {
	return &LedgerHandler{
		uc:     uc,
		logger: log,
	}
}

type byAnimalType struct {
	AnimalTypeID string `json:"animal_type_id"`
}

func (h *LedgerHandler) CreateProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.CreateProductInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	p, err := h.uc.CreateProduct(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to create product", err)
	}
	return rpc.Encode(map[string]any{"product": p})
}

func (h *LedgerHandler) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in byAnimalType
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	items, err := h.uc.ListProducts(ctx, in.AnimalTypeID)
	if err != nil {
		return nil, h.fail("failed to list products", err)
	}
	if items == nil {
		items = []model.ByProductType{}
	}
	return rpc.Encode(map[string]any{"products": items})
}

func (h *LedgerHandler) PostLedger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.PostInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	res, err := h.uc.Post(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to post ledger event", err)
	}
	return rpc.Encode(res)
}

func (h *LedgerHandler) GetCounter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ProductID string `json:"product_id"`
	}
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	c, err := h.uc.GetCounter(ctx, in.ProductID)
	if err != nil {
		return nil, h.fail("failed to get counter", err)
	}
	return rpc.Encode(map[string]any{"counter": c})
}

func (h *LedgerHandler) ListCounters(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in byAnimalType
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	items, err := h.uc.ListCounters(ctx, in.AnimalTypeID)
	if err != nil {
		return nil, h.fail("failed to list counters", err)
	}
	if items == nil {
		items = []model.ProductCounter{}
	}
	return rpc.Encode(map[string]any{"counters": items})
}

func (h *LedgerHandler) ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ProductID string         `json:"product_id"`
		Location  model.Location `json:"location"`
		Page      int            `json:"page"`
		PageSize  int            `json:"page_size"`
	}
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	items, total, err := h.uc.ListEvents(ctx, &dto.EventFilters{
		ProductID: in.ProductID,
		Location:  in.Location,
		Page:      in.Page,
		PageSize:  in.PageSize,
	})
	if err != nil {
		return nil, h.fail("failed to list ledger events", err)
	}
	if items == nil {
		items = []model.LedgerEvent{}
	}
	return rpc.Encode(map[string]any{"events": items, "total": total})
}

func (h *LedgerHandler) CreateShipment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.CreateShipmentInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	s, err := h.uc.CreateShipment(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to create shipment", err)
	}
	return rpc.Encode(map[string]any{"shipment": s})
}

func (h *LedgerHandler) ReceiveShipment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.ReceiveShipmentInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	res, err := h.uc.ReceiveShipment(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to receive shipment", err)
	}
	return rpc.Encode(res)
}

func (h *LedgerHandler) ListShipments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Status model.ShipmentStatus `json:"status"`
	}
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	items, err := h.uc.ListShipments(ctx, in.Status)
	if err != nil {
		return nil, h.fail("failed to list shipments", err)
	}
	if items == nil {
		items = []model.Shipment{}
	}
	return rpc.Encode(map[string]any{"shipments": items})
}

func (h *LedgerHandler) ListErrorLogs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ProductID      string `json:"product_id"`
		UnresolvedOnly bool   `json:"unresolved_only"`
	}
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	items, err := h.uc.ListErrorLogs(ctx, &dto.ErrorLogFilters{ProductID: in.ProductID, UnresolvedOnly: in.UnresolvedOnly})
	if err != nil {
		return nil, h.fail("failed to list error logs", err)
	}
	if items == nil {
		items = []model.ErrorLog{}
	}
	return rpc.Encode(map[string]any{"error_logs": items})
}

func (h *LedgerHandler) ResolveErrorLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID   string `json:"id"`
		Note string `json:"note"`
	}
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	l, err := h.uc.ResolveErrorLog(ctx, in.ID, in.Note)
	if err != nil {
		return nil, h.fail("failed to resolve error log", err)
	}
	return rpc.Encode(map[string]any{"error_log": l})
}

func (h *LedgerHandler) Reconcile(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	report, err := h.uc.Reconcile(ctx)
	if err != nil {
		return nil, h.fail("failed to reconcile counters", err)
	}
	return rpc.Encode(report)
}

func (h *LedgerHandler) fail(msg string, err error) error {
	if rpc.Code(err) == codes.Internal {
		h.logger.Error(msg, zap.Error(err))
	}
	return rpc.Status(err)
}
