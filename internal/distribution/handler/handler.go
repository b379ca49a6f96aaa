package handler

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/distribution"
	"github.com/fekuna/qurban-engine/internal/distribution/dto"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/fekuna/qurban-engine/pkg/middleware"
	"github.com/fekuna/qurban-engine/pkg/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "qurban.v1.DistributionService"

type DistributionServiceServer interface {
	CreateCategory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCategories(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateRecipient(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRecipients(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Distribute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DistributionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "CreateCategory", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DistributionServiceServer).CreateCategory(ctx, req)
		}),
		rpc.Unary(ServiceName, "ListCategories", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DistributionServiceServer).ListCategories(ctx, req)
		}),
		rpc.Unary(ServiceName, "CreateRecipient", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DistributionServiceServer).CreateRecipient(ctx, req)
		}),
		rpc.Unary(ServiceName, "ListRecipients", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DistributionServiceServer).ListRecipients(ctx, req)
		}),
		rpc.Unary(ServiceName, "Distribute", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DistributionServiceServer).Distribute(ctx, req)
		}),
		rpc.Unary(ServiceName, "ListRecords", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DistributionServiceServer).ListRecords(ctx, req)
		}),
	},
	Metadata: "qurban/v1/distribution.proto",
}

func RegisterDistributionServiceServer(s grpc.ServiceRegistrar, srv DistributionServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var _ DistributionServiceServer = (*DistributionHandler)(nil)

type DistributionHandler struct {
	uc     distribution.UseCase
	logger logger.ZapLogger
}

func NewDistributionHandler(uc distribution.UseCase, log logger.ZapLogger) *DistributionHandler {
	return &DistributionHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *DistributionHandler) CreateCategory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.CreateCategoryInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	c, err := h.uc.CreateCategory(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to create distribution category", err)
	}
	return rpc.Encode(map[string]any{"category": c})
}

func (h *DistributionHandler) ListCategories(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	items, err := h.uc.ListCategories(ctx)
	if err != nil {
		return nil, h.fail("failed to list distribution categories", err)
	}
	if items == nil {
		items = []model.DistributionCategory{}
	}
	return rpc.Encode(map[string]any{"categories": items})
}

func (h *DistributionHandler) CreateRecipient(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.CreateRecipientInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	r, err := h.uc.CreateRecipient(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to create recipient", err)
	}
	return rpc.Encode(map[string]any{"recipient": r})
}

func (h *DistributionHandler) ListRecipients(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.RecipientFilters
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	items, err := h.uc.ListRecipients(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to list recipients", err)
	}
	if items == nil {
		items = []model.Recipient{}
	}
	return rpc.Encode(map[string]any{"recipients": items})
}

func (h *DistributionHandler) Distribute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.DistributeInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	in.ActorID, _ = middleware.ActorFromContext(ctx)

	res, err := h.uc.Distribute(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to record distribution", err)
	}
	return rpc.Encode(res)
}

func (h *DistributionHandler) ListRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.RecordFilters
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	items, total, err := h.uc.ListRecords(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to list distribution records", err)
	}
	if items == nil {
		items = []model.DistributionRecord{}
	}
	return rpc.Encode(map[string]any{"records": items, "total": total})
}

func (h *DistributionHandler) fail(msg string, err error) error {
	if rpc.Code(err) == codes.Internal {
		h.logger.Error(msg, zap.Error(err))
	}
	return rpc.Status(err)
}
