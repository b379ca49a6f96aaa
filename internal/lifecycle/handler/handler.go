package handler

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/lifecycle"
	"github.com/fekuna/qurban-engine/internal/lifecycle/dto"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/fekuna/qurban-engine/pkg/middleware"
	"github.com/fekuna/qurban-engine/pkg/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "qurban.v1.LifecycleService"

type LifecycleServiceServer interface {
	AdvanceStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetInventory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetBuyerReceived(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LifecycleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "AdvanceStatus", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(LifecycleServiceServer).AdvanceStatus(ctx, req)
		}),
		rpc.Unary(ServiceName, "SetInventory", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(LifecycleServiceServer).SetInventory(ctx, req)
		}),
		rpc.Unary(ServiceName, "SetBuyerReceived", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(LifecycleServiceServer).SetBuyerReceived(ctx, req)
		}),
	},
	Metadata: "qurban/v1/lifecycle.proto",
}

func RegisterLifecycleServiceServer(s grpc.ServiceRegistrar, srv LifecycleServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var _ LifecycleServiceServer = (*LifecycleHandler)(nil)

type LifecycleHandler struct {
	uc     lifecycle.UseCase
	logger logger.ZapLogger
}

func NewLifecycleHandler(uc lifecycle.UseCase, log logger.ZapLogger) *LifecycleHandler {
	return &LifecycleHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *LifecycleHandler) AdvanceStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.AdvanceInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	in.ActorID, _ = middleware.ActorFromContext(ctx)

	res, err := h.uc.Advance(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to advance animal status", err)
	}
	return rpc.Encode(res)
}

func (h *LifecycleHandler) SetInventory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.FlagInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	in.ActorID, _ = middleware.ActorFromContext(ctx)

	a, err := h.uc.SetInventory(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to set inventory flag", err)
	}
	return rpc.Encode(map[string]any{"animal": a})
}

func (h *LifecycleHandler) SetBuyerReceived(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.FlagInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	in.ActorID, _ = middleware.ActorFromContext(ctx)

	a, err := h.uc.SetBuyerReceived(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to set buyer received flag", err)
	}
	return rpc.Encode(map[string]any{"animal": a})
}

func (h *LifecycleHandler) fail(msg string, err error) error {
	if rpc.Code(err) == codes.Internal {
		h.logger.Error(msg, zap.Error(err))
	}
	return rpc.Status(err)
}
