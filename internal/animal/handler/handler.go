package handler

import (
	"context"

	"github.com/fekuna/qurban-engine/internal/animal"
	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/pkg/logger"
	"github.com/fekuna/qurban-engine/pkg/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "qurban.v1.AnimalService"

type AnimalServiceServer interface {
	CreateType(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTypes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportRegistrations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Renumber(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAnimal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAnimals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnimalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "CreateType", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AnimalServiceServer).CreateType(ctx, req)
		}),
		rpc.Unary(ServiceName, "ListTypes", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AnimalServiceServer).ListTypes(ctx, req)
		}),
		rpc.Unary(ServiceName, "Register", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AnimalServiceServer).Register(ctx, req)
		}),
		rpc.Unary(ServiceName, "ImportRegistrations", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AnimalServiceServer).ImportRegistrations(ctx, req)
		}),
		rpc.Unary(ServiceName, "Renumber", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AnimalServiceServer).Renumber(ctx, req)
		}),
		rpc.Unary(ServiceName, "GetAnimal", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AnimalServiceServer).GetAnimal(ctx, req)
		}),
		rpc.Unary(ServiceName, "ListAnimals", func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AnimalServiceServer).ListAnimals(ctx, req)
		}),
	},
	Metadata: "qurban/v1/animal.proto",
}

func RegisterAnimalServiceServer(s grpc.ServiceRegistrar, srv AnimalServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var _ AnimalServiceServer = (*AnimalHandler)(nil)

type AnimalHandler struct {
	uc     animal.UseCase
	logger logger.ZapLogger
}

func NewAnimalHandler(uc animal.UseCase, log logger.ZapLogger) *AnimalHandler {
	return &AnimalHandler{
		uc:     uc,
		logger: log,
	}
}

type CreateTypeRequest struct {
	Name            string               `json:"name"`
	Category        model.AnimalCategory `json:"category"`
	Target          int                  `json:"target"`
	MaxPrice        float64              `json:"max_price"`
	CollectivePrice *float64             `json:"collective_price"`
	GroupingPolicy  model.GroupingPolicy `json:"grouping_policy"`
	SharingPolicy   model.SharingPolicy  `json:"sharing_policy"`
}

type ImportRequest struct {
	Registrations []dto.RegisterInput `json:"registrations"`
}

type ImportOutcome struct {
	Index       int             `json:"index"`
	Bindings    []model.Binding `json:"bindings,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorCode   string          `json:"error_code,omitempty"`
	Identifiers []string        `json:"identifiers,omitempty"`
}

type ListAnimalsRequest struct {
	TypeID   string       `json:"type_id"`
	Status   model.Status `json:"status"`
	IsShared *bool        `json:"is_shared"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

func (h *AnimalHandler) CreateType(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in CreateTypeRequest
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	t, err := h.uc.CreateType(ctx, &dto.CreateTypeInput{
		Name:            in.Name,
		Category:        in.Category,
		Target:          in.Target,
		MaxPrice:        in.MaxPrice,
		CollectivePrice: in.CollectivePrice,
		GroupingPolicy:  in.GroupingPolicy,
		SharingPolicy:   in.SharingPolicy,
	})
	if err != nil {
		return nil, h.fail("failed to create animal type", err)
	}
	return rpc.Encode(map[string]any{"animal_type": t})
}

func (h *AnimalHandler) ListTypes(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	types, err := h.uc.ListTypes(ctx)
	if err != nil {
		return nil, h.fail("failed to list animal types", err)
	}
	return rpc.Encode(map[string]any{"animal_types": types})
}

func (h *AnimalHandler) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.RegisterInput
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	res, err := h.uc.Register(ctx, &in)
	if err != nil {
		return nil, h.fail("failed to register animals", err)
	}
	return rpc.Encode(res)
}

func (h *AnimalHandler) ImportRegistrations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ImportRequest
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}

	outcomes := h.uc.ImportRegistrations(ctx, in.Registrations)
	out := make([]ImportOutcome, len(outcomes))
	accepted := 0
	for i, o := range outcomes {
		out[i] = ImportOutcome{Index: o.Index}
		if o.Err != nil {
			out[i].Error = o.Err.Error()
			out[i].ErrorCode = rpc.Code(o.Err).String()
			continue
		}
		accepted++
		out[i].Bindings = o.Result.Bindings
		out[i].Identifiers = o.Result.Identifiers()
	}
	return rpc.Encode(map[string]any{
		"outcomes": out,
		"accepted": accepted,
		"rejected": len(out) - accepted,
	})
}

func (h *AnimalHandler) Renumber(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		GroupSize int `json:"group_size"`
	}
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	renamed, err := h.uc.Renumber(ctx, in.GroupSize)
	if err != nil {
		return nil, h.fail("failed to renumber animals", err)
	}
	return rpc.Encode(map[string]any{"renamed": renamed, "group_size": in.GroupSize})
}

func (h *AnimalHandler) GetAnimal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Identifier string `json:"identifier"`
	}
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	a, err := h.uc.GetAnimal(ctx, in.Identifier)
	if err != nil {
		return nil, h.fail("failed to get animal", err)
	}
	return rpc.Encode(map[string]any{"animal": a})
}

func (h *AnimalHandler) ListAnimals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ListAnimalsRequest
	if err := rpc.Decode(req, &in); err != nil {
		return nil, err
	}
	animals, total, err := h.uc.ListAnimals(ctx, &dto.AnimalFilters{
		TypeID:   in.TypeID,
		Status:   in.Status,
		IsShared: in.IsShared,
		Page:     in.Page,
		PageSize: in.PageSize,
	})
	if err != nil {
		return nil, h.fail("failed to list animals", err)
	}
	if animals == nil {
		animals = []model.AnimalInstance{}
	}
	return rpc.Encode(map[string]any{"animals": animals, "total": total})
}

func (h *AnimalHandler) fail(msg string, err error) error {
	if rpc.Code(err) == codes.Internal {
		h.logger.Error(msg, zap.Error(err))
	}
	return rpc.Status(err)
}
