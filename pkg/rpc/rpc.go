// Package rpc holds the shared plumbing of the engine's gRPC services. Every
// method exchanges a google.protobuf.Struct whose JSON shape mirrors the
// usecase DTOs.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fekuna/qurban-engine/pkg/apperror"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// UnaryFunc dispatches one decoded request to the registered server.
type UnaryFunc func(srv any, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// Unary builds the method descriptor protoc-gen-go-grpc would generate for a
// Struct-in/Struct-out method.
func Unary(service, method string, call UnaryFunc) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Decode unmarshals req into dst through its JSON form.
func Decode(req *structpb.Struct, dst any) error {
	if req == nil {
		return nil
	}
	b, err := marshalStruct(req)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

// Encode converts v, which must marshal to a JSON object, into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// Status maps an engine error to a gRPC status error.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isAppError(err) {
		return err
	}
	return status.Error(Code(err), err.Error())
}

// Code returns the gRPC code for an engine error kind.
func Code(err error) codes.Code {
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return codes.InvalidArgument
	case apperror.KindNotFound:
		return codes.NotFound
	case apperror.KindConflict:
		return codes.Aborted
	case apperror.KindAlreadyTerminal, apperror.KindInvalidState:
		return codes.FailedPrecondition
	}
	return codes.Internal
}

func isAppError(err error) bool {
	var ae *apperror.Error
	return errors.As(err, &ae)
}

// Invoke calls fullMethod with req encoded as a Struct and decodes the reply
// into resp, which may be nil.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, fullMethod string, req, resp any) error {
	in, err := Encode(req)
	if err != nil {
		return err
	}
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, fullMethod, in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	b, err := marshalStruct(out)
	if err != nil {
		return fmt.Errorf("failed to read %s reply: %w", fullMethod, err)
	}
	return json.Unmarshal(b, resp)
}

// marshalStruct renders s with encoding/json so whole numbers stay in plain
// notation and decode into int fields.
func marshalStruct(s *structpb.Struct) ([]byte, error) {
	return json.Marshal(s.AsMap())
}
