package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fekuna/qurban-engine/pkg/apperror"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{apperror.Validation("bad"), codes.InvalidArgument},
		{fmt.Errorf("wrapped: %w", apperror.NotFound("gone")), codes.NotFound},
		{apperror.Conflict(errors.New("40001"), "busy"), codes.Aborted},
		{apperror.AlreadyTerminal("done"), codes.FailedPrecondition},
		{apperror.InvalidState("twice"), codes.FailedPrecondition},
		{errors.New("disk full"), codes.Internal},
		{context.Canceled, codes.Canceled},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), tt.err.Error())
	}
}

func TestStatus_KeepsExistingStatus(t *testing.T) {
	in := status.Error(codes.Unavailable, "down")
	assert.Equal(t, codes.Unavailable, status.Code(Status(in)))
	assert.NoError(t, Status(nil))
}

func TestDecode_LargeWholeNumbers(t *testing.T) {
	req, err := Encode(map[string]any{"quantity": 25_000_000, "name": "cow"})
	require.NoError(t, err)

	var out struct {
		Quantity int    `json:"quantity"`
		Name     string `json:"name"`
	}
	require.NoError(t, Decode(req, &out))
	assert.Equal(t, 25_000_000, out.Quantity)
	assert.Equal(t, "cow", out.Name)
}

func TestDecode_RejectsWrongShape(t *testing.T) {
	req, err := Encode(map[string]any{"quantity": "three"})
	require.NoError(t, err)

	var out struct {
		Quantity int `json:"quantity"`
	}
	assert.Equal(t, codes.InvalidArgument, status.Code(Decode(req, &out)))
}
