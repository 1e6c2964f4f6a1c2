package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gethRpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
)

type jsonError struct {
	code int
	msg  string
}

func (e *jsonError) Error() string  { return e.msg }
func (e *jsonError) ErrorCode() int { return e.code }

var _ gethRpc.Error = (*jsonError)(nil)

func TestIsRetriableClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil", nil, false},
		{"trace too large sentinel", ErrTraceTooLarge, false},
		{"wrapped trace too large", fmt.Errorf("block 9: %w", ErrTraceTooLarge), false},
		{"null block", ErrNullBlock, true},
		{"missing batch metadata", fmt.Errorf("receipt 0xa: %w", ErrMissingBatchMetadata), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"http 429", gethRpc.HTTPError{StatusCode: 429}, true},
		{"http 503", gethRpc.HTTPError{StatusCode: 503}, true},
		{"http 404", gethRpc.HTTPError{StatusCode: 404}, false},
		{"http 401", gethRpc.HTTPError{StatusCode: 401}, false},
		{"rpc internal -32603", &jsonError{code: -32603, msg: "internal error"}, true},
		{"rpc server -32000", &jsonError{code: -32000, msg: "server error"}, true},
		{"rpc server -32099", &jsonError{code: -32099, msg: "server error"}, true},
		{"rpc -32008 oversized", &jsonError{code: -32008, msg: "response too large"}, false},
		{"rpc method not found", &jsonError{code: -32601, msg: "method not found"}, false},
		{"plain network-ish error", errors.New("connection refused"), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retriable, IsRetriable(tc.err))
		})
	}
}

func TestIsTraceTooLarge(t *testing.T) {
	assert.True(t, isTraceTooLarge(&jsonError{code: -32008, msg: "too big"}))
	assert.True(t, isTraceTooLarge(errors.New("rpc error -32008: response too large")))
	assert.False(t, isTraceTooLarge(&jsonError{code: -32000, msg: "server error"}))
	assert.False(t, isTraceTooLarge(nil))
}
