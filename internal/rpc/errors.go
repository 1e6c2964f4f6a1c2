package rpc

import (
	"context"
	"errors"
	"net"
	"strings"

	gethRpc "github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC error codes the adapter cares about.
const (
	codeInternalError    = -32603
	codeServerRangeStart = -32099
	codeServerRangeEnd   = -32000
	codeResponseTooLarge = -32008
)

var (
	// ErrTraceTooLarge marks a block whose trace response the node refuses
	// to serve (-32008). The traces row set for the block is omitted; the
	// block still commits.
	ErrTraceTooLarge = errors.New("trace response too large")

	// ErrNullBlock is returned when eth_getBlockByNumber yields null for a
	// block at or below the buffered tip. The node is lagging; transient.
	ErrNullBlock = errors.New("block not yet available from provider")

	// ErrMissingBatchMetadata marks a ZKsync receipt that came back without
	// l1BatchNumber / l1BatchTxIndex. The node has not ingested the L1
	// batch yet; transient.
	ErrMissingBatchMetadata = errors.New("receipt missing L1 batch metadata")
)

// IsRetriable classifies an error for the retrier. The default is to
// retry: the terminal shapes are oversized traces, context cancellation,
// HTTP client errors other than 429, and JSON-RPC codes outside the
// internal (-32603) and server (-32000..-32099) range. Malformed
// responses keep retrying until the attempts run out.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTraceTooLarge) {
		return false
	}
	if errors.Is(err, ErrNullBlock) || errors.Is(err, ErrMissingBatchMetadata) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr gethRpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 || httpErr.StatusCode >= 500 {
			return true
		}
		return false
	}

	var rpcErr gethRpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		if code == codeResponseTooLarge {
			return false
		}
		if code == codeInternalError {
			return true
		}
		if code >= codeServerRangeStart && code <= codeServerRangeEnd {
			return true
		}
		// Other application-level codes (method not found, invalid params)
		// will not heal on their own.
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}

// isTraceTooLarge recognizes -32008 both as a structured code and as the
// stringly form some providers return.
func isTraceTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr gethRpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeResponseTooLarge {
		return true
	}
	return strings.Contains(err.Error(), "-32008")
}
