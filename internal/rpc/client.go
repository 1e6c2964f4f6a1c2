package rpc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	gethRpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
	config "github.com/blockflow-dev/indexer/configs"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
	"github.com/blockflow-dev/indexer/internal/metrics"
)

const (
	headCacheTTL       = 2 * time.Second
	defaultCallTimeout = 60 * time.Second
	receiptBatchSize   = 50
)

// Client is the typed JSON-RPC surface the pipeline consumes. One block
// fan-out is three calls: block+txs, receipts, traces.
type Client interface {
	ChainID() uint64
	ChainInfo() chains.Info
	HeadBlockNumber(ctx context.Context) (uint64, error)
	GetBlockWithTxs(ctx context.Context, blockNumber uint64) (common.RawBlock, error)
	GetReceiptsForBlock(ctx context.Context, blockNumber uint64, txHashes []string) ([]common.RawReceipt, error)
	GetTracesForBlock(ctx context.Context, blockNumber uint64) ([]common.RawTrace, error)
	SupportsBlockReceipts() bool
	SupportsTraces() bool
	TraceMethod() chains.TraceMethod
	Close()
}

type client struct {
	rpcClient   *gethRpc.Client
	url         string
	info        chains.Info
	retry       RetryConfig
	callTimeout time.Duration

	supportsBlockReceipts bool
	supportsTraces        bool
	traceMethod           chains.TraceMethod

	headMu        sync.Mutex
	headValue     uint64
	headFetchedAt time.Time
}

func Initialize() (Client, error) {
	rpcUrl := config.Cfg.RPC.URL
	if rpcUrl == "" {
		return nil, fmt.Errorf("rpc.url is not set")
	}
	log.Debug().Msg("Initializing RPC")
	rpcClient, dialErr := gethRpc.Dial(rpcUrl)
	if dialErr != nil {
		return nil, dialErr
	}

	callTimeout := defaultCallTimeout
	if config.Cfg.RPC.Timeout > 0 {
		callTimeout = time.Duration(config.Cfg.RPC.Timeout) * time.Second
	}

	c := &client{
		rpcClient:   rpcClient,
		url:         rpcUrl,
		retry:       RetryConfigFromSettings(config.Cfg.Retry),
		callTimeout: callTimeout,
	}

	chainID, err := c.fetchChainID(context.Background())
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	info, err := chains.Resolve(chainID, config.Cfg.Chain.Strict)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	c.info = info
	if !chains.Known(chainID) {
		log.Warn().Uint64("chain_id", chainID).Msg("Unknown chain id, defaulting to the Ethereum family")
	}
	log.Info().Uint64("chain_id", chainID).Str("family", string(info.Family)).Msg("Resolved chain family")

	c.probeCapabilities()
	return c, nil
}

func (c *client) ChainID() uint64 {
	return c.info.ChainID
}

func (c *client) ChainInfo() chains.Info {
	return c.info
}

func (c *client) SupportsBlockReceipts() bool {
	return c.supportsBlockReceipts
}

func (c *client) SupportsTraces() bool {
	return c.supportsTraces
}

func (c *client) Close() {
	c.rpcClient.Close()
}

func (c *client) fetchChainID(ctx context.Context) (uint64, error) {
	hexID, err := Retry(ctx, c.retry, "eth_chainId", func(ctx context.Context) (string, error) {
		var result string
		if err := c.call(ctx, &result, "eth_chainId"); err != nil {
			return "", err
		}
		return result, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get chain id: %w", err)
	}
	chainID, err := strconv.ParseUint(strings.TrimPrefix(hexID, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed chain id %q: %w", hexID, err)
	}
	return chainID, nil
}

// probeCapabilities checks the optional methods once so per-block calls
// never discover a missing method the hard way.
func (c *client) probeCapabilities() {
	if c.info.PreferBlockReceipts {
		var result interface{}
		if err := c.call(context.Background(), &result, "eth_getBlockReceipts", "latest"); err != nil {
			log.Warn().Err(err).Msg("eth_getBlockReceipts not supported, falling back to per-tx receipts")
		} else {
			c.supportsBlockReceipts = true
			log.Debug().Msg("eth_getBlockReceipts method supported")
		}
	}

	c.traceMethod = c.info.TraceMethod
	var result interface{}
	if err := c.call(context.Background(), &result, string(c.traceMethod), "latest", callTracerOptions()); err == nil {
		c.supportsTraces = true
		log.Debug().Str("method", string(c.traceMethod)).Msg("Trace method supported")
		return
	}
	if c.traceMethod == chains.TraceMethodDebug {
		if err := c.call(context.Background(), &result, string(chains.TraceMethodParity), "latest"); err == nil {
			c.traceMethod = chains.TraceMethodParity
			c.supportsTraces = true
			log.Debug().Msg("Falling back to trace_block method")
			return
		}
	}
	log.Warn().Msg("No supported trace method on this provider")
}

func (c *client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	metrics.RPCRequests.WithLabelValues(method).Inc()
	start := time.Now()
	err := c.rpcClient.CallContext(ctx, result, method, args...)
	metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrors.WithLabelValues(method).Inc()
	}
	return err
}

// HeadBlockNumber samples eth_blockNumber through a short-lived cache so
// the driver's per-block tip check does not hit the node on every call.
func (c *client) HeadBlockNumber(ctx context.Context) (uint64, error) {
	c.headMu.Lock()
	defer c.headMu.Unlock()

	if time.Since(c.headFetchedAt) < headCacheTTL {
		return c.headValue, nil
	}

	head, err := Retry(ctx, c.retry, "eth_blockNumber", func(ctx context.Context) (uint64, error) {
		var result string
		if err := c.call(ctx, &result, "eth_blockNumber"); err != nil {
			return 0, err
		}
		head, err := strconv.ParseUint(strings.TrimPrefix(result, "0x"), 16, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed block number %q: %w", result, err)
		}
		return head, nil
	})
	if err != nil {
		return 0, err
	}

	c.headValue = head
	c.headFetchedAt = time.Now()
	metrics.ChainHead.Set(float64(head))
	return head, nil
}

func (c *client) GetBlockWithTxs(ctx context.Context, blockNumber uint64) (common.RawBlock, error) {
	return Retry(ctx, c.retry, "eth_getBlockByNumber", func(ctx context.Context) (common.RawBlock, error) {
		var raw common.RawBlock
		if err := c.call(ctx, &raw, "eth_getBlockByNumber", hexBlockNumber(blockNumber), true); err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, fmt.Errorf("block %d: %w", blockNumber, ErrNullBlock)
		}
		return raw, nil
	})
}

// GetReceiptsForBlock prefers eth_getBlockReceipts. It falls back to
// per-tx eth_getTransactionReceipt when the provider omits the method,
// and re-fetches individual ZKsync receipts whose L1 batch metadata is
// still missing.
func (c *client) GetReceiptsForBlock(ctx context.Context, blockNumber uint64, txHashes []string) ([]common.RawReceipt, error) {
	if !c.supportsBlockReceipts {
		return c.getReceiptsByHashes(ctx, txHashes)
	}

	receipts, err := Retry(ctx, c.retry, "eth_getBlockReceipts", func(ctx context.Context) ([]common.RawReceipt, error) {
		var raw []common.RawReceipt
		if err := c.call(ctx, &raw, "eth_getBlockReceipts", hexBlockNumber(blockNumber)); err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, fmt.Errorf("receipts for block %d: %w", blockNumber, ErrNullBlock)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}

	if c.info.RetryMissingBatchMetadata {
		for i, receipt := range receipts {
			if !receiptMissingBatchMetadata(receipt) {
				continue
			}
			txHash, _ := receipt["transactionHash"].(string)
			log.Debug().Str("tx_hash", txHash).Uint64("block", blockNumber).Msg("Receipt missing L1 batch metadata, re-fetching per tx")
			fixed, err := c.getReceiptByHash(ctx, txHash, true)
			if err != nil {
				return nil, err
			}
			receipts[i] = fixed
		}
	}

	return receipts, nil
}

func (c *client) getReceiptByHash(ctx context.Context, txHash string, requireBatchMetadata bool) (common.RawReceipt, error) {
	return Retry(ctx, c.retry, "eth_getTransactionReceipt", func(ctx context.Context) (common.RawReceipt, error) {
		var raw common.RawReceipt
		if err := c.call(ctx, &raw, "eth_getTransactionReceipt", txHash); err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, fmt.Errorf("receipt %s: %w", txHash, ErrNullBlock)
		}
		if requireBatchMetadata && receiptMissingBatchMetadata(raw) {
			return nil, fmt.Errorf("receipt %s: %w", txHash, ErrMissingBatchMetadata)
		}
		return raw, nil
	})
}

func (c *client) getReceiptsByHashes(ctx context.Context, txHashes []string) ([]common.RawReceipt, error) {
	receipts := make([]common.RawReceipt, 0, len(txHashes))
	for _, chunk := range common.SliceToChunks(txHashes, receiptBatchSize) {
		if len(chunk) == 0 {
			continue
		}
		chunkReceipts, err := Retry(ctx, c.retry, "eth_getTransactionReceipt", func(ctx context.Context) ([]common.RawReceipt, error) {
			batch := make([]gethRpc.BatchElem, len(chunk))
			results := make([]common.RawReceipt, len(chunk))
			for i, hash := range chunk {
				batch[i] = gethRpc.BatchElem{
					Method: "eth_getTransactionReceipt",
					Args:   []interface{}{hash},
					Result: &results[i],
				}
			}

			metrics.RPCRequests.WithLabelValues("eth_getTransactionReceipt").Add(float64(len(batch)))
			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			defer cancel()
			if err := c.rpcClient.BatchCallContext(callCtx, batch); err != nil {
				metrics.RPCErrors.WithLabelValues("eth_getTransactionReceipt").Inc()
				return nil, err
			}

			for i, elem := range batch {
				if elem.Error != nil {
					return nil, fmt.Errorf("receipt %s: %w", chunk[i], elem.Error)
				}
				if results[i] == nil {
					return nil, fmt.Errorf("receipt %s: %w", chunk[i], ErrNullBlock)
				}
				if c.info.RetryMissingBatchMetadata && receiptMissingBatchMetadata(results[i]) {
					return nil, fmt.Errorf("receipt %s: %w", chunk[i], ErrMissingBatchMetadata)
				}
			}
			return results, nil
		})
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, chunkReceipts...)
	}
	return receipts, nil
}

// GetTracesForBlock fetches the execution trace for every transaction in
// the block. A -32008 response maps to ErrTraceTooLarge and is not
// retried; the caller omits traces for the block.
func (c *client) GetTracesForBlock(ctx context.Context, blockNumber uint64) ([]common.RawTrace, error) {
	if !c.supportsTraces {
		return nil, fmt.Errorf("provider does not support tracing")
	}

	return Retry(ctx, c.retry, string(c.traceMethod), func(ctx context.Context) ([]common.RawTrace, error) {
		var raw []common.RawTrace
		var err error
		switch c.traceMethod {
		case chains.TraceMethodParity:
			err = c.call(ctx, &raw, string(chains.TraceMethodParity), hexBlockNumber(blockNumber))
		default:
			err = c.call(ctx, &raw, string(chains.TraceMethodDebug), hexBlockNumber(blockNumber), callTracerOptions())
		}
		if err != nil {
			if isTraceTooLarge(err) {
				return nil, fmt.Errorf("traces for block %d: %w", blockNumber, ErrTraceTooLarge)
			}
			return nil, err
		}
		if raw == nil {
			return nil, fmt.Errorf("traces for block %d: %w", blockNumber, ErrNullBlock)
		}
		return raw, nil
	})
}

// TraceMethod reports which tracing RPC survived probing.
func (c *client) TraceMethod() chains.TraceMethod {
	return c.traceMethod
}

func callTracerOptions() map[string]interface{} {
	return map[string]interface{}{
		"tracer":  "callTracer",
		"timeout": "10s",
	}
}

func hexBlockNumber(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

func receiptMissingBatchMetadata(receipt common.RawReceipt) bool {
	return receipt["l1BatchNumber"] == nil || receipt["l1BatchTxIndex"] == nil
}
