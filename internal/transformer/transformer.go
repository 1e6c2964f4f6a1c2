package transformer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
	"github.com/blockflow-dev/indexer/internal/parser"
)

// ErrReceiptMissing fails the whole block: a transaction row is never
// emitted without its receipt.
var ErrReceiptMissing = errors.New("transaction has no receipt")

// RowSet holds the four per-dataset outputs for one block, each in its
// deterministic emission order.
type RowSet struct {
	BlockNumber  uint64
	Blocks       []common.Block
	Transactions []common.Transaction
	Logs         []common.Log
	Traces       []common.Trace
}

// Transform joins the parsed parts of one block into warehouse row sets
// for the enabled datasets. Ordering within each set is by
// (tx_index, log_index / trace_address) so appended batches are sortable.
func Transform(pb *parser.ParsedBlock, datasets common.DatasetSet) (*RowSet, error) {
	txIndexMap := make(map[string]uint64, len(pb.Transactions))
	for _, tx := range pb.Transactions {
		txIndexMap[tx.TxHash] = tx.TxIndex
	}

	out := &RowSet{BlockNumber: pb.Block.BlockNumber}

	if datasets[common.DatasetBlocks] {
		out.Blocks = []common.Block{pb.Block}
	}

	if datasets[common.DatasetTransactions] {
		transactions, err := mergeTransactions(pb)
		if err != nil {
			return nil, err
		}
		out.Transactions = transactions
	}

	if datasets[common.DatasetLogs] {
		out.Logs = collectLogs(pb, txIndexMap)
	}

	if datasets[common.DatasetTraces] {
		out.Traces = enrichTraces(pb, txIndexMap)
	}

	return out, nil
}

func mergeTransactions(pb *parser.ParsedBlock) ([]common.Transaction, error) {
	receiptsByHash := make(map[string]*common.Receipt, len(pb.Receipts))
	for i := range pb.Receipts {
		receiptsByHash[pb.Receipts[i].TxHash] = &pb.Receipts[i]
	}

	transactions := make([]common.Transaction, 0, len(pb.Transactions))
	for _, tx := range pb.Transactions {
		receipt, ok := receiptsByHash[tx.TxHash]
		if !ok {
			return nil, fmt.Errorf("block %d tx %s: %w", pb.Block.BlockNumber, tx.TxHash, ErrReceiptMissing)
		}
		transactions = append(transactions, mergeReceipt(pb.Family, tx, receipt))
	}

	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].TxIndex < transactions[j].TxIndex
	})
	return transactions, nil
}

func mergeReceipt(family chains.Family, tx common.Transaction, receipt *common.Receipt) common.Transaction {
	tx.Status = receipt.Status
	tx.CumulativeGasUsed = receipt.CumulativeGasUsed
	tx.EffectiveGasPrice = receipt.EffectiveGasPrice
	tx.GasUsed = receipt.GasUsed
	tx.ContractAddress = receipt.ContractAddress
	if receipt.TxType != 0 {
		tx.TxType = receipt.TxType
	}

	switch family {
	case chains.Arbitrum:
		tx.Arbitrum = &common.ArbitrumTxExt{
			L1BlockNumber: receipt.L1BlockNumber,
			GasUsedForL1:  receipt.GasUsedForL1,
		}
	case chains.Optimism:
		ext := tx.Optimism
		if ext == nil {
			ext = &common.OptimismTxExt{}
		}
		ext.L1Fee = receipt.L1Fee
		ext.L1FeeScalar = receipt.L1FeeScalar
		ext.L1GasPrice = receipt.L1GasPrice
		ext.L1GasUsed = receipt.L1GasUsed
		ext.DepositReceiptVersion = receipt.DepositReceiptVersion
		tx.Optimism = ext
	case chains.ZkSyncEra:
		ext := tx.ZkSync
		if ext == nil {
			ext = &common.ZkSyncTxExt{}
		}
		// The receipt's batch metadata is fresher than the body's: the
		// adapter re-fetches receipts until the node has it.
		if receipt.L1BatchNumber != nil {
			ext.L1BatchNumber = receipt.L1BatchNumber
		}
		if receipt.L1BatchTxIndex != nil {
			ext.L1BatchTxIndex = receipt.L1BatchTxIndex
		}
		tx.ZkSync = ext
	}

	return tx
}

func collectLogs(pb *parser.ParsedBlock, txIndexMap map[string]uint64) []common.Log {
	logs := make([]common.Log, 0)
	for _, receipt := range pb.Receipts {
		for _, l := range receipt.Logs {
			if idx, ok := txIndexMap[l.TxHash]; ok {
				l.TxIndex = idx
			}
			logs = append(logs, l)
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].TxIndex != logs[j].TxIndex {
			return logs[i].TxIndex < logs[j].TxIndex
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})
	return logs
}

func enrichTraces(pb *parser.ParsedBlock, txIndexMap map[string]uint64) []common.Trace {
	traces := make([]common.Trace, 0, len(pb.Traces))
	for _, trace := range pb.Traces {
		idx, ok := txIndexMap[trace.TxHash]
		if !ok {
			log.Warn().
				Uint64("block", pb.Block.BlockNumber).
				Str("tx_hash", trace.TxHash).
				Msg("Dropping trace whose transaction is not in the block")
			continue
		}
		trace.TxIndex = idx
		trace.BlockTimestamp = pb.Block.BlockTimestamp
		trace.BlockDate = pb.Block.BlockDate
		traces = append(traces, trace)
	}

	sort.Slice(traces, func(i, j int) bool {
		if traces[i].TxIndex != traces[j].TxIndex {
			return traces[i].TxIndex < traces[j].TxIndex
		}
		return traceAddressLess(traces[i].TraceAddress, traces[j].TraceAddress)
	})
	return traces
}

func traceAddressLess(a, b []uint64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
