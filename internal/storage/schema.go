package storage

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

type column struct {
	Name string
	Type string
}

func blockColumns(family chains.Family) []column {
	cols := []column{
		{"chain_id", "UInt64"},
		{"block_number", "UInt64"},
		{"block_hash", "String"},
		{"parent_hash", "String"},
		{"block_timestamp", "DateTime('UTC')"},
		{"block_date", "Date"},
		{"miner", "String"},
		{"gas_used", "UInt64"},
		{"gas_limit", "UInt64"},
		{"base_fee", "String"},
		{"size", "UInt64"},
		{"tx_count", "UInt64"},
		{"extra_data", "String"},
		{"nonce", "String"},
		{"sha3_uncles", "String"},
		{"mix_hash", "String"},
		{"state_root", "String"},
		{"transactions_root", "String"},
		{"receipts_root", "String"},
		{"logs_bloom", "String"},
		{"difficulty", "String"},
		{"total_difficulty", "String"},
		{"withdrawals_root", "String"},
		{"blob_gas_used", "Nullable(UInt64)"},
		{"excess_blob_gas", "Nullable(UInt64)"},
	}
	switch family {
	case chains.Arbitrum:
		cols = append(cols,
			column{"l1_block_number", "UInt64"},
			column{"send_count", "Nullable(UInt64)"},
			column{"send_root", "Nullable(String)"},
		)
	case chains.ZkSyncEra:
		cols = append(cols,
			column{"l1_batch_number", "Nullable(UInt64)"},
			column{"l1_batch_timestamp", "Nullable(DateTime('UTC'))"},
			column{"l2_to_l1_logs", "String"},
		)
	}
	return cols
}

func transactionColumns(family chains.Family) []column {
	cols := []column{
		{"chain_id", "UInt64"},
		{"block_number", "UInt64"},
		{"block_timestamp", "DateTime('UTC')"},
		{"block_date", "Date"},
		{"tx_hash", "String"},
		{"tx_index", "UInt64"},
		{"from_address", "String"},
		{"to_address", "String"},
		{"value", "String"},
		{"gas", "UInt64"},
		{"gas_price", "String"},
		{"max_fee_per_gas", "String"},
		{"max_priority_fee_per_gas", "String"},
		{"nonce", "UInt64"},
		{"input", "String"},
		{"tx_type", "UInt8"},
		{"tx_chain_id", "Nullable(UInt64)"},
		{"access_list", "String"},
		{"status", "Nullable(UInt64)"},
		{"cumulative_gas_used", "UInt64"},
		{"effective_gas_price", "String"},
		{"gas_used", "UInt64"},
		{"contract_address", "Nullable(String)"},
	}
	switch family {
	case chains.Arbitrum:
		cols = append(cols,
			column{"l1_block_number", "Nullable(UInt64)"},
			column{"gas_used_for_l1", "Nullable(UInt64)"},
		)
	case chains.Optimism:
		cols = append(cols,
			column{"l1_fee", "Nullable(String)"},
			column{"l1_fee_scalar", "Nullable(String)"},
			column{"l1_gas_price", "Nullable(String)"},
			column{"l1_gas_used", "Nullable(UInt64)"},
			column{"deposit_source_hash", "Nullable(String)"},
			column{"deposit_mint", "Nullable(String)"},
			column{"deposit_receipt_version", "Nullable(UInt64)"},
		)
	case chains.ZkSyncEra:
		cols = append(cols,
			column{"l1_batch_number", "Nullable(UInt64)"},
			column{"l1_batch_tx_index", "Nullable(UInt64)"},
		)
	}
	return cols
}

func logColumns(chains.Family) []column {
	return []column{
		{"chain_id", "UInt64"},
		{"block_number", "UInt64"},
		{"block_timestamp", "DateTime('UTC')"},
		{"block_date", "Date"},
		{"tx_hash", "String"},
		{"tx_index", "UInt64"},
		{"log_index", "UInt64"},
		{"address", "String"},
		{"topic0", "String"},
		{"topic1", "String"},
		{"topic2", "String"},
		{"topic3", "String"},
		{"data", "String"},
		{"removed", "Bool"},
	}
}

func traceColumns(chains.Family) []column {
	return []column{
		{"chain_id", "UInt64"},
		{"block_number", "UInt64"},
		{"block_timestamp", "DateTime('UTC')"},
		{"block_date", "Date"},
		{"tx_hash", "String"},
		{"tx_index", "UInt64"},
		{"trace_address", "Array(UInt64)"},
		{"subtraces", "UInt64"},
		{"trace_type", "String"},
		{"call_type", "String"},
		{"from_address", "String"},
		{"to_address", "String"},
		{"value", "String"},
		{"gas", "UInt64"},
		{"gas_used", "UInt64"},
		{"input", "String"},
		{"output", "String"},
		{"error", "String"},
		{"revert_reason", "String"},
	}
}

func datasetColumns(dataset common.Dataset, family chains.Family) []column {
	switch dataset {
	case common.DatasetBlocks:
		return blockColumns(family)
	case common.DatasetTransactions:
		return transactionColumns(family)
	case common.DatasetLogs:
		return logColumns(family)
	case common.DatasetTraces:
		return traceColumns(family)
	}
	return nil
}

// orderBy is both the clustering key and the dedup key: the engine is
// ReplacingMergeTree, so re-appended primary keys collapse to one row.
func orderBy(dataset common.Dataset) string {
	switch dataset {
	case common.DatasetBlocks:
		return "(chain_id, block_number)"
	case common.DatasetTransactions:
		return "(chain_id, block_number, tx_hash)"
	case common.DatasetLogs:
		return "(chain_id, block_number, tx_hash, log_index)"
	case common.DatasetTraces:
		return "(chain_id, block_number, tx_hash, trace_address)"
	}
	return "(chain_id, block_number)"
}

func createTableDDL(database string, dataset common.Dataset, family chains.Family) string {
	cols := datasetColumns(dataset, family)
	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = fmt.Sprintf("`%s` %s", col.Name, col.Type)
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS `%s`.`%s` (%s) ENGINE = ReplacingMergeTree PARTITION BY block_date ORDER BY %s",
		database, dataset, strings.Join(defs, ", "), orderBy(dataset),
	)
}

func insertStatement(database string, dataset common.Dataset, family chains.Family) string {
	cols := datasetColumns(dataset, family)
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = fmt.Sprintf("`%s`", col.Name)
	}
	return fmt.Sprintf("INSERT INTO `%s`.`%s` (%s)", database, dataset, strings.Join(names, ", "))
}

// bigString renders unbounded integers as decimal strings so they are
// never truncated at the warehouse boundary.
func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigStringPtr(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func blockValues(family chains.Family, b *common.Block) []interface{} {
	values := []interface{}{
		b.ChainID, b.BlockNumber, b.BlockHash, b.ParentHash,
		b.BlockTimestamp, b.BlockDate, b.Miner,
		b.GasUsed, b.GasLimit, bigString(b.BaseFee), b.Size, b.TxCount,
		b.ExtraData, b.Nonce, b.Sha3Uncles, b.MixHash,
		b.StateRoot, b.TransactionsRoot, b.ReceiptsRoot, b.LogsBloom,
		bigString(b.Difficulty), bigString(b.TotalDifficulty), b.WithdrawalsRoot,
		b.BlobGasUsed, b.ExcessBlobGas,
	}
	switch family {
	case chains.Arbitrum:
		ext := b.Arbitrum
		if ext == nil {
			ext = &common.ArbitrumBlockExt{}
		}
		values = append(values, ext.L1BlockNumber, ext.SendCount, ext.SendRoot)
	case chains.ZkSyncEra:
		ext := b.ZkSync
		if ext == nil {
			ext = &common.ZkSyncBlockExt{L2ToL1Logs: "[]"}
		}
		values = append(values, ext.L1BatchNumber, ext.L1BatchTimestamp, ext.L2ToL1Logs)
	}
	return values
}

func transactionValues(family chains.Family, t *common.Transaction) []interface{} {
	values := []interface{}{
		t.ChainID, t.BlockNumber, t.BlockTimestamp, t.BlockDate,
		t.TxHash, t.TxIndex, t.FromAddress, t.ToAddress,
		bigString(t.Value), t.Gas, bigString(t.GasPrice),
		bigString(t.MaxFeePerGas), bigString(t.MaxPriorityFeePerGas),
		t.Nonce, t.Input, t.TxType, t.TxChainID, t.AccessListJSON,
		t.Status, t.CumulativeGasUsed, bigString(t.EffectiveGasPrice),
		t.GasUsed, t.ContractAddress,
	}
	switch family {
	case chains.Arbitrum:
		ext := t.Arbitrum
		if ext == nil {
			ext = &common.ArbitrumTxExt{}
		}
		values = append(values, ext.L1BlockNumber, ext.GasUsedForL1)
	case chains.Optimism:
		ext := t.Optimism
		if ext == nil {
			ext = &common.OptimismTxExt{}
		}
		values = append(values,
			bigStringPtr(ext.L1Fee), ext.L1FeeScalar, bigStringPtr(ext.L1GasPrice), ext.L1GasUsed,
			ext.DepositSourceHash, bigStringPtr(ext.DepositMint), ext.DepositReceiptVersion,
		)
	case chains.ZkSyncEra:
		ext := t.ZkSync
		if ext == nil {
			ext = &common.ZkSyncTxExt{}
		}
		values = append(values, ext.L1BatchNumber, ext.L1BatchTxIndex)
	}
	return values
}

func logValues(l *common.Log) []interface{} {
	// Topics pad to four slots here, at the warehouse boundary only.
	return []interface{}{
		l.ChainID, l.BlockNumber, l.BlockTimestamp, l.BlockDate,
		l.TxHash, l.TxIndex, l.LogIndex, l.Address,
		l.Topic(0), l.Topic(1), l.Topic(2), l.Topic(3),
		l.Data, l.Removed,
	}
}

func traceValues(t *common.Trace) []interface{} {
	return []interface{}{
		t.ChainID, t.BlockNumber, t.BlockTimestamp, t.BlockDate,
		t.TxHash, t.TxIndex, t.TraceAddress, t.Subtraces,
		t.TraceType, t.CallType, t.FromAddress, t.ToAddress,
		bigString(t.Value), t.Gas, t.GasUsed,
		t.Input, t.Output, t.Error, t.RevertReason,
	}
}
