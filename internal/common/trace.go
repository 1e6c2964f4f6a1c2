package common

import (
	"math/big"
	"time"
)

// Trace is one flattened call frame for the traces dataset. Primary key:
// (chain_id, tx_hash, trace_address), where TraceAddress is the
// left-to-right DFS path into the call tree.
type Trace struct {
	ChainID        uint64    `ch:"chain_id"`
	BlockNumber    uint64    `ch:"block_number"`
	BlockTimestamp time.Time `ch:"block_timestamp"`
	BlockDate      time.Time `ch:"block_date"`
	TxHash         string    `ch:"tx_hash"`
	TxIndex        uint64    `ch:"tx_index"`
	TraceAddress   []uint64  `ch:"trace_address"`
	Subtraces      uint64    `ch:"subtraces"`
	TraceType      string    `ch:"trace_type"`
	CallType       string    `ch:"call_type"`
	FromAddress    string    `ch:"from_address"`
	ToAddress      string    `ch:"to_address"`
	Value          *big.Int  `ch:"value"`
	Gas            uint64    `ch:"gas"`
	GasUsed        uint64    `ch:"gas_used"`
	Input          string    `ch:"input"`
	Output         string    `ch:"output"`
	Error          string    `ch:"error"`
	RevertReason   string    `ch:"revert_reason"`
}
