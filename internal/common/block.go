package common

import (
	"math/big"
	"time"
)

// Block is one warehouse row for the blocks dataset. Primary key:
// (chain_id, block_number). BlockDate is the partition key and is always
// the UTC date of BlockTimestamp.
type Block struct {
	ChainID          uint64    `ch:"chain_id"`
	BlockNumber      uint64    `ch:"block_number"`
	BlockHash        string    `ch:"block_hash"`
	ParentHash       string    `ch:"parent_hash"`
	BlockTimestamp   time.Time `ch:"block_timestamp"`
	BlockDate        time.Time `ch:"block_date"`
	Miner            string    `ch:"miner"`
	GasUsed          uint64    `ch:"gas_used"`
	GasLimit         uint64    `ch:"gas_limit"`
	BaseFee          *big.Int  `ch:"base_fee"`
	Size             uint64    `ch:"size"`
	TxCount          uint64    `ch:"tx_count"`
	ExtraData        string    `ch:"extra_data"`
	Nonce            string    `ch:"nonce"`
	Sha3Uncles       string    `ch:"sha3_uncles"`
	MixHash          string    `ch:"mix_hash"`
	StateRoot        string    `ch:"state_root"`
	TransactionsRoot string    `ch:"transactions_root"`
	ReceiptsRoot     string    `ch:"receipts_root"`
	LogsBloom        string    `ch:"logs_bloom"`
	Difficulty       *big.Int  `ch:"difficulty"`
	TotalDifficulty  *big.Int  `ch:"total_difficulty"`
	WithdrawalsRoot  string    `ch:"withdrawals_root"`
	BlobGasUsed      *uint64   `ch:"blob_gas_used"`
	ExcessBlobGas    *uint64   `ch:"excess_blob_gas"`

	// At most one extension is set, matching the chain family. Families
	// without an extension leave both nil; the storage connector writes
	// only the columns defined for the family.
	Arbitrum *ArbitrumBlockExt
	ZkSync   *ZkSyncBlockExt
}

type ArbitrumBlockExt struct {
	L1BlockNumber uint64  `ch:"l1_block_number"`
	SendCount     *uint64 `ch:"send_count"`
	SendRoot      *string `ch:"send_root"`
}

type ZkSyncBlockExt struct {
	L1BatchNumber    *uint64    `ch:"l1_batch_number"`
	L1BatchTimestamp *time.Time `ch:"l1_batch_timestamp"`
	// L2-to-L1 message bag, kept as the raw JSON array.
	L2ToL1Logs string `ch:"l2_to_l1_logs"`
}
