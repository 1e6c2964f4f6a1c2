package common

import (
	"math/big"
	"time"
)

// Transaction is one warehouse row for the transactions dataset, the
// merge of the transaction body with its receipt. Primary key:
// (chain_id, tx_hash).
type Transaction struct {
	ChainID              uint64    `ch:"chain_id"`
	BlockNumber          uint64    `ch:"block_number"`
	BlockTimestamp       time.Time `ch:"block_timestamp"`
	BlockDate            time.Time `ch:"block_date"`
	TxHash               string    `ch:"tx_hash"`
	TxIndex              uint64    `ch:"tx_index"`
	FromAddress          string    `ch:"from_address"`
	ToAddress            string    `ch:"to_address"`
	Value                *big.Int  `ch:"value"`
	Gas                  uint64    `ch:"gas"`
	GasPrice             *big.Int  `ch:"gas_price"`
	MaxFeePerGas         *big.Int  `ch:"max_fee_per_gas"`
	MaxPriorityFeePerGas *big.Int  `ch:"max_priority_fee_per_gas"`
	Nonce                uint64    `ch:"nonce"`
	Input                string    `ch:"input"`
	TxType               uint8     `ch:"tx_type"`
	TxChainID            *uint64   `ch:"tx_chain_id"`
	AccessListJSON       string    `ch:"access_list"`
	Status               *uint64   `ch:"status"`
	CumulativeGasUsed    uint64    `ch:"cumulative_gas_used"`
	EffectiveGasPrice    *big.Int  `ch:"effective_gas_price"`
	GasUsed              uint64    `ch:"gas_used"`
	ContractAddress      *string   `ch:"contract_address"`

	Arbitrum *ArbitrumTxExt
	Optimism *OptimismTxExt
	ZkSync   *ZkSyncTxExt
}

type ArbitrumTxExt struct {
	L1BlockNumber *uint64 `ch:"l1_block_number"`
	GasUsedForL1  *uint64 `ch:"gas_used_for_l1"`
}

type OptimismTxExt struct {
	L1Fee       *big.Int `ch:"l1_fee"`
	L1FeeScalar *string  `ch:"l1_fee_scalar"`
	L1GasPrice  *big.Int `ch:"l1_gas_price"`
	L1GasUsed   *uint64  `ch:"l1_gas_used"`

	// Deposit transactions (type 0x7e) only.
	DepositSourceHash     *string  `ch:"deposit_source_hash"`
	DepositMint           *big.Int `ch:"deposit_mint"`
	DepositReceiptVersion *uint64  `ch:"deposit_receipt_version"`
}

type ZkSyncTxExt struct {
	L1BatchNumber  *uint64 `ch:"l1_batch_number"`
	L1BatchTxIndex *uint64 `ch:"l1_batch_tx_index"`
}
