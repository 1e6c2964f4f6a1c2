package common

import (
	"math/big"
)

// Receipt is the parse-stage view of a transaction receipt. It is never
// written to the warehouse directly; the transformer merges it into the
// Transaction row and lifts its logs into the logs dataset.
type Receipt struct {
	TxHash            string
	TxIndex           uint64
	TxType            uint8
	Status            *uint64
	CumulativeGasUsed uint64
	EffectiveGasPrice *big.Int
	GasUsed           uint64
	ContractAddress   *string
	LogsBloom         string
	Logs              []Log

	// Arbitrum
	GasUsedForL1  *uint64
	L1BlockNumber *uint64

	// Optimism
	L1Fee                 *big.Int
	L1FeeScalar           *string
	L1GasPrice            *big.Int
	L1GasUsed             *uint64
	DepositNonce          *uint64
	DepositReceiptVersion *uint64

	// ZKsync Era
	L1BatchNumber  *uint64
	L1BatchTxIndex *uint64
}
