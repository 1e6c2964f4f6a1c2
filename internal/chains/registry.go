package chains

import (
	"fmt"
)

// Family groups chains that share RPC quirks and warehouse schema
// extensions. Everything not explicitly mapped behaves like Ethereum.
type Family string

const (
	Ethereum  Family = "ethereum"
	Arbitrum  Family = "arbitrum"
	Optimism  Family = "optimism"
	ZkSyncEra Family = "zksync_era"
)

// TraceMethod selects which tracing RPC the adapter calls per block.
type TraceMethod string

const (
	TraceMethodDebug  TraceMethod = "debug_traceBlockByNumber"
	TraceMethodParity TraceMethod = "trace_block"
)

// Info carries the per-family toggles resolved once at startup. It is
// immutable after Resolve.
type Info struct {
	ChainID uint64
	Family  Family

	// PreferBlockReceipts selects eth_getBlockReceipts over per-tx
	// eth_getTransactionReceipt. The adapter may still fall back when the
	// provider omits the method.
	PreferBlockReceipts bool

	TraceMethod TraceMethod

	// RetryMissingBatchMetadata marks ZKsync-style chains where receipts
	// can lag L1 batch ingestion and come back without l1BatchNumber /
	// l1BatchTxIndex. Such receipts are re-fetched per transaction.
	RetryMissingBatchMetadata bool

	// RejectPreBedrock makes the parser fail on Optimism OVM1 pre-Bedrock
	// headers (97-byte extraData) instead of indexing them with the
	// Bedrock fields absent.
	RejectPreBedrock bool
}

var familyByChainID = map[uint64]Family{
	// Ethereum mainnet and testnets
	1:        Ethereum,
	11155111: Ethereum,
	17000:    Ethereum,

	// Arbitrum One, Nova, Sepolia
	42161:  Arbitrum,
	42170:  Arbitrum,
	421614: Arbitrum,

	// OP Stack: Optimism, Base, Zora, Mode
	10:      Optimism,
	8453:    Optimism,
	7777777: Optimism,
	34443:   Optimism,

	// ZKsync Era and the Elastic Chain fleet:
	// Lens | ZKcandy | Era | GRVT | Abstract | Sophon | Zero Network
	232:    ZkSyncEra,
	320:    ZkSyncEra,
	324:    ZkSyncEra,
	325:    ZkSyncEra,
	2741:   ZkSyncEra,
	50104:  ZkSyncEra,
	543210: ZkSyncEra,
}

// Resolve maps a chain id to its family info. Unknown ids default to the
// Ethereum family; with strict set they are an error instead.
func Resolve(chainID uint64, strict bool) (Info, error) {
	family, known := familyByChainID[chainID]
	if !known {
		if strict {
			return Info{}, fmt.Errorf("unknown chain id %d and chain.strict is set", chainID)
		}
		family = Ethereum
	}

	info := Info{
		ChainID:             chainID,
		Family:              family,
		PreferBlockReceipts: true,
		TraceMethod:         TraceMethodDebug,
	}

	switch family {
	case Optimism:
		info.RejectPreBedrock = strict
	case ZkSyncEra:
		info.RetryMissingBatchMetadata = true
	}

	return info, nil
}

// Known reports whether the chain id is in the registry table.
func Known(chainID uint64) bool {
	_, ok := familyByChainID[chainID]
	return ok
}
