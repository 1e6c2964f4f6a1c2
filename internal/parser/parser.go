package parser

import (
	"fmt"

	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

// ParsedBlock is the typed form of one block fan-out. The parser is a
// pure function: the same raw input always yields the same ParsedBlock.
type ParsedBlock struct {
	ChainID      uint64
	Family       chains.Family
	Block        common.Block
	Transactions []common.Transaction
	Receipts     []common.Receipt
	Traces       []common.Trace
}

// Parse decodes the three raw RPC responses for one block. It performs
// no I/O and no retries; error classification happened in the adapter.
func Parse(info chains.Info, traceMethod chains.TraceMethod, rawBlock common.RawBlock, rawReceipts []common.RawReceipt, rawTraces []common.RawTrace) (*ParsedBlock, error) {
	if rawBlock == nil {
		return nil, fmt.Errorf("cannot parse nil block")
	}

	header := parseHeader(info, rawBlock)
	if info.RejectPreBedrock && isPreBedrockHeader(header.ExtraData) {
		return nil, fmt.Errorf("block %d is an OVM1 pre-Bedrock block and chain.strict is set", header.BlockNumber)
	}
	transactions := parseTransactions(info, rawBlock, header)
	receipts := parseReceipts(info, rawReceipts, header)

	var traces []common.Trace
	if traceMethod == chains.TraceMethodParity {
		traces = parseParityTraces(info, rawTraces, header)
	} else {
		traces = parseCallTraces(info, rawTraces, header)
	}

	return &ParsedBlock{
		ChainID:      info.ChainID,
		Family:       info.Family,
		Block:        header,
		Transactions: transactions,
		Receipts:     receipts,
		Traces:       traces,
	}, nil
}

func parseHeader(info chains.Info, raw common.RawBlock) common.Block {
	txs, _ := raw["transactions"].([]interface{})
	ts := hexToTime(raw["timestamp"])

	block := common.Block{
		ChainID:          info.ChainID,
		BlockNumber:      hexToUint64(raw["number"]),
		BlockHash:        lowerHex(raw["hash"]),
		ParentHash:       lowerHex(raw["parentHash"]),
		BlockTimestamp:   ts,
		BlockDate:        utcDate(ts),
		Miner:            lowerHex(raw["miner"]),
		GasUsed:          hexToUint64(raw["gasUsed"]),
		GasLimit:         hexToUint64(raw["gasLimit"]),
		BaseFee:          hexToBigInt(raw["baseFeePerGas"]),
		Size:             hexToUint64(raw["size"]),
		TxCount:          uint64(len(txs)),
		ExtraData:        interfaceToString(raw["extraData"]),
		Nonce:            interfaceToString(raw["nonce"]),
		Sha3Uncles:       lowerHex(raw["sha3Uncles"]),
		MixHash:          lowerHex(raw["mixHash"]),
		StateRoot:        lowerHex(raw["stateRoot"]),
		TransactionsRoot: lowerHex(raw["transactionsRoot"]),
		ReceiptsRoot:     lowerHex(raw["receiptsRoot"]),
		LogsBloom:        interfaceToString(raw["logsBloom"]),
		Difficulty:       hexToBigInt(raw["difficulty"]),
		TotalDifficulty:  hexToBigInt(raw["totalDifficulty"]),
		WithdrawalsRoot:  lowerHex(raw["withdrawalsRoot"]),
		BlobGasUsed:      hexToUint64Ptr(raw["blobGasUsed"]),
		ExcessBlobGas:    hexToUint64Ptr(raw["excessBlobGas"]),
	}

	switch info.Family {
	case chains.Arbitrum:
		block.Arbitrum = &common.ArbitrumBlockExt{
			L1BlockNumber: hexToUint64(raw["l1BlockNumber"]),
			SendCount:     hexToUint64Ptr(raw["sendCount"]),
			SendRoot:      lowerHexPtr(raw["sendRoot"]),
		}
	case chains.ZkSyncEra:
		block.ZkSync = &common.ZkSyncBlockExt{
			L1BatchNumber:    hexToUint64Ptr(raw["l1BatchNumber"]),
			L1BatchTimestamp: hexToTimePtr(raw["l1BatchTimestamp"]),
			L2ToL1Logs:       interfaceToJSONString(raw["l2ToL1Logs"]),
		}
	}

	return block
}

// isPreBedrockHeader recognizes Optimism OVM1 headers by their 97-byte
// extraData.
func isPreBedrockHeader(extraData string) bool {
	hexDigits := len(extraData)
	if len(extraData) >= 2 && extraData[0] == '0' && (extraData[1] == 'x' || extraData[1] == 'X') {
		hexDigits -= 2
	}
	return hexDigits == 97*2
}

func parseTransactions(info chains.Info, raw common.RawBlock, header common.Block) []common.Transaction {
	rawTxs, _ := raw["transactions"].([]interface{})
	if len(rawTxs) == 0 {
		return []common.Transaction{}
	}

	transactions := make([]common.Transaction, 0, len(rawTxs))
	for _, rawTx := range rawTxs {
		tx, ok := rawTx.(map[string]interface{})
		if !ok {
			continue
		}
		transactions = append(transactions, parseTransaction(info, tx, header))
	}
	return transactions
}

func parseTransaction(info chains.Info, tx map[string]interface{}, header common.Block) common.Transaction {
	parsed := common.Transaction{
		ChainID:              info.ChainID,
		BlockNumber:          header.BlockNumber,
		BlockTimestamp:       header.BlockTimestamp,
		BlockDate:            header.BlockDate,
		TxHash:               lowerHex(tx["hash"]),
		TxIndex:              hexToUint64(tx["transactionIndex"]),
		FromAddress:          lowerHex(tx["from"]),
		ToAddress:            lowerHex(tx["to"]),
		Value:                hexToBigInt(tx["value"]),
		Gas:                  hexToUint64(tx["gas"]),
		GasPrice:             hexToBigInt(tx["gasPrice"]),
		MaxFeePerGas:         hexToBigInt(tx["maxFeePerGas"]),
		MaxPriorityFeePerGas: hexToBigInt(tx["maxPriorityFeePerGas"]),
		Nonce:                hexToUint64(tx["nonce"]),
		Input:                interfaceToString(tx["input"]),
		TxType:               uint8(hexToUint64(tx["type"])),
		TxChainID:            hexToUint64Ptr(tx["chainId"]),
		AccessListJSON:       interfaceToJSONString(tx["accessList"]),
	}

	switch info.Family {
	case chains.Optimism:
		// Deposit transactions (type 0x7e) carry their L1 provenance on
		// the body; fee fields come from the receipt.
		if tx["sourceHash"] != nil || tx["mint"] != nil {
			parsed.Optimism = &common.OptimismTxExt{
				DepositSourceHash: lowerHexPtr(tx["sourceHash"]),
				DepositMint:       hexToBigIntPtr(tx["mint"]),
			}
		}
	case chains.ZkSyncEra:
		if tx["l1BatchNumber"] != nil || tx["l1BatchTxIndex"] != nil {
			parsed.ZkSync = &common.ZkSyncTxExt{
				L1BatchNumber:  hexToUint64Ptr(tx["l1BatchNumber"]),
				L1BatchTxIndex: hexToUint64Ptr(tx["l1BatchTxIndex"]),
			}
		}
	}

	return parsed
}
