package parser

import (
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

func parseReceipts(info chains.Info, rawReceipts []common.RawReceipt, header common.Block) []common.Receipt {
	if len(rawReceipts) == 0 {
		return []common.Receipt{}
	}

	receipts := make([]common.Receipt, 0, len(rawReceipts))
	for _, raw := range rawReceipts {
		receipts = append(receipts, parseReceipt(info, raw, header))
	}
	return receipts
}

func parseReceipt(info chains.Info, raw common.RawReceipt, header common.Block) common.Receipt {
	receipt := common.Receipt{
		TxHash:            lowerHex(raw["transactionHash"]),
		TxIndex:           hexToUint64(raw["transactionIndex"]),
		TxType:            uint8(hexToUint64(raw["type"])),
		Status:            hexToUint64Ptr(raw["status"]),
		CumulativeGasUsed: hexToUint64(raw["cumulativeGasUsed"]),
		EffectiveGasPrice: hexToBigInt(raw["effectiveGasPrice"]),
		GasUsed:           hexToUint64(raw["gasUsed"]),
		ContractAddress:   lowerHexPtr(raw["contractAddress"]),
		LogsBloom:         interfaceToString(raw["logsBloom"]),
		Logs:              parseLogs(info, raw["logs"], header),
	}

	switch info.Family {
	case chains.Arbitrum:
		receipt.GasUsedForL1 = hexToUint64Ptr(raw["gasUsedForL1"])
		receipt.L1BlockNumber = hexToUint64Ptr(raw["l1BlockNumber"])
	case chains.Optimism:
		receipt.L1Fee = hexToBigIntPtr(raw["l1Fee"])
		receipt.L1FeeScalar = stringPtr(raw["l1FeeScalar"])
		receipt.L1GasPrice = hexToBigIntPtr(raw["l1GasPrice"])
		receipt.L1GasUsed = hexToUint64Ptr(raw["l1GasUsed"])
		receipt.DepositNonce = hexToUint64Ptr(raw["depositNonce"])
		receipt.DepositReceiptVersion = hexToUint64Ptr(raw["depositReceiptVersion"])
	case chains.ZkSyncEra:
		receipt.L1BatchNumber = hexToUint64Ptr(raw["l1BatchNumber"])
		receipt.L1BatchTxIndex = hexToUint64Ptr(raw["l1BatchTxIndex"])
	}

	return receipt
}

func parseLogs(info chains.Info, rawLogs interface{}, header common.Block) []common.Log {
	entries, _ := rawLogs.([]interface{})
	if len(entries) == 0 {
		return []common.Log{}
	}

	logs := make([]common.Log, 0, len(entries))
	for _, entry := range entries {
		rawLog, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		rawTopics, _ := rawLog["topics"].([]interface{})
		topics := make([]string, len(rawTopics))
		for i, topic := range rawTopics {
			topics[i] = lowerHex(topic)
		}

		removed, _ := rawLog["removed"].(bool)

		logs = append(logs, common.Log{
			ChainID:        info.ChainID,
			BlockNumber:    header.BlockNumber,
			BlockTimestamp: header.BlockTimestamp,
			BlockDate:      header.BlockDate,
			TxHash:         lowerHex(rawLog["transactionHash"]),
			TxIndex:        hexToUint64(rawLog["transactionIndex"]),
			LogIndex:       hexToUint64(rawLog["logIndex"]),
			Address:        lowerHex(rawLog["address"]),
			Topics:         topics,
			Data:           interfaceToString(rawLog["data"]),
			Removed:        removed,
		})
	}
	return logs
}
