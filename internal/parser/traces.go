package parser

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

// parseCallTraces decodes debug_traceBlockByNumber/callTracer results.
// Each entry holds one transaction's call tree, which is flattened via a
// left-to-right DFS so that trace_address is the index path to a frame.
func parseCallTraces(info chains.Info, rawTraces []common.RawTrace, header common.Block) []common.Trace {
	if len(rawTraces) == 0 {
		return []common.Trace{}
	}

	traces := make([]common.Trace, 0, len(rawTraces))
	for _, entry := range rawTraces {
		txHash := lowerHex(entry["txHash"])
		frame, ok := entry["result"].(map[string]interface{})
		if !ok {
			if errMsg := interfaceToString(entry["error"]); errMsg != "" {
				log.Warn().Str("tx_hash", txHash).Str("error", errMsg).Msg("Trace result missing for transaction")
			}
			continue
		}
		traces = flattenCallFrame(info, header, txHash, frame, nil, traces)
	}
	return traces
}

func flattenCallFrame(info chains.Info, header common.Block, txHash string, frame map[string]interface{}, path []uint64, out []common.Trace) []common.Trace {
	calls, _ := frame["calls"].([]interface{})

	traceAddress := make([]uint64, len(path))
	copy(traceAddress, path)

	out = append(out, common.Trace{
		ChainID:        info.ChainID,
		BlockNumber:    header.BlockNumber,
		BlockTimestamp: header.BlockTimestamp,
		BlockDate:      header.BlockDate,
		TxHash:         txHash,
		TraceAddress:   traceAddress,
		Subtraces:      uint64(len(calls)),
		TraceType:      strings.ToLower(interfaceToString(frame["type"])),
		FromAddress:    lowerHex(frame["from"]),
		ToAddress:      lowerHex(frame["to"]),
		Value:          hexToBigInt(frame["value"]),
		Gas:            hexToUint64(frame["gas"]),
		GasUsed:        hexToUint64(frame["gasUsed"]),
		Input:          interfaceToString(frame["input"]),
		Output:         interfaceToString(frame["output"]),
		Error:          interfaceToString(frame["error"]),
		RevertReason:   interfaceToString(frame["revertReason"]),
	})

	for i, rawCall := range calls {
		child, ok := rawCall.(map[string]interface{})
		if !ok {
			continue
		}
		childPath := make([]uint64, len(path)+1)
		copy(childPath, path)
		childPath[len(path)] = uint64(i)
		out = flattenCallFrame(info, header, txHash, child, childPath, out)
	}
	return out
}

// parseParityTraces decodes trace_block results, which arrive already
// flattened with explicit traceAddress paths.
func parseParityTraces(info chains.Info, rawTraces []common.RawTrace, header common.Block) []common.Trace {
	if len(rawTraces) == 0 {
		return []common.Trace{}
	}

	traces := make([]common.Trace, 0, len(rawTraces))
	for _, raw := range rawTraces {
		action, _ := raw["action"].(map[string]interface{})
		if action == nil {
			action = map[string]interface{}{}
		}
		result, _ := raw["result"].(map[string]interface{})
		if result == nil {
			result = map[string]interface{}{}
		}

		rawAddress, _ := raw["traceAddress"].([]interface{})
		traceAddress := make([]uint64, len(rawAddress))
		for i, idx := range rawAddress {
			traceAddress[i] = numToUint64(idx)
		}

		traces = append(traces, common.Trace{
			ChainID:        info.ChainID,
			BlockNumber:    header.BlockNumber,
			BlockTimestamp: header.BlockTimestamp,
			BlockDate:      header.BlockDate,
			TxHash:         lowerHex(raw["transactionHash"]),
			TxIndex:        numToUint64(raw["transactionPosition"]),
			TraceAddress:   traceAddress,
			Subtraces:      numToUint64(raw["subtraces"]),
			TraceType:      interfaceToString(raw["type"]),
			CallType:       interfaceToString(action["callType"]),
			FromAddress:    lowerHex(action["from"]),
			ToAddress:      lowerHex(action["to"]),
			Value:          hexToBigInt(action["value"]),
			Gas:            hexToUint64(action["gas"]),
			GasUsed:        hexToUint64(result["gasUsed"]),
			Input:          interfaceToString(action["input"]),
			Output:         interfaceToString(result["output"]),
			Error:          interfaceToString(raw["error"]),
		})
	}
	return traces
}
