package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

func TestParseCallTracesFlattensDFS(t *testing.T) {
	info, err := chains.Resolve(1, true)
	require.NoError(t, err)
	header := common.Block{ChainID: 1, BlockNumber: 100}

	var rawTraces []common.RawTrace
	require.NoError(t, json.Unmarshal([]byte(`[
		{
			"txHash": "0xT1",
			"result": {
				"type": "CALL",
				"from": "0xA0",
				"to": "0xB0",
				"gas": "0x100",
				"gasUsed": "0x80",
				"input": "0x01",
				"calls": [
					{
						"type": "STATICCALL",
						"from": "0xB0",
						"to": "0xC0",
						"gas": "0x50",
						"gasUsed": "0x20",
						"input": "0x02",
						"calls": [
							{"type": "DELEGATECALL", "from": "0xC0", "to": "0xD0", "gas": "0x10", "gasUsed": "0x5", "input": "0x03"}
						]
					},
					{"type": "CALL", "from": "0xB0", "to": "0xE0", "gas": "0x30", "gasUsed": "0x10", "input": "0x04", "error": "execution reverted", "revertReason": "nope"}
				]
			}
		}
	]`), &rawTraces))

	traces := parseCallTraces(info, rawTraces, header)
	require.Len(t, traces, 4)

	// Left-to-right DFS: root, first child, its child, second child.
	assert.Equal(t, []uint64{}, traces[0].TraceAddress)
	assert.Equal(t, []uint64{0}, traces[1].TraceAddress)
	assert.Equal(t, []uint64{0, 0}, traces[2].TraceAddress)
	assert.Equal(t, []uint64{1}, traces[3].TraceAddress)

	// subtraces is the number of direct children.
	assert.Equal(t, uint64(2), traces[0].Subtraces)
	assert.Equal(t, uint64(1), traces[1].Subtraces)
	assert.Equal(t, uint64(0), traces[2].Subtraces)
	assert.Equal(t, uint64(0), traces[3].Subtraces)

	assert.Equal(t, "call", traces[0].TraceType)
	assert.Equal(t, "staticcall", traces[1].TraceType)
	assert.Equal(t, "delegatecall", traces[2].TraceType)

	assert.Equal(t, "execution reverted", traces[3].Error)
	assert.Equal(t, "nope", traces[3].RevertReason)

	for _, trace := range traces {
		assert.Equal(t, "0xt1", trace.TxHash)
		assert.Equal(t, uint64(100), trace.BlockNumber)
	}
}

func TestParseCallTracesSkipsErroredEntries(t *testing.T) {
	info, err := chains.Resolve(1, true)
	require.NoError(t, err)
	header := common.Block{ChainID: 1, BlockNumber: 100}

	traces := parseCallTraces(info, []common.RawTrace{
		{"txHash": "0xbad", "error": "tracer timeout"},
		{"txHash": "0xok", "result": map[string]interface{}{"type": "CALL", "from": "0xa", "to": "0xb", "gas": "0x1", "gasUsed": "0x1"}},
	}, header)

	require.Len(t, traces, 1)
	assert.Equal(t, "0xok", traces[0].TxHash)
}

func TestParseParityTraces(t *testing.T) {
	info, err := chains.Resolve(1, true)
	require.NoError(t, err)
	header := common.Block{ChainID: 1, BlockNumber: 42}

	var rawTraces []common.RawTrace
	require.NoError(t, json.Unmarshal([]byte(`[
		{
			"action": {"callType": "call", "from": "0xA1", "to": "0xB1", "gas": "0x100", "input": "0x", "value": "0x5"},
			"result": {"gasUsed": "0x60", "output": "0x01"},
			"subtraces": 1,
			"traceAddress": [],
			"transactionHash": "0xT9",
			"transactionPosition": 3,
			"type": "call"
		},
		{
			"action": {"callType": "delegatecall", "from": "0xB1", "to": "0xC1", "gas": "0x20", "input": "0x"},
			"result": {"gasUsed": "0x10", "output": "0x"},
			"subtraces": 0,
			"traceAddress": [0],
			"transactionHash": "0xT9",
			"transactionPosition": 3,
			"type": "call"
		}
	]`), &rawTraces))

	traces := parseParityTraces(info, rawTraces, header)
	require.Len(t, traces, 2)

	assert.Equal(t, []uint64{}, traces[0].TraceAddress)
	assert.Equal(t, []uint64{0}, traces[1].TraceAddress)
	assert.Equal(t, uint64(3), traces[0].TxIndex)
	assert.Equal(t, uint64(1), traces[0].Subtraces)
	assert.Equal(t, "call", traces[0].CallType)
	assert.Equal(t, "delegatecall", traces[1].CallType)
	assert.Equal(t, "5", traces[0].Value.String())
	assert.Equal(t, uint64(0x60), traces[0].GasUsed)
}
