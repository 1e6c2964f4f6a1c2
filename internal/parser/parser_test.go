package parser

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

// Arbitrum One block 165032766: two transactions, tx 0 is the system
// message (type 0x6a), tx 1 is EIP-1559.
const arbitrumBlockJSON = `{
	"number": "0x9d6333e",
	"hash": "0xAABB00000000000000000000000000000000000000000000000000000000CCdd",
	"parentHash": "0x1111111111111111111111111111111111111111111111111111111111111111",
	"timestamp": "0x65840000",
	"miner": "0xA4B000000000000000000000000000000073657175",
	"gasUsed": "0x3b7f2",
	"gasLimit": "0x4000000000000",
	"baseFeePerGas": "0x5f5e100",
	"size": "0x4a2",
	"extraData": "0x",
	"nonce": "0x0000000000000001",
	"sha3Uncles": "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
	"mixHash": "0x2222222222222222222222222222222222222222222222222222222222222222",
	"stateRoot": "0x3333333333333333333333333333333333333333333333333333333333333333",
	"transactionsRoot": "0x4444444444444444444444444444444444444444444444444444444444444444",
	"receiptsRoot": "0x5555555555555555555555555555555555555555555555555555555555555555",
	"logsBloom": "0x0",
	"difficulty": "0x1",
	"totalDifficulty": "0x9d6333e",
	"l1BlockNumber": "0x12048d0",
	"sendCount": "0x18f17",
	"sendRoot": "0x6666666666666666666666666666666666666666666666666666666666666666",
	"transactions": [
		{
			"hash": "0x7777777777777777777777777777777777777777777777777777777777777701",
			"transactionIndex": "0x0",
			"from": "0x00000000000000000000000000000000000A4B05",
			"to": "0x00000000000000000000000000000000000A4B05",
			"value": "0x0",
			"gas": "0x0",
			"gasPrice": "0x0",
			"nonce": "0x2c97f1",
			"input": "0xdeadbeef",
			"type": "0x6a"
		},
		{
			"hash": "0x7777777777777777777777777777777777777777777777777777777777777702",
			"transactionIndex": "0x1",
			"from": "0x8888888888888888888888888888888888888888",
			"to": "0x9999999999999999999999999999999999999999",
			"value": "0xde0b6b3a7640000",
			"gas": "0x30d40",
			"gasPrice": "0x5f5e100",
			"maxFeePerGas": "0x11e1a300",
			"maxPriorityFeePerGas": "0x0",
			"nonce": "0x7",
			"input": "0x",
			"type": "0x2",
			"chainId": "0xa4b1",
			"accessList": []
		}
	]
}`

const arbitrumReceiptsJSON = `[
	{
		"transactionHash": "0x7777777777777777777777777777777777777777777777777777777777777701",
		"transactionIndex": "0x0",
		"type": "0x6a",
		"status": "0x1",
		"cumulativeGasUsed": "0x0",
		"effectiveGasPrice": "0x0",
		"gasUsed": "0x0",
		"gasUsedForL1": "0x0",
		"l1BlockNumber": "0x12048d0",
		"logsBloom": "0x0",
		"logs": []
	},
	{
		"transactionHash": "0x7777777777777777777777777777777777777777777777777777777777777702",
		"transactionIndex": "0x1",
		"type": "0x2",
		"status": "0x1",
		"cumulativeGasUsed": "0x3b7f2",
		"effectiveGasPrice": "0x5f5e100",
		"gasUsed": "0x3b7f2",
		"gasUsedForL1": "0xabd4a",
		"l1BlockNumber": "0x12048d0",
		"logsBloom": "0x0",
		"logs": []
	}
]`

func arbitrumInfo(t *testing.T) chains.Info {
	info, err := chains.Resolve(42161, true)
	require.NoError(t, err)
	return info
}

func decodeBlock(t *testing.T, blob string) common.RawBlock {
	var raw common.RawBlock
	require.NoError(t, json.Unmarshal([]byte(blob), &raw))
	return raw
}

func decodeReceipts(t *testing.T, blob string) []common.RawReceipt {
	var raw []common.RawReceipt
	require.NoError(t, json.Unmarshal([]byte(blob), &raw))
	return raw
}

func TestParseArbitrumBlock(t *testing.T) {
	info := arbitrumInfo(t)
	rawBlock := decodeBlock(t, arbitrumBlockJSON)
	rawReceipts := decodeReceipts(t, arbitrumReceiptsJSON)

	parsed, err := Parse(info, chains.TraceMethodDebug, rawBlock, rawReceipts, nil)
	require.NoError(t, err)

	block := parsed.Block
	assert.Equal(t, uint64(42161), block.ChainID)
	assert.Equal(t, uint64(165032766), block.BlockNumber)
	assert.Equal(t, uint64(2), block.TxCount)
	assert.Equal(t, "0xaabb00000000000000000000000000000000000000000000000000000000ccdd", block.BlockHash)

	require.NotNil(t, block.Arbitrum)
	assert.Equal(t, uint64(18893008), block.Arbitrum.L1BlockNumber)
	require.NotNil(t, block.Arbitrum.SendCount)
	assert.Equal(t, uint64(102167), *block.Arbitrum.SendCount)
	assert.Nil(t, block.ZkSync)

	// block_date is the UTC date of block_timestamp.
	assert.Equal(t, time.Unix(0x65840000, 0).UTC(), block.BlockTimestamp)
	assert.Equal(t, time.Date(2023, 12, 21, 0, 0, 0, 0, time.UTC), block.BlockDate)
	assert.Equal(t, block.BlockDate, utcDate(block.BlockTimestamp))

	require.Len(t, parsed.Transactions, 2)
	system := parsed.Transactions[0]
	assert.Equal(t, uint64(0), system.TxIndex)
	assert.Equal(t, uint8(106), system.TxType)
	assert.Equal(t, "0", system.GasPrice.String())
	assert.Equal(t, system.FromAddress, system.ToAddress)
	assert.Equal(t, "0x00000000000000000000000000000000000a4b05", system.ToAddress)

	eip1559 := parsed.Transactions[1]
	assert.Equal(t, uint64(1), eip1559.TxIndex)
	assert.Equal(t, uint8(2), eip1559.TxType)
	assert.Equal(t, "1000000000000000000", eip1559.Value.String())
	require.NotNil(t, eip1559.TxChainID)
	assert.Equal(t, uint64(42161), *eip1559.TxChainID)
	assert.Equal(t, "[]", eip1559.AccessListJSON)

	require.Len(t, parsed.Receipts, 2)
	require.NotNil(t, parsed.Receipts[1].GasUsedForL1)
	assert.Equal(t, uint64(703818), *parsed.Receipts[1].GasUsedForL1)
	assert.Empty(t, parsed.Receipts[0].Logs)
	assert.Empty(t, parsed.Receipts[1].Logs)
}

func TestParseIsDeterministic(t *testing.T) {
	info := arbitrumInfo(t)

	first, err := Parse(info, chains.TraceMethodDebug, decodeBlock(t, arbitrumBlockJSON), decodeReceipts(t, arbitrumReceiptsJSON), nil)
	require.NoError(t, err)
	second, err := Parse(info, chains.TraceMethodDebug, decodeBlock(t, arbitrumBlockJSON), decodeReceipts(t, arbitrumReceiptsJSON), nil)
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(first, second))
}

func TestParseNilBlock(t *testing.T) {
	info := arbitrumInfo(t)
	_, err := Parse(info, chains.TraceMethodDebug, nil, nil, nil)
	assert.Error(t, err)
}

func TestParseZkSyncReceiptBatchMetadata(t *testing.T) {
	info, err := chains.Resolve(324, true)
	require.NoError(t, err)

	rawBlock := decodeBlock(t, `{
		"number": "0x100",
		"hash": "0xaa",
		"parentHash": "0xbb",
		"timestamp": "0x65840000",
		"l1BatchNumber": "0x5dc",
		"l1BatchTimestamp": "0x6583ff00",
		"l2ToL1Logs": [{"sender": "0x8001", "key": "0x01", "value": "0x02"}],
		"transactions": [
			{"hash": "0xt1", "transactionIndex": "0x0", "from": "0xf1", "to": "0xf2", "value": "0x0", "gas": "0x5208", "gasPrice": "0x1", "nonce": "0x0", "input": "0x", "type": "0x0"}
		]
	}`)
	rawReceipts := decodeReceipts(t, `[
		{"transactionHash": "0xt1", "transactionIndex": "0x0", "type": "0x0", "status": "0x1",
		 "cumulativeGasUsed": "0x5208", "effectiveGasPrice": "0x1", "gasUsed": "0x5208",
		 "l1BatchNumber": "0x5dc", "l1BatchTxIndex": "0x2", "logs": []}
	]`)

	parsed, err := Parse(info, chains.TraceMethodDebug, rawBlock, rawReceipts, nil)
	require.NoError(t, err)

	require.NotNil(t, parsed.Block.ZkSync)
	require.NotNil(t, parsed.Block.ZkSync.L1BatchNumber)
	assert.Equal(t, uint64(1500), *parsed.Block.ZkSync.L1BatchNumber)
	assert.Equal(t, `[{"key":"0x01","sender":"0x8001","value":"0x02"}]`, parsed.Block.ZkSync.L2ToL1Logs)

	receipt := parsed.Receipts[0]
	require.NotNil(t, receipt.L1BatchNumber)
	require.NotNil(t, receipt.L1BatchTxIndex)
	assert.Equal(t, uint64(1500), *receipt.L1BatchNumber)
	assert.Equal(t, uint64(2), *receipt.L1BatchTxIndex)
}

func TestParseOptimismPreBedrockStrict(t *testing.T) {
	// OVM1 pre-Bedrock headers carry a 97-byte extraData.
	preBedrockExtra := "0x" + strings.Repeat("ab", 97)
	blockJSON := `{
		"number": "0x2dc6c0",
		"hash": "0xaa",
		"parentHash": "0xbb",
		"timestamp": "0x60dc0000",
		"extraData": "` + preBedrockExtra + `",
		"transactions": []
	}`

	strict, err := chains.Resolve(10, true)
	require.NoError(t, err)
	_, err = Parse(strict, chains.TraceMethodDebug, decodeBlock(t, blockJSON), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre-Bedrock")

	// Without strict mode the block flows through with the Bedrock
	// fields absent.
	lenient, err := chains.Resolve(10, false)
	require.NoError(t, err)
	parsed, err := Parse(lenient, chains.TraceMethodDebug, decodeBlock(t, blockJSON), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, preBedrockExtra, parsed.Block.ExtraData)
	assert.Nil(t, parsed.Block.BlobGasUsed)
}

func TestIsPreBedrockHeader(t *testing.T) {
	assert.True(t, isPreBedrockHeader("0x"+strings.Repeat("00", 97)))
	assert.False(t, isPreBedrockHeader("0x"))
	assert.False(t, isPreBedrockHeader("0x"+strings.Repeat("00", 32)))
	assert.False(t, isPreBedrockHeader(""))
}

func TestParseLogsPreserveTopicOrder(t *testing.T) {
	info, err := chains.Resolve(1, true)
	require.NoError(t, err)

	header := common.Block{BlockNumber: 5, ChainID: 1}
	logs := parseLogs(info, []interface{}{
		map[string]interface{}{
			"transactionHash":  "0xT",
			"transactionIndex": "0x0",
			"logIndex":         "0x3",
			"address":          "0xAB",
			"topics":           []interface{}{"0xT0", "0xT1", "0xT2"},
			"data":             "0x1234",
		},
	}, header)

	require.Len(t, logs, 1)
	assert.Equal(t, []string{"0xt0", "0xt1", "0xt2"}, logs[0].Topics)
	assert.Equal(t, uint64(3), logs[0].LogIndex)
	assert.Equal(t, "0xt0", logs[0].Topic(0))
	assert.Equal(t, "", logs[0].Topic(3))
}

func TestHexHelpers(t *testing.T) {
	assert.Equal(t, uint64(0), hexToUint64(nil))
	assert.Equal(t, uint64(255), hexToUint64("0xff"))
	assert.Nil(t, hexToUint64Ptr(nil))
	assert.Equal(t, "0", hexToBigInt(nil).String())
	assert.Equal(t, "18893008", hexToBigInt("0x12048d0").String())
	assert.Equal(t, "[]", interfaceToJSONString(nil))
	assert.Equal(t, "0xabcdef", lowerHex("0xABCDEF"))
}
