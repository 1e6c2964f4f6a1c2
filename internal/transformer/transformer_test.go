package transformer

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
	"github.com/blockflow-dev/indexer/internal/parser"
)

var testTimestamp = time.Date(2023, 12, 21, 9, 30, 0, 0, time.UTC)
var testDate = time.Date(2023, 12, 21, 0, 0, 0, 0, time.UTC)

func allDatasets() common.DatasetSet {
	return common.DatasetSet{
		common.DatasetBlocks:       true,
		common.DatasetTransactions: true,
		common.DatasetLogs:         true,
		common.DatasetTraces:       true,
	}
}

func testParsedBlock() *parser.ParsedBlock {
	header := common.Block{
		ChainID:        42161,
		BlockNumber:    165400921,
		BlockHash:      "0xhead",
		BlockTimestamp: testTimestamp,
		BlockDate:      testDate,
		TxCount:        2,
	}

	gasUsedForL1 := uint64(703818)
	return &parser.ParsedBlock{
		ChainID: 42161,
		Family:  chains.Arbitrum,
		Block:   header,
		Transactions: []common.Transaction{
			{
				ChainID: 42161, BlockNumber: header.BlockNumber,
				BlockTimestamp: testTimestamp, BlockDate: testDate,
				TxHash: "0xaaa", TxIndex: 0,
				Value: big.NewInt(0), GasPrice: big.NewInt(0),
			},
			{
				ChainID: 42161, BlockNumber: header.BlockNumber,
				BlockTimestamp: testTimestamp, BlockDate: testDate,
				TxHash: "0x8e1cf2ebe", TxIndex: 1,
				Value: big.NewInt(10), GasPrice: big.NewInt(100),
			},
		},
		Receipts: []common.Receipt{
			{
				TxHash: "0xaaa", TxIndex: 0, GasUsed: 21000,
				CumulativeGasUsed: 21000, EffectiveGasPrice: big.NewInt(0),
				Logs: []common.Log{},
			},
			{
				TxHash: "0x8e1cf2ebe", TxIndex: 1, GasUsed: 250000,
				CumulativeGasUsed: 271000, EffectiveGasPrice: big.NewInt(100),
				GasUsedForL1: &gasUsedForL1,
				Logs: []common.Log{
					{ChainID: 42161, BlockNumber: header.BlockNumber, TxHash: "0x8e1cf2ebe", LogIndex: 2, Address: "0xc1"},
					{ChainID: 42161, BlockNumber: header.BlockNumber, TxHash: "0x8e1cf2ebe", LogIndex: 0, Address: "0xc1"},
					{ChainID: 42161, BlockNumber: header.BlockNumber, TxHash: "0x8e1cf2ebe", LogIndex: 3, Address: "0xc1"},
					{ChainID: 42161, BlockNumber: header.BlockNumber, TxHash: "0x8e1cf2ebe", LogIndex: 1, Address: "0xc1"},
				},
			},
		},
		Traces: []common.Trace{
			{ChainID: 42161, BlockNumber: header.BlockNumber, TxHash: "0x8e1cf2ebe", TraceAddress: []uint64{0}},
			{ChainID: 42161, BlockNumber: header.BlockNumber, TxHash: "0xaaa", TraceAddress: []uint64{}},
			{ChainID: 42161, BlockNumber: header.BlockNumber, TxHash: "0x8e1cf2ebe", TraceAddress: []uint64{}},
		},
	}
}

func TestTransformProducesAllDatasets(t *testing.T) {
	rowSet, err := Transform(testParsedBlock(), allDatasets())
	require.NoError(t, err)

	require.Len(t, rowSet.Blocks, 1)
	assert.Equal(t, uint64(165400921), rowSet.BlockNumber)

	require.Len(t, rowSet.Transactions, 2)
	assert.Equal(t, uint64(0), rowSet.Transactions[0].TxIndex)
	assert.Equal(t, uint64(1), rowSet.Transactions[1].TxIndex)
	assert.Equal(t, uint64(250000), rowSet.Transactions[1].GasUsed)

	// Arbitrum receipt fields ride along on the transaction row.
	require.NotNil(t, rowSet.Transactions[1].Arbitrum)
	require.NotNil(t, rowSet.Transactions[1].Arbitrum.GasUsedForL1)
	assert.Equal(t, uint64(703818), *rowSet.Transactions[1].Arbitrum.GasUsedForL1)

	// Four logs, ordered by (tx_index, log_index).
	require.Len(t, rowSet.Logs, 4)
	for i, l := range rowSet.Logs {
		assert.Equal(t, uint64(i), l.LogIndex)
		assert.Equal(t, "0x8e1cf2ebe", l.TxHash)
		assert.Equal(t, uint64(1), l.TxIndex)
	}

	// Traces enriched with block fields and ordered by
	// (tx_index, trace_address).
	require.Len(t, rowSet.Traces, 3)
	assert.Equal(t, "0xaaa", rowSet.Traces[0].TxHash)
	assert.Equal(t, []uint64{}, rowSet.Traces[1].TraceAddress)
	assert.Equal(t, []uint64{0}, rowSet.Traces[2].TraceAddress)
	for _, trace := range rowSet.Traces {
		assert.Equal(t, testTimestamp, trace.BlockTimestamp)
		assert.Equal(t, testDate, trace.BlockDate)
	}
}

func TestTransformMissingReceiptFailsBlock(t *testing.T) {
	pb := testParsedBlock()
	pb.Receipts = pb.Receipts[:1]

	_, err := Transform(pb, allDatasets())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReceiptMissing)
}

func TestTransformLogsRecoverTxIndex(t *testing.T) {
	pb := testParsedBlock()
	// The raw log came back without a transactionIndex; the map built
	// from the block body fills it in.
	for i := range pb.Receipts[1].Logs {
		pb.Receipts[1].Logs[i].TxIndex = 0
	}

	rowSet, err := Transform(pb, allDatasets())
	require.NoError(t, err)
	for _, l := range rowSet.Logs {
		assert.Equal(t, uint64(1), l.TxIndex)
	}
}

func TestTransformDropsForeignTraces(t *testing.T) {
	pb := testParsedBlock()
	pb.Traces = append(pb.Traces, common.Trace{
		ChainID: 42161, BlockNumber: pb.Block.BlockNumber,
		TxHash: "0xnotinblock", TraceAddress: []uint64{},
	})

	rowSet, err := Transform(pb, allDatasets())
	require.NoError(t, err)
	assert.Len(t, rowSet.Traces, 3)
	for _, trace := range rowSet.Traces {
		assert.NotEqual(t, "0xnotinblock", trace.TxHash)
	}
}

func TestTransformRespectsEnabledDatasets(t *testing.T) {
	rowSet, err := Transform(testParsedBlock(), common.DatasetSet{common.DatasetBlocks: true})
	require.NoError(t, err)
	assert.Len(t, rowSet.Blocks, 1)
	assert.Empty(t, rowSet.Transactions)
	assert.Empty(t, rowSet.Logs)
	assert.Empty(t, rowSet.Traces)
}

func TestTransformDisabledTransactionsSkipsReceiptCheck(t *testing.T) {
	pb := testParsedBlock()
	pb.Receipts = pb.Receipts[:1]

	rowSet, err := Transform(pb, common.DatasetSet{common.DatasetBlocks: true, common.DatasetLogs: true})
	require.NoError(t, err)
	assert.Len(t, rowSet.Blocks, 1)
	assert.Empty(t, rowSet.Logs)
}

func TestTransformZkSyncPrefersReceiptBatchMetadata(t *testing.T) {
	staleBatch := uint64(10)
	freshBatch := uint64(12)
	batchTxIndex := uint64(4)

	pb := &parser.ParsedBlock{
		ChainID: 324,
		Family:  chains.ZkSyncEra,
		Block: common.Block{
			ChainID: 324, BlockNumber: 55,
			BlockTimestamp: testTimestamp, BlockDate: testDate, TxCount: 1,
		},
		Transactions: []common.Transaction{{
			ChainID: 324, BlockNumber: 55, TxHash: "0xz", TxIndex: 0,
			ZkSync: &common.ZkSyncTxExt{L1BatchNumber: &staleBatch},
		}},
		Receipts: []common.Receipt{{
			TxHash: "0xz", TxIndex: 0,
			L1BatchNumber: &freshBatch, L1BatchTxIndex: &batchTxIndex,
		}},
	}

	rowSet, err := Transform(pb, common.DatasetSet{common.DatasetTransactions: true})
	require.NoError(t, err)
	require.Len(t, rowSet.Transactions, 1)
	require.NotNil(t, rowSet.Transactions[0].ZkSync)
	assert.Equal(t, uint64(12), *rowSet.Transactions[0].ZkSync.L1BatchNumber)
	assert.Equal(t, uint64(4), *rowSet.Transactions[0].ZkSync.L1BatchTxIndex)
}
