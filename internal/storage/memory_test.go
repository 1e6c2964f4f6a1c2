package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

func TestMemoryWarehouseDeduplicatesOnPrimaryKey(t *testing.T) {
	w := NewMemoryWarehouse(1, chains.Ethereum)
	ctx := context.Background()

	rows := []common.Block{{ChainID: 1, BlockNumber: 7}}
	require.NoError(t, w.InsertBlocks(ctx, rows))
	require.NoError(t, w.InsertBlocks(ctx, rows))

	assert.Equal(t, 1, w.CountRows(common.DatasetBlocks))
}

func TestMemoryWarehouseCursor(t *testing.T) {
	w := NewMemoryWarehouse(1, chains.Ethereum)
	ctx := context.Background()

	_, ok, err := w.MaxBlockNumber(ctx, common.DatasetBlocks)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.InsertBlocks(ctx, []common.Block{
		{ChainID: 1, BlockNumber: 3},
		{ChainID: 1, BlockNumber: 5},
		{ChainID: 1, BlockNumber: 4},
	}))

	maxBlock, ok, err := w.MaxBlockNumber(ctx, common.DatasetBlocks)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), maxBlock)
}

func TestMemoryWarehouseGapDetection(t *testing.T) {
	w := NewMemoryWarehouse(1, chains.Ethereum)
	ctx := context.Background()

	require.NoError(t, w.InsertBlocks(ctx, []common.Block{
		{ChainID: 1, BlockNumber: 10},
		{ChainID: 1, BlockNumber: 11},
		{ChainID: 1, BlockNumber: 13},
	}))

	hasGap, err := w.HasGap(ctx, common.DatasetBlocks)
	require.NoError(t, err)
	assert.True(t, hasGap)

	require.NoError(t, w.InsertBlocks(ctx, []common.Block{{ChainID: 1, BlockNumber: 12}}))
	hasGap, err = w.HasGap(ctx, common.DatasetBlocks)
	require.NoError(t, err)
	assert.False(t, hasGap)
}

func TestMemoryWarehouseInsertHook(t *testing.T) {
	w := NewMemoryWarehouse(1, chains.Ethereum)
	boom := assert.AnError
	w.OnInsert = func(dataset common.Dataset) error {
		if dataset == common.DatasetLogs {
			return boom
		}
		return nil
	}

	ctx := context.Background()
	assert.NoError(t, w.InsertBlocks(ctx, []common.Block{{ChainID: 1, BlockNumber: 1}}))
	assert.ErrorIs(t, w.InsertLogs(ctx, []common.Log{{ChainID: 1, TxHash: "0xa", LogIndex: 0}}), boom)
}
