package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

// MemoryWarehouse keeps rows in process, keyed by primary key so that
// re-appends deduplicate exactly like the ClickHouse connector. It backs
// the pipeline and sink tests.
type MemoryWarehouse struct {
	mu      sync.RWMutex
	chainID uint64
	family  chains.Family

	blocks       map[string]common.Block
	transactions map[string]common.Transaction
	logs         map[string]common.Log
	traces       map[string]common.Trace

	// OnInsert, when set, runs before every append and can inject
	// failures for tests.
	OnInsert func(dataset common.Dataset) error
}

func NewMemoryWarehouse(chainID uint64, family chains.Family) *MemoryWarehouse {
	return &MemoryWarehouse{
		chainID:      chainID,
		family:       family,
		blocks:       make(map[string]common.Block),
		transactions: make(map[string]common.Transaction),
		logs:         make(map[string]common.Log),
		traces:       make(map[string]common.Trace),
	}
}

func (w *MemoryWarehouse) Bootstrap(context.Context, common.DatasetSet) error {
	return nil
}

func (w *MemoryWarehouse) insertHook(dataset common.Dataset) error {
	if w.OnInsert != nil {
		return w.OnInsert(dataset)
	}
	return nil
}

func (w *MemoryWarehouse) InsertBlocks(_ context.Context, rows []common.Block) error {
	if err := w.insertHook(common.DatasetBlocks); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range rows {
		key := fmt.Sprintf("%d/%d", row.ChainID, row.BlockNumber)
		w.blocks[key] = row
	}
	return nil
}

func (w *MemoryWarehouse) InsertTransactions(_ context.Context, rows []common.Transaction) error {
	if err := w.insertHook(common.DatasetTransactions); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range rows {
		key := fmt.Sprintf("%d/%s", row.ChainID, row.TxHash)
		w.transactions[key] = row
	}
	return nil
}

func (w *MemoryWarehouse) InsertLogs(_ context.Context, rows []common.Log) error {
	if err := w.insertHook(common.DatasetLogs); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range rows {
		key := fmt.Sprintf("%d/%s/%d", row.ChainID, row.TxHash, row.LogIndex)
		w.logs[key] = row
	}
	return nil
}

func (w *MemoryWarehouse) InsertTraces(_ context.Context, rows []common.Trace) error {
	if err := w.insertHook(common.DatasetTraces); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range rows {
		key := fmt.Sprintf("%d/%s/%v", row.ChainID, row.TxHash, row.TraceAddress)
		w.traces[key] = row
	}
	return nil
}

func (w *MemoryWarehouse) blockNumbers(dataset common.Dataset) []uint64 {
	numbers := make(map[uint64]bool)
	switch dataset {
	case common.DatasetBlocks:
		for _, row := range w.blocks {
			numbers[row.BlockNumber] = true
		}
	case common.DatasetTransactions:
		for _, row := range w.transactions {
			numbers[row.BlockNumber] = true
		}
	case common.DatasetLogs:
		for _, row := range w.logs {
			numbers[row.BlockNumber] = true
		}
	case common.DatasetTraces:
		for _, row := range w.traces {
			numbers[row.BlockNumber] = true
		}
	}
	out := make([]uint64, 0, len(numbers))
	for n := range numbers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *MemoryWarehouse) MaxBlockNumber(_ context.Context, dataset common.Dataset) (uint64, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	numbers := w.blockNumbers(dataset)
	if len(numbers) == 0 {
		return 0, false, nil
	}
	return numbers[len(numbers)-1], true, nil
}

func (w *MemoryWarehouse) HasGap(_ context.Context, dataset common.Dataset) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	numbers := w.blockNumbers(dataset)
	if len(numbers) == 0 {
		return false, nil
	}
	return numbers[len(numbers)-1]-numbers[0]+1 != uint64(len(numbers)), nil
}

func (w *MemoryWarehouse) Close() error {
	return nil
}

// Test accessors.

func (w *MemoryWarehouse) BlockRow(blockNumber uint64) (common.Block, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	row, ok := w.blocks[fmt.Sprintf("%d/%d", w.chainID, blockNumber)]
	return row, ok
}

func (w *MemoryWarehouse) CountRows(dataset common.Dataset) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	switch dataset {
	case common.DatasetBlocks:
		return len(w.blocks)
	case common.DatasetTransactions:
		return len(w.transactions)
	case common.DatasetLogs:
		return len(w.logs)
	case common.DatasetTraces:
		return len(w.traces)
	}
	return 0
}

func (w *MemoryWarehouse) RowsForBlock(dataset common.Dataset, blockNumber uint64) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	count := 0
	switch dataset {
	case common.DatasetBlocks:
		for _, row := range w.blocks {
			if row.BlockNumber == blockNumber {
				count++
			}
		}
	case common.DatasetTransactions:
		for _, row := range w.transactions {
			if row.BlockNumber == blockNumber {
				count++
			}
		}
	case common.DatasetLogs:
		for _, row := range w.logs {
			if row.BlockNumber == blockNumber {
				count++
			}
		}
	case common.DatasetTraces:
		for _, row := range w.traces {
			if row.BlockNumber == blockNumber {
				count++
			}
		}
	}
	return count
}
