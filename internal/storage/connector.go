package storage

import (
	"context"
	"fmt"

	config "github.com/blockflow-dev/indexer/configs"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

// Warehouse is the sole persistent state of the indexer. Appends are
// idempotent on primary key; the resume cursor is derived from
// MaxBlockNumber across enabled datasets.
type Warehouse interface {
	// Bootstrap ensures the dataset and the enabled tables exist with the
	// chain-family schema. An existing incompatible table is fatal.
	Bootstrap(ctx context.Context, datasets common.DatasetSet) error

	InsertBlocks(ctx context.Context, rows []common.Block) error
	InsertTransactions(ctx context.Context, rows []common.Transaction) error
	InsertLogs(ctx context.Context, rows []common.Log) error
	InsertTraces(ctx context.Context, rows []common.Trace) error

	// MaxBlockNumber returns the highest stored block number for the
	// dataset. ok is false when the table holds no rows for the chain.
	MaxBlockNumber(ctx context.Context, dataset common.Dataset) (maxBlock uint64, ok bool, err error)

	// HasGap reports whether the stored block numbers for the dataset have
	// a hole between their min and max.
	HasGap(ctx context.Context, dataset common.Dataset) (bool, error)

	Close() error
}

func NewWarehouse(cfg *config.StorageConfig, chainName string, chainID uint64, family chains.Family) (Warehouse, error) {
	switch {
	case cfg.Clickhouse != nil:
		return NewClickHouseWarehouse(cfg.Clickhouse, chainName, chainID, family, cfg.DatasetLocation)
	case cfg.Memory != nil:
		return NewMemoryWarehouse(chainID, family), nil
	default:
		return nil, fmt.Errorf("no warehouse driver configured")
	}
}
