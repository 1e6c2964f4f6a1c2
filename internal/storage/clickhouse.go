package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
	config "github.com/blockflow-dev/indexer/configs"
	"github.com/blockflow-dev/indexer/internal/chains"
	"github.com/blockflow-dev/indexer/internal/common"
)

// ClickHouseWarehouse writes the four datasets into a per-chain database
// named `{chain_name}_raw`. Tables are ReplacingMergeTree partitioned by
// block_date, so retried appends deduplicate on the primary key.
type ClickHouseWarehouse struct {
	conn     clickhouse.Conn
	database string
	chainID  uint64
	family   chains.Family
	location string
}

func NewClickHouseWarehouse(cfg *config.ClickhouseConfig, chainName string, chainID uint64, family chains.Family, location string) (*ClickHouseWarehouse, error) {
	options := &clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}
	if cfg.Secure {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}

	return &ClickHouseWarehouse{
		conn:     conn,
		database: DatasetName(chainName),
		chainID:  chainID,
		family:   family,
		location: location,
	}, nil
}

// DatasetName derives the warehouse dataset (database) from the chain
// name, e.g. "arbitrum" -> "arbitrum_raw".
func DatasetName(chainName string) string {
	s := strings.ToLower(chainName)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s + "_raw"
}

func (w *ClickHouseWarehouse) Bootstrap(ctx context.Context, datasets common.DatasetSet) error {
	createDB := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", w.database)
	if w.location != "" {
		createDB += fmt.Sprintf(" COMMENT 'location=%s'", w.location)
	}
	if err := w.conn.Exec(ctx, createDB); err != nil {
		return fmt.Errorf("failed to create database %s: %w", w.database, err)
	}

	for _, dataset := range datasets.Enabled() {
		if err := w.conn.Exec(ctx, createTableDDL(w.database, dataset, w.family)); err != nil {
			return fmt.Errorf("failed to create table %s.%s: %w", w.database, dataset, err)
		}
		if err := w.verifySchema(ctx, dataset); err != nil {
			return err
		}
		log.Debug().Str("table", fmt.Sprintf("%s.%s", w.database, dataset)).Msg("Warehouse table ready")
	}
	return nil
}

// verifySchema checks that an existing table carries every column the
// chain family writes. A superset is fine; a missing column is fatal.
func (w *ClickHouseWarehouse) verifySchema(ctx context.Context, dataset common.Dataset) error {
	rows, err := w.conn.Query(ctx,
		"SELECT name FROM system.columns WHERE database = ? AND table = ?",
		w.database, string(dataset),
	)
	if err != nil {
		return fmt.Errorf("failed to inspect schema of %s.%s: %w", w.database, dataset, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		existing[name] = true
	}

	for _, col := range datasetColumns(dataset, w.family) {
		if !existing[col.Name] {
			return fmt.Errorf("table %s.%s exists with an incompatible schema: missing column %s", w.database, dataset, col.Name)
		}
	}
	return nil
}

func (w *ClickHouseWarehouse) InsertBlocks(ctx context.Context, rows []common.Block) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, insertStatement(w.database, common.DatasetBlocks, w.family))
	if err != nil {
		return err
	}
	for i := range rows {
		if err := batch.Append(blockValues(w.family, &rows[i])...); err != nil {
			return fmt.Errorf("block %d/%d rejected: %w", rows[i].ChainID, rows[i].BlockNumber, err)
		}
	}
	return batch.Send()
}

func (w *ClickHouseWarehouse) InsertTransactions(ctx context.Context, rows []common.Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, insertStatement(w.database, common.DatasetTransactions, w.family))
	if err != nil {
		return err
	}
	for i := range rows {
		if err := batch.Append(transactionValues(w.family, &rows[i])...); err != nil {
			return fmt.Errorf("transaction %d/%s rejected: %w", rows[i].ChainID, rows[i].TxHash, err)
		}
	}
	return batch.Send()
}

func (w *ClickHouseWarehouse) InsertLogs(ctx context.Context, rows []common.Log) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, insertStatement(w.database, common.DatasetLogs, w.family))
	if err != nil {
		return err
	}
	for i := range rows {
		if err := batch.Append(logValues(&rows[i])...); err != nil {
			return fmt.Errorf("log %d/%s/%d rejected: %w", rows[i].ChainID, rows[i].TxHash, rows[i].LogIndex, err)
		}
	}
	return batch.Send()
}

func (w *ClickHouseWarehouse) InsertTraces(ctx context.Context, rows []common.Trace) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, insertStatement(w.database, common.DatasetTraces, w.family))
	if err != nil {
		return err
	}
	for i := range rows {
		if err := batch.Append(traceValues(&rows[i])...); err != nil {
			return fmt.Errorf("trace %d/%s/%v rejected: %w", rows[i].ChainID, rows[i].TxHash, rows[i].TraceAddress, err)
		}
	}
	return batch.Send()
}

func (w *ClickHouseWarehouse) MaxBlockNumber(ctx context.Context, dataset common.Dataset) (uint64, bool, error) {
	query := fmt.Sprintf(
		"SELECT max(block_number), count() FROM `%s`.`%s` WHERE chain_id = ?",
		w.database, dataset,
	)
	var maxBlock, count uint64
	if err := w.conn.QueryRow(ctx, query, w.chainID).Scan(&maxBlock, &count); err != nil {
		return 0, false, fmt.Errorf("cursor query on %s.%s failed: %w", w.database, dataset, err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return maxBlock, true, nil
}

func (w *ClickHouseWarehouse) HasGap(ctx context.Context, dataset common.Dataset) (bool, error) {
	query := fmt.Sprintf(
		"SELECT min(block_number), max(block_number), uniqExact(block_number) FROM `%s`.`%s` WHERE chain_id = ?",
		w.database, dataset,
	)
	var minBlock, maxBlock, distinct uint64
	if err := w.conn.QueryRow(ctx, query, w.chainID).Scan(&minBlock, &maxBlock, &distinct); err != nil {
		return false, fmt.Errorf("gap query on %s.%s failed: %w", w.database, dataset, err)
	}
	if distinct == 0 {
		return false, nil
	}
	return maxBlock-minBlock+1 != distinct, nil
}

func (w *ClickHouseWarehouse) Close() error {
	return w.conn.Close()
}
