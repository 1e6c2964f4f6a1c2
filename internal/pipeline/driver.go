package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog/log"
	"github.com/blockflow-dev/indexer/internal/common"
	"github.com/blockflow-dev/indexer/internal/metrics"
	"github.com/blockflow-dev/indexer/internal/parser"
	"github.com/blockflow-dev/indexer/internal/rpc"
	"github.com/blockflow-dev/indexer/internal/sink"
	"github.com/blockflow-dev/indexer/internal/storage"
	"github.com/blockflow-dev/indexer/internal/transformer"
)

const (
	DefaultConcurrency  = 8
	DefaultBlockRetries = 3

	tipWaitInterval = 1 * time.Second
)

// CommitNote describes one durably committed block for downstream
// consumers.
type CommitNote struct {
	ChainID     uint64         `json:"chain_id"`
	BlockNumber uint64         `json:"block_number"`
	BlockHash   string         `json:"block_hash"`
	Rows        map[string]int `json:"rows"`
}

// CommitNotifier receives best-effort commit notifications. Failures
// must never block the cursor.
type CommitNotifier interface {
	NotifyCommit(ctx context.Context, note CommitNote)
}

type Options struct {
	StartBlock   uint64
	EndBlock     uint64
	TipBuffer    uint64
	Concurrency  int
	BlockRetries int
	GapCheck     bool
	Datasets     common.DatasetSet
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.BlockRetries <= 0 {
		o.BlockRetries = DefaultBlockRetries
	}
	return o
}

// Driver plans the block range, keeps up to Concurrency blocks in
// flight, and advances the committed cursor only after every enabled
// dataset sink acknowledged durability for a block.
type Driver struct {
	rpc       rpc.Client
	warehouse storage.Warehouse
	opts      Options
	sinkCfg   sink.Config
	heartbeat *metrics.Heartbeat
	notifier  CommitNotifier

	blocksSink       *sink.Sink[common.Block]
	transactionsSink *sink.Sink[common.Transaction]
	logsSink         *sink.Sink[common.Log]
	tracesSink       *sink.Sink[common.Trace]

	watermark *Watermark

	fatalMu  sync.Mutex
	fatalErr error
}

func NewDriver(client rpc.Client, warehouse storage.Warehouse, opts Options, sinkCfg sink.Config, heartbeat *metrics.Heartbeat, notifier CommitNotifier) *Driver {
	return &Driver{
		rpc:       client,
		warehouse: warehouse,
		opts:      opts.withDefaults(),
		sinkCfg:   sinkCfg,
		heartbeat: heartbeat,
		notifier:  notifier,
	}
}

type blockSummary struct {
	blockHash string
	rows      map[string]int
}

func (d *Driver) Run(ctx context.Context) error {
	datasets := d.opts.Datasets

	if datasets[common.DatasetTraces] && !d.rpc.SupportsTraces() {
		return fmt.Errorf("traces dataset is enabled but the provider supports no trace method")
	}

	if err := d.warehouse.Bootstrap(ctx, datasets); err != nil {
		return fmt.Errorf("warehouse bootstrap failed: %w", err)
	}

	startBlock, err := d.resolveStartBlock(ctx)
	if err != nil {
		return err
	}
	if d.opts.EndBlock != 0 && startBlock > d.opts.EndBlock {
		log.Info().Uint64("start", startBlock).Uint64("end", d.opts.EndBlock).Msg("Start block is beyond end block, nothing to index")
		return nil
	}
	log.Info().Uint64("start_block", startBlock).Msg("Starting indexer")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.watermark = NewWatermark(startBlock)
	d.startSinks(runCtx)

	pool := pond.NewPool(d.opts.Concurrency)
	// The slots channel keeps the dispatch loop at most Concurrency blocks
	// ahead of completion; pond alone would queue without bound.
	slots := make(chan struct{}, d.opts.Concurrency)
	startTime := time.Now()
	dispatched := uint64(0)

	for n := startBlock; d.opts.EndBlock == 0 || n <= d.opts.EndBlock; n++ {
		if runCtx.Err() != nil {
			break
		}
		if err := d.waitForTip(runCtx, n); err != nil {
			if runCtx.Err() == nil {
				d.setFatal(cancel, err)
			}
			break
		}

		select {
		case slots <- struct{}{}:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}

		blockNumber := n
		dispatched++
		pool.Submit(func() {
			defer func() { <-slots }()
			if runCtx.Err() != nil {
				return
			}
			blockStart := time.Now()
			summary, err := d.processBlock(runCtx, blockNumber)
			if err != nil {
				if runCtx.Err() == nil {
					d.setFatal(cancel, err)
				}
				return
			}

			committed, ok := d.watermark.Mark(blockNumber)
			d.heartbeat.Beat()
			metrics.BlocksProcessed.Inc()
			metrics.BlockProcessingDuration.Observe(time.Since(blockStart).Seconds())
			if ok {
				metrics.CommittedBlock.Set(float64(committed))
			}

			if d.notifier != nil {
				d.notifier.NotifyCommit(runCtx, CommitNote{
					ChainID:     d.rpc.ChainID(),
					BlockNumber: blockNumber,
					BlockHash:   summary.blockHash,
					Rows:        summary.rows,
				})
			}
			log.Debug().Uint64("block", blockNumber).Msg("Block committed")
		})
	}

	// Finish in-flight blocks, then flush the sinks.
	pool.StopAndWait()
	d.closeSinks()

	if err := d.fatal(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if d.opts.EndBlock != 0 {
		elapsed := time.Since(startTime)
		rate := float64(dispatched) / elapsed.Seconds()
		log.Info().
			Uint64("blocks", dispatched).
			Dur("runtime", elapsed).
			Float64("blocks_per_second", rate).
			Msg("Reached end block, indexer complete")
	}
	return nil
}

func (d *Driver) setFatal(cancel context.CancelFunc, err error) {
	d.fatalMu.Lock()
	if d.fatalErr == nil {
		d.fatalErr = err
	}
	d.fatalMu.Unlock()
	log.Error().Err(err).Msg("Fatal pipeline error, shutting down")
	cancel()
}

func (d *Driver) fatal() error {
	d.fatalMu.Lock()
	defer d.fatalMu.Unlock()
	return d.fatalErr
}

// resolveStartBlock implements resume-from-warehouse: with no configured
// start block, continue from min(max(block_number)) across the enabled
// tables plus one. An empty table restarts from zero so every dataset
// reaches the same horizon.
func (d *Driver) resolveStartBlock(ctx context.Context) (uint64, error) {
	if d.opts.StartBlock > 0 {
		return d.opts.StartBlock, nil
	}

	cursor := uint64(0)
	haveCursor := false
	for _, dataset := range d.opts.Datasets.Enabled() {
		maxBlock, ok, err := d.warehouse.MaxBlockNumber(ctx, dataset)
		if err != nil {
			return 0, fmt.Errorf("resume cursor query failed: %w", err)
		}
		if !ok {
			return 0, nil
		}
		if !haveCursor || maxBlock < cursor {
			cursor = maxBlock
			haveCursor = true
		}
	}
	if !haveCursor {
		return 0, nil
	}

	if d.opts.GapCheck {
		for _, dataset := range d.opts.Datasets.Enabled() {
			hasGap, err := d.warehouse.HasGap(ctx, dataset)
			if err != nil {
				return 0, fmt.Errorf("gap check failed: %w", err)
			}
			if hasGap {
				return 0, fmt.Errorf("dataset %s has a block gap below its cursor; refusing to resume", dataset)
			}
		}
	}

	log.Info().Uint64("cursor", cursor).Msg("Resuming from warehouse cursor")
	return cursor + 1, nil
}

// waitForTip blocks until n is at least TipBuffer blocks behind the
// chain head, keeping reorg exposure bounded.
func (d *Driver) waitForTip(ctx context.Context, n uint64) error {
	for {
		head, err := d.rpc.HeadBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("head sampling failed: %w", err)
		}
		d.heartbeat.Beat()

		if head >= n+d.opts.TipBuffer {
			if committed, ok := d.watermark.Value(); ok {
				metrics.ChainTipLag.Set(float64(head - committed))
			}
			return nil
		}

		log.Debug().
			Uint64("block", n).
			Uint64("head", head).
			Uint64("tip_buffer", d.opts.TipBuffer).
			Msg("Waiting for chain head to advance")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tipWaitInterval):
		}
	}
}

// processBlock runs the whole per-block pipeline, restarting it from the
// top a bounded number of times before surfacing the error as fatal.
func (d *Driver) processBlock(ctx context.Context, blockNumber uint64) (*blockSummary, error) {
	var lastErr error
	for attempt := 0; attempt < d.opts.BlockRetries; attempt++ {
		if attempt > 0 {
			metrics.BlockRetries.Inc()
			log.Warn().Err(lastErr).Uint64("block", blockNumber).Int("attempt", attempt+1).Msg("Retrying block from the top")
		}
		summary, err := d.indexBlock(ctx, blockNumber)
		if err == nil {
			return summary, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("block %d failed after %d attempts: %w", blockNumber, d.opts.BlockRetries, lastErr)
}

func (d *Driver) indexBlock(ctx context.Context, blockNumber uint64) (*blockSummary, error) {
	datasets := d.opts.Datasets
	needReceipts := datasets[common.DatasetTransactions] || datasets[common.DatasetLogs]
	needTraces := datasets[common.DatasetTraces]

	rawBlock, rawReceipts, rawTraces, tracesOmitted, err := d.fanOut(ctx, blockNumber, needReceipts, needTraces)
	if err != nil {
		return nil, err
	}
	d.heartbeat.Beat()

	parsed, err := parser.Parse(d.rpc.ChainInfo(), d.rpc.TraceMethod(), rawBlock, rawReceipts, rawTraces)
	if err != nil {
		return nil, err
	}

	rowSet, err := transformer.Transform(parsed, datasets)
	if err != nil {
		return nil, err
	}

	if err := d.awaitDurability(ctx, rowSet); err != nil {
		return nil, err
	}
	d.heartbeat.Beat()

	summary := &blockSummary{
		blockHash: parsed.Block.BlockHash,
		rows:      map[string]int{},
	}
	if datasets[common.DatasetBlocks] {
		summary.rows["blocks"] = len(rowSet.Blocks)
	}
	if datasets[common.DatasetTransactions] {
		summary.rows["transactions"] = len(rowSet.Transactions)
	}
	if datasets[common.DatasetLogs] {
		summary.rows["logs"] = len(rowSet.Logs)
	}
	if datasets[common.DatasetTraces] {
		summary.rows["traces"] = len(rowSet.Traces)
		if tracesOmitted {
			summary.rows["traces"] = 0
		}
	}
	return summary, nil
}

// fanOut issues the three correlated RPC calls for one block. With
// block-level receipts all three run concurrently; the per-tx fallback
// needs the block's tx hashes first.
func (d *Driver) fanOut(ctx context.Context, blockNumber uint64, needReceipts, needTraces bool) (common.RawBlock, []common.RawReceipt, []common.RawTrace, bool, error) {
	var (
		rawBlock    common.RawBlock
		rawReceipts []common.RawReceipt
		rawTraces   []common.RawTrace

		blockErr    error
		receiptsErr error
		tracesErr   error
	)

	fetchTraces := func() {
		rawTraces, tracesErr = d.rpc.GetTracesForBlock(ctx, blockNumber)
	}

	if needReceipts && !d.rpc.SupportsBlockReceipts() {
		// Per-tx receipts need the hashes from the block body.
		rawBlock, blockErr = d.rpc.GetBlockWithTxs(ctx, blockNumber)
		if blockErr != nil {
			return nil, nil, nil, false, blockErr
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			rawReceipts, receiptsErr = d.rpc.GetReceiptsForBlock(ctx, blockNumber, txHashesFromRawBlock(rawBlock))
		}()
		if needTraces {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fetchTraces()
			}()
		}
		wg.Wait()
	} else {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			rawBlock, blockErr = d.rpc.GetBlockWithTxs(ctx, blockNumber)
		}()
		if needReceipts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rawReceipts, receiptsErr = d.rpc.GetReceiptsForBlock(ctx, blockNumber, nil)
			}()
		}
		if needTraces {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fetchTraces()
			}()
		}
		wg.Wait()
	}

	if blockErr != nil {
		return nil, nil, nil, false, blockErr
	}
	if receiptsErr != nil {
		return nil, nil, nil, false, receiptsErr
	}

	tracesOmitted := false
	if tracesErr != nil {
		if errors.Is(tracesErr, rpc.ErrTraceTooLarge) {
			// Traces are best effort: skip them for this block, commit the
			// rest.
			log.Warn().Uint64("block", blockNumber).Msg("Trace response too large, omitting traces for block")
			metrics.OversizedTraceBlocks.Inc()
			rawTraces = nil
			tracesOmitted = true
		} else {
			return nil, nil, nil, false, tracesErr
		}
	}

	return rawBlock, rawReceipts, rawTraces, tracesOmitted, nil
}

// awaitDurability enqueues the block's rows on every enabled sink, then
// blocks until each sink acknowledges the append. This is the per-block
// atomicity point: the cursor can only move once all datasets hold the
// block.
func (d *Driver) awaitDurability(ctx context.Context, rowSet *transformer.RowSet) error {
	datasets := d.opts.Datasets
	acks := make([]<-chan error, 0, 4)

	if datasets[common.DatasetBlocks] {
		acks = append(acks, d.blocksSink.Enqueue(ctx, rowSet.Blocks, rowSet.BlockNumber))
	}
	if datasets[common.DatasetTransactions] {
		acks = append(acks, d.transactionsSink.Enqueue(ctx, rowSet.Transactions, rowSet.BlockNumber))
	}
	if datasets[common.DatasetLogs] {
		acks = append(acks, d.logsSink.Enqueue(ctx, rowSet.Logs, rowSet.BlockNumber))
	}
	if datasets[common.DatasetTraces] {
		acks = append(acks, d.tracesSink.Enqueue(ctx, rowSet.Traces, rowSet.BlockNumber))
	}

	for _, ack := range acks {
		select {
		case err := <-ack:
			if err != nil {
				return fmt.Errorf("durability ack failed for block %d: %w", rowSet.BlockNumber, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *Driver) startSinks(ctx context.Context) {
	datasets := d.opts.Datasets
	if datasets[common.DatasetBlocks] {
		d.blocksSink = sink.New(common.DatasetBlocks, d.warehouse.InsertBlocks, d.sinkCfg)
		d.blocksSink.Start(ctx)
	}
	if datasets[common.DatasetTransactions] {
		d.transactionsSink = sink.New(common.DatasetTransactions, d.warehouse.InsertTransactions, d.sinkCfg)
		d.transactionsSink.Start(ctx)
	}
	if datasets[common.DatasetLogs] {
		d.logsSink = sink.New(common.DatasetLogs, d.warehouse.InsertLogs, d.sinkCfg)
		d.logsSink.Start(ctx)
	}
	if datasets[common.DatasetTraces] {
		d.tracesSink = sink.New(common.DatasetTraces, d.warehouse.InsertTraces, d.sinkCfg)
		d.tracesSink.Start(ctx)
	}
}

func (d *Driver) closeSinks() {
	if d.blocksSink != nil {
		d.blocksSink.Close()
	}
	if d.transactionsSink != nil {
		d.transactionsSink.Close()
	}
	if d.logsSink != nil {
		d.logsSink.Close()
	}
	if d.tracesSink != nil {
		d.tracesSink.Close()
	}
}

func txHashesFromRawBlock(rawBlock common.RawBlock) []string {
	rawTxs, _ := rawBlock["transactions"].([]interface{})
	hashes := make([]string, 0, len(rawTxs))
	for _, rawTx := range rawTxs {
		tx, ok := rawTx.(map[string]interface{})
		if !ok {
			continue
		}
		if hash, ok := tx["hash"].(string); ok {
			hashes = append(hashes, hash)
		}
	}
	return hashes
}
