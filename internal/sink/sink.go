package sink

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/blockflow-dev/indexer/internal/common"
	"github.com/blockflow-dev/indexer/internal/metrics"
	"github.com/blockflow-dev/indexer/internal/rpc"
)

const (
	DefaultBatchSize     = 500
	DefaultMaxWait       = 5 * time.Second
	DefaultCapacity      = 32
	DefaultAppendTimeout = 120 * time.Second
)

type Config struct {
	BatchSize     int
	MaxWait       time.Duration
	Capacity      int
	AppendTimeout time.Duration
	Retry         rpc.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.AppendTimeout <= 0 {
		c.AppendTimeout = DefaultAppendTimeout
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = rpc.DefaultRetryConfig()
	}
	return c
}

type item[T any] struct {
	rows  []T
	block uint64
	done  chan error
}

// Sink is one dataset's long-lived batching worker. Block tasks enqueue
// their rows and wait on the returned channel for durability; the sink
// flushes when it holds BatchSize rows or MaxWait has elapsed. The
// channel capacity bounds how far fan-out can run ahead of the
// warehouse.
type Sink[T any] struct {
	dataset common.Dataset
	insert  func(ctx context.Context, rows []T) error
	cfg     Config

	in chan item[T]
	wg sync.WaitGroup

	mu       sync.Mutex
	pending  map[uint64]int
	maxAcked uint64
	hasAcked bool
}

func New[T any](dataset common.Dataset, insert func(ctx context.Context, rows []T) error, cfg Config) *Sink[T] {
	cfg = cfg.withDefaults()
	return &Sink[T]{
		dataset: dataset,
		insert:  insert,
		cfg:     cfg,
		in:      make(chan item[T], cfg.Capacity),
		pending: make(map[uint64]int),
	}
}

// Enqueue hands one block's rows to the sink. The returned channel
// yields exactly one value: nil once the warehouse acknowledged every
// row, or the append error. Empty row sets still flow through so the
// block's commit is acknowledged.
func (s *Sink[T]) Enqueue(ctx context.Context, rows []T, blockNumber uint64) <-chan error {
	done := make(chan error, 1)

	s.mu.Lock()
	s.pending[blockNumber]++
	s.mu.Unlock()

	select {
	case s.in <- item[T]{rows: rows, block: blockNumber, done: done}:
	case <-ctx.Done():
		s.fail(blockNumber)
		done <- ctx.Err()
	}
	return done
}

// Start launches the worker. The context gates retry pacing only;
// shutdown is Close, which drains everything already accepted.
func (s *Sink[T]) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Close stops intake and blocks until accepted batches are flushed.
func (s *Sink[T]) Close() {
	close(s.in)
	s.wg.Wait()
}

// DurableThrough is the highest block for which this sink has
// acknowledged every enqueued row, with nothing older outstanding.
func (s *Sink[T]) DurableThrough() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lowest := uint64(0)
	hasPending := false
	for block := range s.pending {
		if !hasPending || block < lowest {
			lowest = block
			hasPending = true
		}
	}
	if hasPending {
		if lowest == 0 {
			return 0, false
		}
		return lowest - 1, true
	}
	return s.maxAcked, s.hasAcked
}

func (s *Sink[T]) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.MaxWait)
	defer ticker.Stop()

	var batch []item[T]
	rowCount := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := s.flush(ctx, batch, rowCount)
		if err != nil {
			log.Error().Err(err).Str("dataset", string(s.dataset)).Msg("Sink flush failed")
		}
		batch = nil
		rowCount = 0
	}

	for {
		select {
		case it, ok := <-s.in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, it)
			rowCount += len(it.rows)
			if rowCount >= s.cfg.BatchSize {
				flush()
				ticker.Reset(s.cfg.MaxWait)
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Sink[T]) flush(ctx context.Context, batch []item[T], rowCount int) error {
	var err error
	if rowCount > 0 {
		rows := make([]T, 0, rowCount)
		for _, it := range batch {
			rows = append(rows, it.rows...)
		}

		start := time.Now()
		// The append itself is never interrupted mid-request; cancellation
		// only takes effect between retry attempts. This lets the sink
		// drain accepted batches on shutdown.
		_, err = rpc.Retry(ctx, s.cfg.Retry, "warehouse_append", func(context.Context) (struct{}, error) {
			appendCtx, cancel := context.WithTimeout(context.Background(), s.cfg.AppendTimeout)
			defer cancel()
			return struct{}{}, s.insert(appendCtx, rows)
		})

		metrics.SinkBatchSize.WithLabelValues(string(s.dataset)).Observe(float64(rowCount))
		metrics.WarehouseInsertDuration.WithLabelValues(string(s.dataset)).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.WarehouseInsertOperations.WithLabelValues(string(s.dataset)).Inc()
			metrics.WarehouseRowsInserted.WithLabelValues(string(s.dataset)).Add(float64(rowCount))
		}
	}

	for _, it := range batch {
		if err == nil {
			s.ack(it.block)
		} else {
			s.fail(it.block)
		}
		it.done <- err
	}
	return err
}

func (s *Sink[T]) ack(blockNumber uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release(blockNumber)
	if !s.hasAcked || blockNumber > s.maxAcked {
		s.maxAcked = blockNumber
		s.hasAcked = true
	}
	if durable, ok := s.durableLocked(); ok {
		metrics.SinkDurableBlock.WithLabelValues(string(s.dataset)).Set(float64(durable))
	}
}

func (s *Sink[T]) fail(blockNumber uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release(blockNumber)
}

func (s *Sink[T]) release(blockNumber uint64) {
	s.pending[blockNumber]--
	if s.pending[blockNumber] <= 0 {
		delete(s.pending, blockNumber)
	}
}

func (s *Sink[T]) durableLocked() (uint64, bool) {
	if len(s.pending) > 0 {
		return 0, false
	}
	return s.maxAcked, s.hasAcked
}
