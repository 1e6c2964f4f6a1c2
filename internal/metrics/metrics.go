package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RPC adapter metrics
var (
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_requests_total",
		Help: "The total number of JSON-RPC requests issued, by method",
	}, []string{"method"})

	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_errors_total",
		Help: "The total number of JSON-RPC calls that returned an error, by method",
	}, []string{"method"})

	RPCRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_retries_total",
		Help: "The total number of JSON-RPC retry attempts, by method",
	}, []string{"method"})

	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpc_latency_seconds",
		Help:    "Latency of individual JSON-RPC calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// Pipeline driver metrics
var (
	ChainHead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chain_head",
		Help: "The latest block number reported by the chain",
	})

	CommittedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "committed_block",
		Help: "The highest block committed across every enabled dataset",
	})

	BlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blocks_processed_total",
		Help: "The total number of blocks fully processed and committed",
	})

	BlockRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "block_retries_total",
		Help: "The total number of per-block pipeline retries",
	})

	OversizedTraceBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oversized_trace_blocks_total",
		Help: "The number of blocks whose traces were skipped because the node reported the trace response as too large",
	})

	ChainTipLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chain_tip_lag",
		Help: "Distance in blocks between the chain head and the committed cursor",
	})

	BlockProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "block_processing_duration_seconds",
		Help:    "Time from fan-out start to durable commit for one block",
		Buckets: prometheus.DefBuckets,
	})
)

// Warehouse sink metrics
var (
	WarehouseRowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_rows_inserted_total",
		Help: "The total number of rows appended to the warehouse, by dataset",
	}, []string{"dataset"})

	WarehouseInsertOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_insert_operations_total",
		Help: "The total number of warehouse append operations, by dataset",
	}, []string{"dataset"})

	WarehouseInsertDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warehouse_insert_duration_seconds",
		Help:    "Time taken to append one batch to the warehouse",
		Buckets: prometheus.DefBuckets,
	}, []string{"dataset"})

	SinkBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sink_batch_size_rows",
		Help:    "Rows per flushed sink batch",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2500},
	}, []string{"dataset"})

	SinkDurableBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sink_durable_block",
		Help: "The contiguous durable watermark per dataset sink",
	}, []string{"dataset"})
)

// Publisher metrics
var (
	PublishedCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "published_commits_total",
		Help: "The number of commit notifications published",
	})

	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publish_errors_total",
		Help: "The number of commit notifications that failed to publish",
	})
)
