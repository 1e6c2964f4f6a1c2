package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	configs "github.com/blockflow-dev/indexer/configs"
	customLogger "github.com/blockflow-dev/indexer/internal/log"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "indexer",
		Short: "Continuous EVM chain indexer",
		Long:  "Extracts blocks, transactions, logs and traces from a JSON-RPC node and streams them into a warehouse",
		Run: func(cmd *cobra.Command, args []string) {
			RunIndexer(cmd, args)
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yml)")
	rootCmd.PersistentFlags().String("chain-name", "", "Chain name used for warehouse dataset naming")
	rootCmd.PersistentFlags().Uint64("chain-tip-buffer", 0, "How many blocks to stay behind the chain head")
	rootCmd.PersistentFlags().Bool("chain-strict", false, "Fail on unknown chain ids instead of defaulting to the Ethereum family")
	rootCmd.PersistentFlags().String("rpc-url", "", "RPC URL to use for the indexer")
	rootCmd.PersistentFlags().Int("rpc-timeout", 0, "Per-call RPC timeout in seconds")
	rootCmd.PersistentFlags().StringSlice("datasets", nil, "Datasets to index (blocks, transactions, logs, traces)")
	rootCmd.PersistentFlags().Uint64("pipeline-start-block", 0, "Block to start indexing from; 0 resumes from the warehouse cursor")
	rootCmd.PersistentFlags().Uint64("pipeline-end-block", 0, "Block to stop indexing at; 0 runs forever")
	rootCmd.PersistentFlags().Int("pipeline-concurrency", 0, "How many blocks to keep in flight")
	rootCmd.PersistentFlags().Int("pipeline-block-retries", 0, "How many times to attempt a block from the top before failing")
	rootCmd.PersistentFlags().Bool("pipeline-gap-check", false, "Verify the warehouse has no block gaps before resuming")
	rootCmd.PersistentFlags().Int("sink-batch-size", 0, "Rows per warehouse append batch")
	rootCmd.PersistentFlags().Int("sink-batch-timeout", 0, "Seconds to wait before flushing a partial batch")
	rootCmd.PersistentFlags().String("log-level", "", "Log level to use for the application")
	rootCmd.PersistentFlags().Bool("log-prettify", false, "Whether to prettify the log output")
	rootCmd.PersistentFlags().Bool("metrics-enabled", false, "Toggle the metrics and health endpoint")
	rootCmd.PersistentFlags().String("metrics-address", "", "Bind address for the metrics endpoint")
	rootCmd.PersistentFlags().Int("metrics-port", 0, "Bind port for the metrics endpoint")
	rootCmd.PersistentFlags().String("storage-clickhouse-host", "", "Clickhouse host for the warehouse")
	rootCmd.PersistentFlags().Int("storage-clickhouse-port", 0, "Clickhouse port for the warehouse")
	rootCmd.PersistentFlags().String("storage-clickhouse-username", "", "Clickhouse username for the warehouse")
	rootCmd.PersistentFlags().String("storage-clickhouse-password", "", "Clickhouse password for the warehouse")
	rootCmd.PersistentFlags().String("storage-dataset-location", "", "Regional location recorded on dataset creation")
	rootCmd.PersistentFlags().Bool("publisher-enabled", false, "Toggle commit notifications")
	rootCmd.PersistentFlags().StringSlice("publisher-brokers", nil, "Kafka brokers for commit notifications")
	rootCmd.PersistentFlags().String("publisher-topic", "", "Kafka topic for commit notifications")

	viper.BindPFlag("chain.name", rootCmd.PersistentFlags().Lookup("chain-name"))
	viper.BindPFlag("chain.tipBuffer", rootCmd.PersistentFlags().Lookup("chain-tip-buffer"))
	viper.BindPFlag("chain.strict", rootCmd.PersistentFlags().Lookup("chain-strict"))
	viper.BindPFlag("rpc.url", rootCmd.PersistentFlags().Lookup("rpc-url"))
	viper.BindPFlag("rpc.timeout", rootCmd.PersistentFlags().Lookup("rpc-timeout"))
	viper.BindPFlag("datasets", rootCmd.PersistentFlags().Lookup("datasets"))
	viper.BindPFlag("pipeline.startBlock", rootCmd.PersistentFlags().Lookup("pipeline-start-block"))
	viper.BindPFlag("pipeline.endBlock", rootCmd.PersistentFlags().Lookup("pipeline-end-block"))
	viper.BindPFlag("pipeline.concurrency", rootCmd.PersistentFlags().Lookup("pipeline-concurrency"))
	viper.BindPFlag("pipeline.blockRetries", rootCmd.PersistentFlags().Lookup("pipeline-block-retries"))
	viper.BindPFlag("pipeline.gapCheck", rootCmd.PersistentFlags().Lookup("pipeline-gap-check"))
	viper.BindPFlag("sink.batchSize", rootCmd.PersistentFlags().Lookup("sink-batch-size"))
	viper.BindPFlag("sink.batchTimeout", rootCmd.PersistentFlags().Lookup("sink-batch-timeout"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.prettify", rootCmd.PersistentFlags().Lookup("log-prettify"))
	viper.BindPFlag("metrics.enabled", rootCmd.PersistentFlags().Lookup("metrics-enabled"))
	viper.BindPFlag("metrics.address", rootCmd.PersistentFlags().Lookup("metrics-address"))
	viper.BindPFlag("metrics.port", rootCmd.PersistentFlags().Lookup("metrics-port"))
	viper.BindPFlag("storage.clickhouse.host", rootCmd.PersistentFlags().Lookup("storage-clickhouse-host"))
	viper.BindPFlag("storage.clickhouse.port", rootCmd.PersistentFlags().Lookup("storage-clickhouse-port"))
	viper.BindPFlag("storage.clickhouse.username", rootCmd.PersistentFlags().Lookup("storage-clickhouse-username"))
	viper.BindPFlag("storage.clickhouse.password", rootCmd.PersistentFlags().Lookup("storage-clickhouse-password"))
	viper.BindPFlag("storage.datasetLocation", rootCmd.PersistentFlags().Lookup("storage-dataset-location"))
	viper.BindPFlag("publisher.enabled", rootCmd.PersistentFlags().Lookup("publisher-enabled"))
	viper.BindPFlag("publisher.brokers", rootCmd.PersistentFlags().Lookup("publisher-brokers"))
	viper.BindPFlag("publisher.topic", rootCmd.PersistentFlags().Lookup("publisher-topic"))
}

func initConfig() {
	configs.LoadConfig(cfgFile)
	customLogger.InitLogger()
}
