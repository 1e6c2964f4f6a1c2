package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	config "github.com/blockflow-dev/indexer/configs"
	"github.com/blockflow-dev/indexer/internal/common"
	"github.com/blockflow-dev/indexer/internal/metrics"
	"github.com/blockflow-dev/indexer/internal/pipeline"
	"github.com/blockflow-dev/indexer/internal/publisher"
	"github.com/blockflow-dev/indexer/internal/rpc"
	"github.com/blockflow-dev/indexer/internal/sink"
	"github.com/blockflow-dev/indexer/internal/storage"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitInterrupted = 130
)

func RunIndexer(_ *cobra.Command, _ []string) {
	os.Exit(runIndexer())
}

func runIndexer() int {
	client, err := rpc.Initialize()
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize RPC client")
		return exitFatal
	}
	defer client.Close()

	datasets, err := common.ParseDatasets(config.Cfg.Datasets)
	if err != nil {
		log.Error().Err(err).Msg("Invalid datasets configuration")
		return exitFatal
	}

	chainName := config.Cfg.Chain.Name
	if chainName == "" {
		chainName = fmt.Sprintf("chain_%d", client.ChainID())
	}

	warehouse, err := storage.NewWarehouse(&config.Cfg.Storage, chainName, client.ChainID(), client.ChainInfo().Family)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to warehouse")
		return exitFatal
	}
	defer warehouse.Close()

	heartbeat := metrics.NewHeartbeat()
	if config.Cfg.Metrics.Enabled {
		server := metrics.NewServer(
			config.Cfg.Metrics.Address,
			config.Cfg.Metrics.Port,
			heartbeat,
			time.Duration(config.Cfg.Metrics.StalenessSeconds)*time.Second,
		)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	var notifier pipeline.CommitNotifier
	pub, err := publisher.NewPublisher(config.Cfg.Publisher, client.ChainID())
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize commit publisher")
		return exitFatal
	}
	if pub != nil {
		notifier = pub
		defer pub.Close()
	}

	driver := pipeline.NewDriver(
		client,
		warehouse,
		pipeline.Options{
			StartBlock:   config.Cfg.Pipeline.StartBlock,
			EndBlock:     config.Cfg.Pipeline.EndBlock,
			TipBuffer:    config.Cfg.Chain.TipBuffer,
			Concurrency:  config.Cfg.Pipeline.Concurrency,
			BlockRetries: config.Cfg.Pipeline.BlockRetries,
			GapCheck:     config.Cfg.Pipeline.GapCheck,
			Datasets:     datasets,
		},
		sink.Config{
			BatchSize:     config.Cfg.Sink.BatchSize,
			MaxWait:       time.Duration(config.Cfg.Sink.BatchTimeout) * time.Second,
			Capacity:      config.Cfg.Sink.ChannelCapacity,
			AppendTimeout: time.Duration(config.Cfg.Sink.AppendTimeout) * time.Second,
			Retry:         rpc.RetryConfigFromSettings(config.Cfg.Retry),
		},
		heartbeat,
		notifier,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := driver.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Interrupted, shut down cleanly")
			return exitInterrupted
		}
		log.Error().Err(err).Msg("Indexer failed")
		return exitFatal
	}
	return exitOK
}
