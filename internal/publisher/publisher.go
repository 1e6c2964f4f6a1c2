package publisher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	config "github.com/blockflow-dev/indexer/configs"
	"github.com/blockflow-dev/indexer/internal/metrics"
	"github.com/blockflow-dev/indexer/internal/pipeline"
)

// Publisher emits a notification per durably committed block. Delivery
// is best effort: a publish failure is logged and counted, never
// surfaced to the pipeline.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher returns nil when publishing is disabled; the driver
// treats a nil notifier as a no-op.
func NewPublisher(cfg config.PublisherConfig, chainID uint64) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("publisher requires brokers and a topic")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.ClientID(fmt.Sprintf("warehouse-indexer-%d", chainID)),
		kgo.ProduceRequestTimeout(30 * time.Second),
		kgo.DialTimeout(10 * time.Second),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.Username != "" {
		opts = append(opts,
			kgo.DialTLSConfig(&tls.Config{}),
			kgo.SASL(plain.Auth{
				User: cfg.Username,
				Pass: cfg.Password,
			}.AsMechanism()),
		)
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Publisher{client: client, topic: cfg.Topic}, nil
}

func (p *Publisher) NotifyCommit(ctx context.Context, note pipeline.CommitNote) {
	payload, err := json.Marshal(note)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode commit notification")
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(fmt.Sprintf("%d-%d", note.ChainID, note.BlockNumber)),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			metrics.PublishErrors.Inc()
			log.Warn().Err(err).Uint64("block", note.BlockNumber).Msg("Failed to publish commit notification")
			return
		}
		metrics.PublishedCommits.Inc()
	})
}

func (p *Publisher) Close() {
	p.client.Close()
}
