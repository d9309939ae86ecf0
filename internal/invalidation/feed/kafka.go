package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"quorum/internal/invalidation/metrics"
)

// KafkaSource consumes the backing store's change-capture topics, one topic
// per table. Subscriptions consume from the end without a consumer group:
// signals are worthless once stale, so there is nothing to resume.
type KafkaSource struct {
	brokers     []string
	topicPrefix string
	logger      *slog.Logger
}

func NewKafkaSource(brokers []string, topicPrefix string, logger *slog.Logger) *KafkaSource {
	return &KafkaSource{brokers: brokers, topicPrefix: topicPrefix, logger: logger}
}

// Subscribe opens one consumer covering every filtered table. Missing topics
// fail the subscription up front: an unknown table is a configuration
// mistake, not something to probe per call.
func (s *KafkaSource) Subscribe(ctx context.Context, filters []TableFilter, fn func(Change)) (func(), error) {
	topics := make([]string, 0, len(filters))
	seen := make(map[string]bool, len(filters))
	for _, f := range filters {
		topic := s.topicPrefix + f.Table
		if !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("change feed client: %w", err)
	}

	adm := kadm.NewClient(client)
	details, err := adm.ListTopics(ctx, topics...)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("change feed topic check: %w", err)
	}
	for _, topic := range topics {
		if !details.Has(topic) {
			client.Close()
			return nil, fmt.Errorf("change feed topic %q does not exist", topic)
		}
	}

	pollCtx, stop := context.WithCancel(context.Background())
	go s.poll(pollCtx, client, filters, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			client.Close()
		})
	}, nil
}

func (s *KafkaSource) poll(ctx context.Context, client *kgo.Client, filters []TableFilter, fn func(Change)) {
	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			s.logger.Warn("change feed fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			var change Change
			if err := json.Unmarshal(record.Value, &change); err != nil {
				s.logger.Warn("change feed: malformed record dropped",
					"topic", record.Topic,
					"error", err,
				)
				metrics.SignalsDropped.WithLabelValues("malformed").Inc()
				return
			}
			if change.OccurredAt.IsZero() {
				change.OccurredAt = record.Timestamp
			}
			for _, f := range filters {
				if f.matches(change) {
					metrics.SignalsReceived.WithLabelValues("feed").Inc()
					fn(change)
					return
				}
			}
		})
	}
}
