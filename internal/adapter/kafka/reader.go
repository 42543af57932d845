// Package kafka adapts the ingestion queue onto Kafka topics: a jobs topic
// consumed by the pipeline and a dead-letter topic for exhausted jobs.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/disaster-mail-ingest/internal/config"
	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes jobs from the jobs topic as part of a consumer group.
// Within a partition, jobs are handed out one at a time and committed only
// after processing, so a job is never in flight with two consumers and
// completion order matches dequeue order.
type Reader struct {
	reader *kafkago.Reader
	commit func(ctx context.Context, msgs ...kafkago.Message) error
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured jobs topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaJobsTopic,
		GroupID: cfg.KafkaGroupID,
	})
	return &Reader{reader: r, commit: r.CommitMessages, logger: logger}
}

// Dequeue blocks until the next job is available or the context is
// cancelled. The returned message carries a Commit callback that
// acknowledges the underlying Kafka offset.
func (r *Reader) Dequeue(ctx context.Context) (domain.JobMessage, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return domain.JobMessage{}, fmt.Errorf("fetch job: %w", err)
	}
	return r.mapMessageToJob(msg)
}

func (r *Reader) mapMessageToJob(msg kafkago.Message) (domain.JobMessage, error) {
	var job domain.QueueJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		// A message that is not a QueueJob can never succeed; commit it so
		// the partition is not wedged behind garbage.
		if commitErr := r.commit(context.Background(), msg); commitErr != nil {
			r.logger.Warn("commit malformed job failed", "error", commitErr,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
		return domain.JobMessage{}, fmt.Errorf("decode job at %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}

	return domain.JobMessage{
		Job:       job,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Commit: func(ctx context.Context) error {
			return r.commit(ctx, msg)
		},
	}, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}
