package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/disaster-mail-ingest/internal/config"
	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Producer publishes jobs to the jobs topic and parks exhausted jobs on the
// dead-letter topic.
type Producer struct {
	jobs       *kafkago.Writer
	deadLetter *kafkago.Writer
	logger     *slog.Logger
}

// NewProducer creates writers for the configured jobs and dead-letter topics.
func NewProducer(cfg *config.Config, logger *slog.Logger) *Producer {
	return &Producer{
		jobs: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaJobsTopic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		},
		deadLetter: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaDeadLetterTopic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		},
		logger: logger,
	}
}

// Enqueue publishes a job to the jobs topic. Acceptance here is the webhook
// success response; everything downstream is asynchronous.
func (p *Producer) Enqueue(ctx context.Context, job domain.QueueJob) error {
	msg, err := serializeJob(job)
	if err != nil {
		return err
	}
	if err := p.jobs.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.JobID, err)
	}
	return nil
}

// Requeue returns a failed job to the jobs topic for another attempt. The
// caller increments Attempts before requeueing.
func (p *Producer) Requeue(ctx context.Context, job domain.QueueJob) error {
	msg, err := serializeJob(job)
	if err != nil {
		return err
	}
	if err := p.jobs.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("requeue job %s: %w", job.JobID, err)
	}
	return nil
}

// DeadLetter publishes an exhausted job to the dead-letter topic with the
// failure reason in a header, held for operator inspection.
func (p *Producer) DeadLetter(ctx context.Context, job domain.QueueJob, reason string) error {
	msg, err := serializeJob(job)
	if err != nil {
		return err
	}
	msg.Headers = append(msg.Headers, kafkago.Header{Key: "reason", Value: []byte(reason)})
	if err := p.deadLetter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.JobID, err)
	}
	p.logger.Error("job dead-lettered", "job_id", job.JobID, "attempts", job.Attempts, "reason", reason)
	return nil
}

func (p *Producer) Close() error {
	jobsErr := p.jobs.Close()
	dlErr := p.deadLetter.Close()
	if jobsErr != nil {
		return jobsErr
	}
	return dlErr
}

// serializeJob marshals a QueueJob into a Kafka message. The key is the job's
// source so all jobs from one feed land on one partition and process in order.
func serializeJob(job domain.QueueJob) (kafkago.Message, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize job %s: %w", job.JobID, err)
	}
	return kafkago.Message{
		Key:   []byte(job.Source),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "job_id", Value: []byte(job.JobID)},
			{Key: "attempts", Value: []byte(strconv.Itoa(job.Attempts))},
			{Key: "enqueued_at", Value: []byte(job.EnqueuedAt.Format(time.RFC3339))},
		},
	}, nil
}
