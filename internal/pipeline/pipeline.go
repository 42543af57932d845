// Package pipeline runs the queue-consumer side of ingestion: dequeue a
// job, extract its MIME content, normalize, dedup, enrich, and forward the
// canonical event to the storage boundary.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
	"github.com/couchcryptid/disaster-mail-ingest/internal/observability"
)

// Dequeuer pulls the next job from the ingestion queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (domain.JobMessage, error)
}

// Requeuer returns failed jobs to the queue or parks them in the
// dead-letter topic.
type Requeuer interface {
	Requeue(ctx context.Context, job domain.QueueJob) error
	DeadLetter(ctx context.Context, job domain.QueueJob, reason string) error
}

// EventStore is the storage boundary's write side.
type EventStore interface {
	Upsert(ctx context.Context, event domain.Event) error
}

// DedupGate answers whether an event has already been processed and records
// completed IDs.
type DedupGate interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string)
}

// outcome classifies one job's processing result.
type outcome int

const (
	outcomeStored outcome = iota
	outcomeDuplicate
	outcomeDropped // terminal: the job can never succeed
	outcomeRetry
)

// Pipeline orchestrates the dequeue-process-commit loop. One Pipeline runs
// one sequential consumer; partition-level concurrency comes from running
// more instances in the same consumer group.
type Pipeline struct {
	queue       Dequeuer
	requeuer    Requeuer
	gate        DedupGate
	store       EventStore
	geocoder    domain.Geocoder
	logger      *slog.Logger
	metrics     *observability.Metrics
	maxAttempts int
	ready       atomic.Bool
}

// New creates a Pipeline with the given stages and observability. Pass a nil
// geocoder to disable region enrichment.
func New(queue Dequeuer, requeuer Requeuer, gate DedupGate, store EventStore, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics, maxAttempts int) *Pipeline {
	return &Pipeline{
		queue:       queue,
		requeuer:    requeuer,
		gate:        gate,
		store:       store,
		geocoder:    geocoder,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: maxAttempts,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one
// job, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any jobs yet")
	}
	return nil
}

// Run executes the consumer loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "max_attempts", p.maxAttempts)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processNext(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processNext runs one dequeue-process-commit cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processNext(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	msg, err := p.queue.Dequeue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("dequeue failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	start := time.Now()
	result, reason := p.processJob(ctx, msg.Job)

	if result == outcomeRetry {
		// The job must be handed back to the queue before this message can
		// be committed. Committed offsets are a single watermark per
		// partition, so dequeuing past an unhandled job and committing a
		// later message would silently consume it. Block here until the
		// hand-back succeeds or shutdown is requested; on shutdown the
		// message stays uncommitted and the broker redelivers it.
		for !p.handleRetry(ctx, msg.Job, reason) {
			if !p.backoffOrStop(ctx, backoff, maxBackoff) {
				return false
			}
		}
	}

	p.commit(ctx, msg)
	p.metrics.JobProcessingDuration.Observe(time.Since(start).Seconds())
	*backoff = 200 * time.Millisecond

	if result == outcomeStored || result == outcomeDuplicate {
		p.ready.Store(true)
	}
	return true
}

// processJob runs one job through extract → normalize → dedup → enrich →
// store. The reason string is only meaningful for retry and drop outcomes.
func (p *Pipeline) processJob(ctx context.Context, job domain.QueueJob) (outcome, string) {
	content := selectContent(job)
	if len(content) == 0 {
		p.logger.Warn("job has no extractable content, dropping",
			"job_id", job.JobID, "source", job.Source)
		p.metrics.JobsProcessed.WithLabelValues("dropped").Inc()
		return outcomeDropped, "no extractable content"
	}

	raw := domain.Normalize(job.Source, content)

	seen, err := p.gate.Seen(ctx, raw.EventID)
	if err != nil {
		p.logger.Warn("dedup check failed", "job_id", job.JobID, "event_id", raw.EventID, "error", err)
		return outcomeRetry, "dedup check: " + err.Error()
	}
	if seen {
		p.logger.Debug("duplicate event, skipping", "job_id", job.JobID, "event_id", raw.EventID)
		p.metrics.DedupHits.Inc()
		p.metrics.JobsProcessed.WithLabelValues("duplicate").Inc()
		return outcomeDuplicate, ""
	}

	event := domain.Enrich(ctx, raw, p.geocoder, p.logger)

	if err := p.store.Upsert(ctx, event); err != nil {
		p.logger.Warn("store forward failed", "job_id", job.JobID, "event_id", event.ID, "error", err)
		return outcomeRetry, "store forward: " + err.Error()
	}
	p.gate.Mark(ctx, event.ID)

	p.logger.Info("event stored",
		"job_id", job.JobID,
		"event_id", event.ID,
		"type", event.Type,
		"severity_score", event.SeverityScore,
		"region", event.Region,
	)
	p.metrics.JobsProcessed.WithLabelValues("stored").Inc()
	return outcomeStored, ""
}

// handleRetry re-enqueues a failed job with an incremented attempt count, or
// dead-letters it once attempts reach the ceiling. Returns false if the job
// could not be handed back to the queue at all.
func (p *Pipeline) handleRetry(ctx context.Context, job domain.QueueJob, reason string) bool {
	job.Attempts++
	if job.Attempts >= p.maxAttempts {
		if err := p.requeuer.DeadLetter(ctx, job, reason); err != nil {
			p.logger.Error("dead-letter failed", "job_id", job.JobID, "error", err)
			return false
		}
		p.metrics.JobsProcessed.WithLabelValues("deadlettered").Inc()
		return true
	}

	if err := p.requeuer.Requeue(ctx, job); err != nil {
		p.logger.Error("requeue failed", "job_id", job.JobID, "error", err)
		return false
	}
	p.logger.Info("job requeued", "job_id", job.JobID, "attempt", job.Attempts, "reason", reason)
	p.metrics.JobsProcessed.WithLabelValues("retried").Inc()
	return true
}

// commit acknowledges the message so the broker does not redeliver it.
func (p *Pipeline) commit(ctx context.Context, msg domain.JobMessage) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		p.logger.Warn("commit failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
