package domain

import (
	"context"
	"strings"
	"time"
)

// Source identifies the upstream alert feed that originated an email.
type Source string

const (
	SourceGDACS Source = "GDACS"
	SourceUSGS  Source = "USGS"
	SourceNOAA  Source = "NOAA"
	SourceOther Source = "other"
)

// ParseSource maps a free-form source label to a known Source.
// Unrecognized labels map to SourceOther.
func ParseSource(s string) Source {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GDACS":
		return SourceGDACS
	case "USGS":
		return SourceUSGS
	case "NOAA":
		return SourceNOAA
	default:
		return SourceOther
	}
}

// AlertDoc holds the alert fields the pipeline consumes, pulled out of
// source-specific JSON/XML schemas by the normalizer. Zero values mean the
// source did not report the field.
type AlertDoc struct {
	Type        string
	Timestamp   string // ISO-8601 as reported by the source
	Latitude    float64
	Longitude   float64
	Magnitude   *float64
	Description string
}

// RawEvent is the provider-agnostic pre-enrichment record. EventID is a
// deterministic function of the payload, never of the wall clock, so retried
// deliveries of the same alert converge on the same identity.
type RawEvent struct {
	EventID string
	Source  Source
	Payload AlertDoc
}

// Event is the canonical alert record handed to the storage boundary.
// Exactly one Event exists per distinct ID; the store's upsert is an
// insert-or-replace keyed on ID.
type Event struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Timestamp     string   `json:"timestamp"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Region        string   `json:"region"`
	Magnitude     *float64 `json:"magnitude,omitempty"`
	SeverityScore int      `json:"severityScore"`
	Categories    []string `json:"categories"`
	Description   string   `json:"description"`
}

// QueueJob is the durable unit of deferred work wrapping an accepted webhook
// payload. Attempts counts processing failures; jobs exceeding the attempt
// ceiling move to the dead-letter topic rather than retrying forever.
type QueueJob struct {
	JobID      string    `json:"jobId"`
	Provider   string    `json:"provider"`
	Source     Source    `json:"source"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
	Payload    []byte    `json:"payload"`
}

// JobMessage is a dequeued job together with its queue position and a commit
// callback. Committing acknowledges the message so it is not redelivered.
type JobMessage struct {
	Job       QueueJob
	Topic     string
	Partition int
	Offset    int64
	Commit    func(ctx context.Context) error
}
