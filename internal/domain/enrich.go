package domain

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// categoryVocabulary is the controlled tag vocabulary keyed on normalized
// event type. Types outside the table carry no categories.
var categoryVocabulary = map[string][]string{
	"earthquake": {"seismic", "geophysical"},
	"tsunami":    {"hydrological", "seismic"},
	"flood":      {"hydrological"},
	"cyclone":    {"meteorological"},
	"storm":      {"meteorological"},
	"tornado":    {"meteorological"},
	"wildfire":   {"climatological"},
	"drought":    {"climatological"},
	"volcano":    {"geophysical"},
	"landslide":  {"geophysical"},
}

// Enrich derives the canonical Event from a RawEvent. The three derivations
// (region, severity, categories) are independent: a geocoder outage degrades
// the region to RegionUnknown but never fails the event.
func Enrich(ctx context.Context, raw RawEvent, geocoder Geocoder, logger *slog.Logger) Event {
	doc := raw.Payload

	eventType := doc.Type
	if eventType == "" {
		eventType = "unknown"
	}

	timestamp := doc.Timestamp
	if timestamp == "" {
		timestamp = clock.Now().UTC().Format(time.RFC3339)
	}

	return Event{
		ID:            raw.EventID,
		Type:          eventType,
		Timestamp:     timestamp,
		Latitude:      doc.Latitude,
		Longitude:     doc.Longitude,
		Region:        lookupRegion(ctx, raw.EventID, doc.Latitude, doc.Longitude, geocoder, logger),
		Magnitude:     doc.Magnitude,
		SeverityScore: severityScore(doc.Magnitude),
		Categories:    categorize(eventType),
		Description:   doc.Description,
	}
}

// severityScore maps a reported magnitude onto the 0–10 scale by rounding
// and clamping. Events without a magnitude score 0. The linear mapping is a
// deliberate simplification; source-specific curves slot in here.
func severityScore(magnitude *float64) int {
	if magnitude == nil {
		return 0
	}
	score := int(math.Round(*magnitude))
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// categorize returns the vocabulary tags for an event type. The returned
// slice is a copy so callers cannot mutate the vocabulary.
func categorize(eventType string) []string {
	tags, ok := categoryVocabulary[eventType]
	if !ok {
		return []string{}
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
