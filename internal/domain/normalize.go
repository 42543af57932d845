package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

// sourceIDFields maps each source to its authoritative identifier field in
// flat JSON payloads. The mapping is confirmed per integration; unlisted
// sources and payloads without an identifier fall back to a content hash.
var sourceIDFields = map[Source][]string{
	SourceGDACS: {"eventid", "eventId"},
	SourceUSGS:  {"id", "eventId"},
	SourceNOAA:  {"id", "eventId"},
	SourceOther: {"eventId", "event_id", "id"},
}

// Normalize maps a source-specific payload into a provider-agnostic RawEvent.
// A document starting with '<' is parsed as XML, anything else as JSON.
// Unparseable payloads produce a RawEvent with an empty AlertDoc and a
// hash-derived ID rather than an error; the decision to drop or store a
// degraded event belongs to the pipeline, not the parser.
func Normalize(source Source, payload []byte) RawEvent {
	trimmed := bytes.TrimSpace(payload)

	var (
		doc AlertDoc
		id  string
	)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		doc, id = parseXMLAlert(trimmed)
	} else {
		doc, id = parseJSONAlert(source, trimmed)
	}

	if id == "" {
		id = contentHash(source, trimmed)
	}

	return RawEvent{
		EventID: id,
		Source:  source,
		Payload: doc,
	}
}

// parseJSONAlert extracts alert fields from a JSON document. It understands
// the USGS GeoJSON Feature shape and otherwise reads flat documents through
// a table of common field aliases.
func parseJSONAlert(source Source, payload []byte) (AlertDoc, string) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return AlertDoc{}, ""
	}

	if props, ok := m["properties"].(map[string]any); ok {
		return parseGeoJSONFeature(m, props)
	}

	doc := AlertDoc{
		Type:        normalizeEventType(lookupString(m, "type", "eventtype", "event_type")),
		Timestamp:   lookupString(m, "timestamp", "time", "fromdate", "date"),
		Latitude:    lookupFloat(m, "latitude", "lat"),
		Longitude:   lookupFloat(m, "longitude", "lon", "lng"),
		Description: lookupString(m, "description", "title", "summary", "headline"),
	}
	if v, ok := lookupNumber(m, "magnitude", "mag"); ok {
		doc.Magnitude = &v
	}

	id := lookupString(m, sourceIDFields[source]...)
	if id == "" {
		id = lookupString(m, sourceIDFields[SourceOther]...)
	}
	return doc, id
}

// parseGeoJSONFeature handles the USGS earthquake feed shape: magnitude and
// metadata under "properties", coordinates under "geometry" in [lon, lat]
// order, and the stable identifier at the feature's top level.
func parseGeoJSONFeature(m, props map[string]any) (AlertDoc, string) {
	doc := AlertDoc{
		Type:        normalizeEventType(lookupString(props, "type", "eventtype")),
		Timestamp:   geoJSONTime(props),
		Description: lookupString(props, "place", "title", "description"),
	}
	if v, ok := lookupNumber(props, "mag", "magnitude"); ok {
		doc.Magnitude = &v
	}
	if geom, ok := m["geometry"].(map[string]any); ok {
		if coords, ok := geom["coordinates"].([]any); ok && len(coords) >= 2 {
			doc.Longitude = toFloat(coords[0])
			doc.Latitude = toFloat(coords[1])
		}
	}

	id := lookupString(m, "id")
	if id == "" {
		id = lookupString(props, "id", "code")
	}
	return doc, id
}

// geoJSONTime renders the USGS epoch-milliseconds "time" property as
// RFC 3339. String timestamps pass through unchanged.
func geoJSONTime(props map[string]any) string {
	switch v := props["time"].(type) {
	case string:
		return v
	case float64:
		return time.UnixMilli(int64(v)).UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// xmlAlert matches GDACS-style alert documents. encoding/xml matches on
// local names, so namespaced elements like <gdacs:eventid> bind too.
type xmlAlert struct {
	EventID     string `xml:"eventid"`
	EpisodeID   string `xml:"episodeid"`
	EventType   string `xml:"eventtype"`
	FromDate    string `xml:"fromdate"`
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Point       string `xml:"point"` // georss "lat lon" pair
	Latitude    string `xml:"latitude"`
	Longitude   string `xml:"longitude"`
	Magnitude   string `xml:"magnitude"`
	Severity    struct {
		Value string `xml:"value,attr"`
	} `xml:"severity"`
}

func parseXMLAlert(payload []byte) (AlertDoc, string) {
	var alert xmlAlert
	if err := xml.Unmarshal(payload, &alert); err != nil {
		return AlertDoc{}, ""
	}

	lat := parseFloatOrZero(alert.Latitude)
	lon := parseFloatOrZero(alert.Longitude)
	if alert.Point != "" {
		if fields := strings.Fields(alert.Point); len(fields) == 2 {
			lat = parseFloatOrZero(fields[0])
			lon = parseFloatOrZero(fields[1])
		}
	}

	doc := AlertDoc{
		Type:        normalizeEventType(alert.EventType),
		Timestamp:   strings.TrimSpace(alert.FromDate),
		Latitude:    lat,
		Longitude:   lon,
		Description: firstNonEmpty(strings.TrimSpace(alert.Description), strings.TrimSpace(alert.Title)),
	}

	rawMag := firstNonEmpty(strings.TrimSpace(alert.Magnitude), strings.TrimSpace(alert.Severity.Value))
	if rawMag != "" {
		if v, err := strconv.ParseFloat(rawMag, 64); err == nil {
			doc.Magnitude = &v
		}
	}

	id := strings.TrimSpace(alert.EventID)
	if id != "" && strings.TrimSpace(alert.EpisodeID) != "" {
		id = id + "-" + strings.TrimSpace(alert.EpisodeID)
	}
	return doc, id
}

// normalizeEventType maps source type codes onto the canonical vocabulary.
// GDACS uses two-letter codes; other feeds spell the type out.
func normalizeEventType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "eq":
		return "earthquake"
	case "tc":
		return "cyclone"
	case "fl":
		return "flood"
	case "vo":
		return "volcano"
	case "dr":
		return "drought"
	case "wf":
		return "wildfire"
	case "ts":
		return "tsunami"
	default:
		return value
	}
}

// contentHash produces a deterministic fallback ID from the payload bytes.
// Hash-derived IDs keep replays idempotent when a source supplies no stable
// identifier of its own; wall-clock IDs would break that.
func contentHash(source Source, payload []byte) string {
	hash := sha256.Sum256(payload)
	short := hex.EncodeToString(hash[:8])
	prefix := strings.ToLower(string(source))
	if prefix == "" {
		return short
	}
	return prefix + "-" + short
}

func lookupString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func lookupFloat(m map[string]any, keys ...string) float64 {
	v, _ := lookupNumber(m, keys...)
	return v
}

// lookupNumber accepts both JSON numbers and numeric strings, since feeds
// are inconsistent about quoting coordinates and magnitudes.
func lookupNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
