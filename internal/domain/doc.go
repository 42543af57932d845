// Package domain models disaster-alert events delivered as inbound email.
//
// # Data Sources
//
// Alerts originate from public disaster feeds that deliver email
// notifications, relayed to this service as provider webhooks:
//
//   - GDACS (Global Disaster Alert and Coordination System): XML alert
//     documents, identified by an <eventid> element, optionally qualified by
//     an <episodeid>.
//   - USGS (United States Geological Survey): GeoJSON earthquake features
//     with a top-level "id", magnitude under "properties.mag", and
//     coordinates under "geometry.coordinates" in [lon, lat, depth] order.
//   - NOAA (National Oceanic and Atmospheric Administration): flat JSON
//     bulletins with an "id" field.
//
// Anything else is treated as an "other" source and normalized on a
// best-effort basis from common field aliases.
//
// # ID Derivation
//
// Event IDs come from the source's own identifier field when one exists
// (see the per-source table in normalize.go). When no stable identifier is
// present, the ID is a SHA-256 hash of the payload bytes. Both derivations
// are pure functions of provider-supplied data, never the wall clock, so
// a webhook redelivered by the provider or replayed by the internal queue
// produces the same ID and converges onto one stored row via the storage
// boundary's idempotent upsert.
//
// # Severity
//
// severityScore maps a reported numeric magnitude to an integer in [0, 10]
// by rounding and clamping. Events without a magnitude score 0. The linear
// mapping is a placeholder policy; source-specific curves can replace the
// body of severityScore without touching callers.
//
// # Categories
//
// Categories come from a controlled vocabulary keyed on the normalized
// event type (seismic, hydrological, meteorological, climatological,
// geophysical). Unrecognized types yield an empty category list.
package domain
