package domain

import (
	"context"
	"log/slog"
)

// RegionUnknown is the region recorded when reverse geocoding is disabled,
// fails, or returns no usable name. It is a value, not an error: an event
// with an unknown region is still stored.
const RegionUnknown = "Unknown"

// lookupRegion resolves coordinates to a place name, degrading to
// RegionUnknown on any geocoder failure. The place name is preferred; the
// formatted address (which carries the administrative area) is the fallback
// when the provider returns no primary name.
func lookupRegion(ctx context.Context, eventID string, lat, lon float64, geocoder Geocoder, logger *slog.Logger) string {
	if geocoder == nil {
		return RegionUnknown
	}

	result, err := geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"event_id", eventID,
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return RegionUnknown
	}

	if result.PlaceName != "" {
		return result.PlaceName
	}
	if result.FormattedAddress != "" {
		return result.FormattedAddress
	}
	return RegionUnknown
}
