package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FlatJSON(t *testing.T) {
	payload := []byte(`{"eventId":"e1","type":"flood","timestamp":"2024-04-26T15:10:00Z","latitude":10.5,"longitude":20.25,"magnitude":5,"description":"River flooding"}`)

	raw := Normalize(SourceOther, payload)

	assert.Equal(t, "e1", raw.EventID)
	assert.Equal(t, SourceOther, raw.Source)
	assert.Equal(t, "flood", raw.Payload.Type)
	assert.Equal(t, "2024-04-26T15:10:00Z", raw.Payload.Timestamp)
	assert.Equal(t, 10.5, raw.Payload.Latitude)
	assert.Equal(t, 20.25, raw.Payload.Longitude)
	require.NotNil(t, raw.Payload.Magnitude)
	assert.Equal(t, 5.0, *raw.Payload.Magnitude)
	assert.Equal(t, "River flooding", raw.Payload.Description)
}

func TestNormalize_USGSGeoJSON(t *testing.T) {
	payload := []byte(`{
		"type": "Feature",
		"id": "us7000abcd",
		"properties": {
			"mag": 6.1,
			"place": "42 km SW of Ashkāsham, Afghanistan",
			"time": 1714140600000,
			"type": "earthquake"
		},
		"geometry": {
			"type": "Point",
			"coordinates": [71.396, 36.533, 187.6]
		}
	}`)

	raw := Normalize(SourceUSGS, payload)

	assert.Equal(t, "us7000abcd", raw.EventID)
	assert.Equal(t, "earthquake", raw.Payload.Type)
	assert.Equal(t, 36.533, raw.Payload.Latitude)
	assert.Equal(t, 71.396, raw.Payload.Longitude)
	require.NotNil(t, raw.Payload.Magnitude)
	assert.Equal(t, 6.1, *raw.Payload.Magnitude)
	assert.Equal(t, "2024-04-26T14:10:00Z", raw.Payload.Timestamp)
	assert.Equal(t, "42 km SW of Ashkāsham, Afghanistan", raw.Payload.Description)
}

func TestNormalize_GDACSXML(t *testing.T) {
	payload := []byte(`<alert>
		<eventid>1016833</eventid>
		<episodeid>2</episodeid>
		<eventtype>EQ</eventtype>
		<fromdate>2024-04-26T15:10:00Z</fromdate>
		<title>Green earthquake alert</title>
		<description>Magnitude 5.4 earthquake in Indonesia</description>
		<point>-7.25 112.75</point>
		<severity value="5.4"/>
	</alert>`)

	raw := Normalize(SourceGDACS, payload)

	assert.Equal(t, "1016833-2", raw.EventID)
	assert.Equal(t, "earthquake", raw.Payload.Type)
	assert.Equal(t, "2024-04-26T15:10:00Z", raw.Payload.Timestamp)
	assert.Equal(t, -7.25, raw.Payload.Latitude)
	assert.Equal(t, 112.75, raw.Payload.Longitude)
	require.NotNil(t, raw.Payload.Magnitude)
	assert.Equal(t, 5.4, *raw.Payload.Magnitude)
	assert.Equal(t, "Magnitude 5.4 earthquake in Indonesia", raw.Payload.Description)
}

func TestNormalize_QuotedNumbers(t *testing.T) {
	payload := []byte(`{"id":"n1","type":"storm","lat":"31.02","lon":"-98.44","mag":"2.5"}`)

	raw := Normalize(SourceNOAA, payload)

	assert.Equal(t, "n1", raw.EventID)
	assert.Equal(t, 31.02, raw.Payload.Latitude)
	assert.Equal(t, -98.44, raw.Payload.Longitude)
	require.NotNil(t, raw.Payload.Magnitude)
	assert.Equal(t, 2.5, *raw.Payload.Magnitude)
}

func TestNormalize_MissingIdentifierFallsBackToHash(t *testing.T) {
	payload := []byte(`{"type":"flood","latitude":1,"longitude":2}`)

	first := Normalize(SourceGDACS, payload)
	second := Normalize(SourceGDACS, payload)

	assert.NotEmpty(t, first.EventID)
	assert.True(t, len(first.EventID) > len("gdacs-"))
	assert.Equal(t, first.EventID, second.EventID, "hash-derived IDs must be deterministic")

	other := Normalize(SourceGDACS, []byte(`{"type":"flood","latitude":1,"longitude":3}`))
	assert.NotEqual(t, first.EventID, other.EventID)
}

func TestNormalize_UnparseablePayload(t *testing.T) {
	cases := map[string][]byte{
		"garbage json": []byte(`{not json`),
		"garbage xml":  []byte(`<unclosed`),
		"empty":        nil,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			raw := Normalize(SourceOther, payload)
			assert.NotEmpty(t, raw.EventID)
			assert.Equal(t, AlertDoc{}, raw.Payload)

			// Same bytes, same identity.
			again := Normalize(SourceOther, payload)
			assert.Equal(t, raw.EventID, again.EventID)
		})
	}
}

func TestNormalizeEventType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"EQ", "earthquake"},
		{"TC", "cyclone"},
		{"FL", "flood"},
		{"VO", "volcano"},
		{"DR", "drought"},
		{"WF", "wildfire"},
		{"TS", "tsunami"},
		{"Earthquake", "earthquake"},
		{" flood ", "flood"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeEventType(tt.in), "input %q", tt.in)
	}
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, SourceGDACS, ParseSource("gdacs"))
	assert.Equal(t, SourceUSGS, ParseSource(" USGS "))
	assert.Equal(t, SourceNOAA, ParseSource("NOAA"))
	assert.Equal(t, SourceOther, ParseSource("reliefweb"))
	assert.Equal(t, SourceOther, ParseSource(""))
}
