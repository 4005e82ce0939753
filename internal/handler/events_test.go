package handler

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventFilter_DefaultsToNoFilters(t *testing.T) {
	filter, err := parseEventFilter(url.Values{})
	require.NoError(t, err)
	assert.Empty(t, filter.Tournament)
	assert.Empty(t, filter.Countries)
	assert.Nil(t, filter.KickoffFrom)
	assert.Nil(t, filter.KickoffTo)
	assert.False(t, filter.IncludeStarted)
}

func TestParseEventFilter_ParsesAllFourFilters(t *testing.T) {
	q := url.Values{
		"tournament":      {"Premier League"},
		"country":         {"NG,KE", "ZA"},
		"kickoff_from":    {"2026-08-01T00:00:00Z"},
		"kickoff_to":      {"2026-08-02T00:00:00Z"},
		"include_started": {"true"},
	}
	filter, err := parseEventFilter(q)
	require.NoError(t, err)
	assert.Equal(t, "Premier League", filter.Tournament)
	assert.ElementsMatch(t, []string{"NG", "KE", "ZA"}, filter.Countries)
	require.NotNil(t, filter.KickoffFrom)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), filter.KickoffFrom.UTC())
	require.NotNil(t, filter.KickoffTo)
	assert.True(t, filter.IncludeStarted)
}

func TestParseEventFilter_InvalidKickoffFromReturnsError(t *testing.T) {
	_, err := parseEventFilter(url.Values{"kickoff_from": {"not-a-time"}})
	assert.Error(t, err)
}

func TestParseEventFilter_InvalidIncludeStartedReturnsError(t *testing.T) {
	_, err := parseEventFilter(url.Values{"include_started": {"maybe"}})
	assert.Error(t, err)
}
