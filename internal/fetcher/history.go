package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const attrUnitOfMeasurement = "unit_of_measurement"

// HistorySource reads entity history from a Home Assistant instance via the
// history API, authenticated with a long-lived access token.
type HistorySource struct {
	baseURL string
	token   string
	client  *Client
	logger  zerolog.Logger
}

// NewHistorySource constructs a Home Assistant history adapter.
func NewHistorySource(baseURL, token string, client *Client, logger zerolog.Logger) *HistorySource {
	return &HistorySource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		logger:  logger.With().Str("component", "history_source").Logger(),
	}
}

type historyEntry struct {
	State       string         `json:"state"`
	LastUpdated string         `json:"last_updated"`
	Attributes  map[string]any `json:"attributes"`
}

// FetchSamples returns the entity's history within [start, end). The history
// API groups entries per entity; groups are flattened into one sequence.
// States reported in kW are normalized to W. An empty entity id
// short-circuits to nil without touching the network.
func (h *HistorySource) FetchSamples(ctx context.Context, sensor string, start, end time.Time) []Sample {
	if sensor == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/api/history/period/%s",
		h.baseURL, url.PathEscape(start.UTC().Format(time.RFC3339)))
	params := url.Values{
		"filter_entity_id": {sensor},
		"end_time":         {end.UTC().Format(time.RFC3339)},
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+h.token)

	body, ok := h.client.Get(ctx, endpoint, params, headers)
	if !ok {
		return nil
	}

	var groups [][]historyEntry
	if err := json.Unmarshal(body, &groups); err != nil {
		h.logger.Error().Err(err).
			Str("entity", sensor).
			Time("start", start).
			Time("end", end).
			Msg("failed to decode history response")
		return nil
	}

	var samples []Sample
	for _, group := range groups {
		for _, entry := range group {
			ts, err := parseHistoryTimestamp(entry.LastUpdated)
			if err != nil {
				h.logger.Debug().Err(err).
					Str("entity", sensor).
					Str("last_updated", entry.LastUpdated).
					Msg("skipping history entry with unparseable timestamp")
				continue
			}
			samples = append(samples, Sample{
				State:       entry.State,
				LastUpdated: ts,
				Attributes:  entry.Attributes,
			})
		}
	}

	normalizeKilowatts(samples)
	sortSamples(samples)
	return samples
}

// HistoryURL returns the browsable history view for the entity and window.
func (h *HistorySource) HistoryURL(sensor string, start, end time.Time) string {
	if sensor == "" {
		return ""
	}
	return fmt.Sprintf("%s/history?entity_id=%s&start_date=%s&end_date=%s",
		h.baseURL,
		url.QueryEscape(sensor),
		url.QueryEscape(start.UTC().Format(time.RFC3339)),
		url.QueryEscape(end.UTC().Format(time.RFC3339)),
	)
}

// normalizeKilowatts converts every parseable state to watts when the first
// sample reports its unit as kW. Unparseable states (gap markers and garbage)
// are left untouched so the rest of the batch survives.
func normalizeKilowatts(samples []Sample) {
	if len(samples) == 0 {
		return
	}
	unit, _ := samples[0].Attributes[attrUnitOfMeasurement].(string)
	if unit != "kW" {
		return
	}
	for i := range samples {
		value, err := strconv.ParseFloat(strings.TrimSpace(samples[i].State), 64)
		if err != nil {
			continue
		}
		samples[i].State = strconv.FormatFloat(value*1000, 'f', -1, 64)
	}
}

func parseHistoryTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

var _ SampleSource = (*HistorySource)(nil)
