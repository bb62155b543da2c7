package fetcher

import (
	"context"
	"sort"
	"time"
)

// Sample is one timestamped sensor reading. State carries the raw value
// string as reported by the backend; the gap markers "unavailable" and
// "unknown" must be skipped by consumers, never parsed.
type Sample struct {
	State       string
	LastUpdated time.Time
	Attributes  map[string]any
}

// SampleSource fetches historical samples for one sensor over a half-open
// time window [start, end). Implementations never fail: on any transport or
// payload error they log and return nil. Returned samples are sorted in
// ascending chronological order (index 0 oldest).
type SampleSource interface {
	FetchSamples(ctx context.Context, sensor string, start, end time.Time) []Sample
	// HistoryURL returns a browsable URL for the sensor's history over the
	// window, used as diagnostic context in data-quality logs.
	HistoryURL(sensor string, start, end time.Time) string
}

func sortSamples(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].LastUpdated.Before(samples[j].LastUpdated)
	})
}
