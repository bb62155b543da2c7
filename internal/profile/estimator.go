package profile

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"loadcast/internal/fetcher"
)

// Gap markers emitted by home-automation backends for sensors without a
// current value. They are skipped, never parsed.
const (
	stateUnavailable = "unavailable"
	stateUnknown     = "unknown"
)

// Estimator reduces the irregular samples covering one interval into a
// single time-weighted average power value in watts.
type Estimator struct {
	logger zerolog.Logger
}

// NewEstimator constructs an interval estimator.
func NewEstimator(logger zerolog.Logger) *Estimator {
	return &Estimator{logger: logger.With().Str("component", "estimator").Logger()}
}

// EstimateIntervalPower computes the time-weighted mean power over the
// samples of one interval. Samples are expected in ascending chronological
// order (index 0 oldest); the input is re-sorted defensively since the
// weighting silently degrades on out-of-order data. Each consecutive pair
// contributes the earlier sample's power over the pair's duration; if the
// newest usable sample predates intervalEnd its value is extended over the
// remaining gap. A zero intervalEnd defaults to the first sample's timestamp
// plus fallbackDuration.
//
// The result is rounded to 4 decimals. Missing, unavailable, or unparseable
// data is logged and skipped; with no usable data at all the result is 0.0.
// historyURL, when non-empty, is attached to skip logs as browsable context.
func (e *Estimator) EstimateIntervalPower(samples []fetcher.Sample, intervalEnd time.Time, fallbackDuration time.Duration, historyURL string) float64 {
	if len(samples) == 0 {
		return 0
	}

	ordered := make([]fetcher.Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LastUpdated.Before(ordered[j].LastUpdated)
	})

	var energy, totalDuration float64
	for i := 0; i+1 < len(ordered); i++ {
		earlier, later := ordered[i], ordered[i+1]
		if isGapState(earlier.State) || isGapState(later.State) {
			continue
		}

		value, err := parseState(earlier.State)
		if err == nil {
			_, err = parseState(later.State)
		}
		if err != nil {
			evt := e.logger.Info().
				Str("state", earlier.State).
				Str("next_state", later.State).
				Time("last_updated", earlier.LastUpdated)
			if historyURL != "" {
				evt = evt.Str("history_url", historyURL)
			}
			evt.Msg("skipping sample pair with non-numeric state")
			continue
		}

		duration := later.LastUpdated.Sub(earlier.LastUpdated).Seconds()
		energy += value * duration
		totalDuration += duration
	}

	end := intervalEnd
	if end.IsZero() {
		end = ordered[0].LastUpdated.Add(fallbackDuration)
	}

	if totalDuration > 0 {
		if last, ok := newestUsable(ordered); ok && last.LastUpdated.Before(end) {
			value, err := parseState(last.State)
			if err == nil {
				gap := end.Sub(last.LastUpdated).Seconds()
				energy += value * gap
				totalDuration += gap
			}
		}
	}

	if totalDuration <= 0 {
		return 0
	}
	return round4(energy / totalDuration)
}

// newestUsable walks backwards past trailing gap markers so they cannot
// suppress the edge extension.
func newestUsable(ordered []fetcher.Sample) (fetcher.Sample, bool) {
	for i := len(ordered) - 1; i >= 0; i-- {
		if !isGapState(ordered[i].State) {
			return ordered[i], true
		}
	}
	return fetcher.Sample{}, false
}

func isGapState(state string) bool {
	return state == "" || state == stateUnavailable || state == stateUnknown
}

func parseState(state string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(state), 64)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
