package profile

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Fallback levels recorded on a composed forecast. Empty means the weekday
// composition succeeded on historical data.
const (
	FallbackYesterday = "yesterday"
	FallbackDefault   = "default"
)

// DayProfileBuilder yields per-interval energy values for one day window.
type DayProfileBuilder interface {
	BuildDayProfile(ctx context.Context, start, end time.Time) []float64
	TimeFrameBase() int
	Kind() string
}

// Composition is a composed two-day forecast plus data-quality metadata.
type Composition struct {
	// Energy holds Wh per interval covering today and tomorrow.
	Energy []float64
	// Fallback names the fallback level that produced Energy, if any.
	Fallback string
	// ZeroIntervals counts intervals that composed to zero.
	ZeroIntervals int
}

// Degraded reports whether the composition had to fall back.
func (c Composition) Degraded() bool {
	return c.Fallback != ""
}

// Forecaster synthesizes a two-day load forecast from same-weekday
// historical data. Stateless apart from configuration; safe for concurrent
// use.
type Forecaster struct {
	builder  DayProfileBuilder
	location *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

// NewForecaster constructs a weekday forecaster. A nil location defaults to
// UTC.
func NewForecaster(builder DayProfileBuilder, location *time.Location, logger zerolog.Logger) *Forecaster {
	if location == nil {
		location = time.UTC
	}
	return &Forecaster{
		builder:  builder,
		location: location,
		logger:   logger.With().Str("component", "forecaster").Logger(),
		now:      time.Now,
	}
}

// ComposeWeekdayProfile composes the two-day forecast relative to now and
// returns only the energy series.
func (f *Forecaster) ComposeWeekdayProfile(ctx context.Context) []float64 {
	return f.Compose(ctx).Energy
}

// Compose composes the forecast relative to now.
func (f *Forecaster) Compose(ctx context.Context) Composition {
	return f.ComposeAt(ctx, f.now())
}

// ComposeAt composes the two-day forecast relative to the given reference
// time. The first half covers today using the profiles of the same weekday
// one and two weeks back; the second half covers tomorrow using their
// next-day counterparts. A historical series only participates when it is
// present, full-length, and not entirely zero; averaging real data against
// zeros would halve the forecast. When nothing usable remains the fallback
// chain serves yesterday's profile doubled, then the static default.
func (f *Forecaster) ComposeAt(ctx context.Context, ref time.Time) Composition {
	midnight := midnightOf(ref.In(f.location))
	expected := 86400 / f.builder.TimeFrameBase()

	today := f.composeHalf(
		f.dayProfile(ctx, midnight, -7),
		f.dayProfile(ctx, midnight, -14),
		expected,
	)
	tomorrow := f.composeHalf(
		f.dayProfile(ctx, midnight, -6),
		f.dayProfile(ctx, midnight, -13),
		expected,
	)

	energy := make([]float64, 0, 2*expected)
	energy = append(energy, today...)
	energy = append(energy, tomorrow...)

	if len(energy) == 0 || allZero(energy) {
		return f.fallback(ctx, midnight, expected)
	}

	return Composition{Energy: energy, ZeroIntervals: countZeros(energy)}
}

// GetLoadProfile is the top-level entry point consumed by the optimizer. The
// default source serves the static pattern from the requested start; sensor
// sources serve the weekday composition, trimmed when a shorter duration is
// requested. The result is never empty.
func (f *Forecaster) GetLoadProfile(ctx context.Context, hours int, start time.Time) []float64 {
	frame := f.builder.TimeFrameBase()
	count := hours * 3600 / frame
	if count <= 0 {
		return nil
	}

	if f.builder.Kind() == SourceDefault {
		return staticProfileSlice(start.In(f.location), frame, count)
	}

	energy := f.Compose(ctx).Energy
	if len(energy) > count {
		return energy[:count]
	}
	return energy
}

func (f *Forecaster) dayProfile(ctx context.Context, midnight time.Time, daysBack int) []float64 {
	start := midnight.AddDate(0, 0, daysBack)
	return f.builder.BuildDayProfile(ctx, start, start.AddDate(0, 0, 1))
}

// composeHalf merges the one-week-back and two-week-back profiles for one
// day. Averaging happens only when both series are usable.
func (f *Forecaster) composeHalf(oneWeek, twoWeeks []float64, expected int) []float64 {
	useOne := usable(oneWeek, expected)
	useTwo := usable(twoWeeks, expected)

	half := make([]float64, expected)
	for i := 0; i < expected; i++ {
		switch {
		case useOne && useTwo:
			half[i] = round4((oneWeek[i] + twoWeeks[i]) / 2)
		case useOne:
			half[i] = oneWeek[i]
		case useTwo:
			half[i] = twoWeeks[i]
		}
	}
	return half
}

func (f *Forecaster) fallback(ctx context.Context, midnight time.Time, expected int) Composition {
	f.logger.Info().Msg("no usable same-weekday history; trying yesterday's profile")

	yesterday := f.builder.BuildDayProfile(ctx, midnight.AddDate(0, 0, -1), midnight)
	if usable(yesterday, expected) {
		energy := make([]float64, 0, 2*expected)
		energy = append(energy, yesterday...)
		energy = append(energy, yesterday...)
		return Composition{
			Energy:        energy,
			Fallback:      FallbackYesterday,
			ZeroIntervals: countZeros(energy),
		}
	}

	f.logger.Info().Msg("no historical data yet (new installation?); serving the static default profile")
	energy := staticProfileSlice(midnight, f.builder.TimeFrameBase(), 2*expected)
	return Composition{Energy: energy, Fallback: FallbackDefault}
}

func usable(profile []float64, expected int) bool {
	return len(profile) >= expected && !allZero(profile)
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}

func countZeros(values []float64) int {
	zeros := 0
	for _, v := range values {
		if v == 0 {
			zeros++
		}
	}
	return zeros
}

func midnightOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

var _ DayProfileBuilder = (*DayBuilder)(nil)
