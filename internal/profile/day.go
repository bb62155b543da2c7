package profile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"loadcast/internal/fetcher"
)

// Source kinds understood by the day profile builder.
const (
	SourceDefault       = "default"
	SourceOpenHAB       = "openhab"
	SourceHomeAssistant = "homeassistant"
)

// defaultHourlyProfile is the static fallback consumption pattern in watts:
// 24 hourly values covering a typical household day, repeated for two days.
// Served when no historical data exists yet (new installation) or when no
// data source is configured.
var defaultHourlyProfile = []float64{
	200, 200, 200, 200, 200, 300, 350, 400, 350, 300, 300, 550,
	450, 400, 300, 300, 400, 450, 500, 500, 500, 400, 300, 200,
	200, 200, 200, 200, 200, 300, 350, 400, 350, 300, 300, 550,
	450, 400, 300, 300, 400, 450, 500, 500, 500, 400, 300, 200,
}

// DayBuilderOptions parameterise the day profile builder.
type DayBuilderOptions struct {
	// Kind selects the data source: SourceDefault, SourceOpenHAB, or
	// SourceHomeAssistant.
	Kind string
	// Source supplies historical samples; ignored for SourceDefault.
	Source fetcher.SampleSource
	// LoadSensor is the gross household load sensor id.
	LoadSensor string
	// CarChargeLoadSensor and AdditionalLoad1Sensor identify controllable
	// sub-loads subtracted from the gross load. Either may be empty.
	CarChargeLoadSensor   string
	AdditionalLoad1Sensor string
	// TimeFrameBase is the interval length in seconds.
	TimeFrameBase int
}

// DayBuilder slices a day into fixed-size intervals and emits per-interval
// net energy values in Wh.
type DayBuilder struct {
	opts      DayBuilderOptions
	estimator *Estimator
	logger    zerolog.Logger
}

// NewDayBuilder constructs a day profile builder.
func NewDayBuilder(opts DayBuilderOptions, logger zerolog.Logger) *DayBuilder {
	if opts.TimeFrameBase <= 0 {
		opts.TimeFrameBase = 3600
	}
	return &DayBuilder{
		opts:      opts,
		estimator: NewEstimator(logger),
		logger:    logger.With().Str("component", "day_builder").Logger(),
	}
}

// TimeFrameBase returns the configured interval length in seconds.
func (b *DayBuilder) TimeFrameBase() int {
	return b.opts.TimeFrameBase
}

// Kind returns the configured source kind.
func (b *DayBuilder) Kind() string {
	return b.opts.Kind
}

// BuildDayProfile returns net energy per interval (Wh) over [start, end).
// It never fails: configuration problems are logged and yield nil, which the
// weekday composer's fallback chain absorbs.
func (b *DayBuilder) BuildDayProfile(ctx context.Context, start, end time.Time) []float64 {
	switch b.opts.Kind {
	case SourceDefault:
		return b.staticProfile(start, end)
	case SourceOpenHAB, SourceHomeAssistant:
		return b.sensorProfile(ctx, start, end)
	default:
		b.logger.Error().Str("kind", b.opts.Kind).Msg("no supported data source configured")
		return nil
	}
}

func (b *DayBuilder) staticProfile(start, end time.Time) []float64 {
	count := int(end.Sub(start).Seconds()) / b.opts.TimeFrameBase
	return staticProfileSlice(start, b.opts.TimeFrameBase, count)
}

// staticProfileSlice serves count intervals of the baked-in 48-hour pattern,
// resampled to the interval size by equal subdivision and aligned to the
// start's offset within the day. A 900 s frame divides each hourly value by
// four and repeats it four times.
func staticProfileSlice(start time.Time, frame, count int) []float64 {
	if count <= 0 {
		return nil
	}

	perHour := 3600 / frame
	if perHour < 1 {
		perHour = 1
	}

	startIdx := start.Hour() * perHour
	total := len(defaultHourlyProfile) * perHour

	values := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		idx := (startIdx + i) % total
		hour := idx / perHour
		values = append(values, round4(defaultHourlyProfile[hour]/float64(perHour)))
	}
	return values
}

func (b *DayBuilder) sensorProfile(ctx context.Context, start, end time.Time) []float64 {
	frame := time.Duration(b.opts.TimeFrameBase) * time.Second
	toWh := frame.Hours()

	var values []float64
	for t := start; t.Before(end); t = t.Add(frame) {
		intervalEnd := t.Add(frame)
		historyURL := b.opts.Source.HistoryURL(b.opts.LoadSensor, t, intervalEnd)

		mainWh := b.intervalEnergy(ctx, b.opts.LoadSensor, t, intervalEnd, toWh)
		carWh := clampNonNegative(b.intervalEnergy(ctx, b.opts.CarChargeLoadSensor, t, intervalEnd, toWh))
		additionalWh := clampNonNegative(b.intervalEnergy(ctx, b.opts.AdditionalLoad1Sensor, t, intervalEnd, toWh))

		controllable := carWh + additionalWh
		net := mainWh
		if controllable > 0 {
			if controllable > mainWh {
				// Sub-load sensors reporting more than the gross meter is a
				// data error; clamp instead of carrying negative energy.
				b.logger.Warn().
					Time("interval_start", t).
					Float64("load_wh", mainWh).
					Float64("controllable_wh", controllable).
					Str("history_url", historyURL).
					Msg("controllable load exceeds total load; clamping interval to zero")
				net = 0
			} else {
				net = mainWh - controllable
			}
		}

		if net == 0 {
			b.logger.Debug().
				Time("interval_start", t).
				Str("history_url", historyURL).
				Msg("interval produced no energy")
		}

		values = append(values, round4(net))
	}

	return values
}

func (b *DayBuilder) intervalEnergy(ctx context.Context, sensor string, start, end time.Time, toWh float64) float64 {
	if sensor == "" {
		return 0
	}
	samples := b.opts.Source.FetchSamples(ctx, sensor, start, end)
	power := b.estimator.EstimateIntervalPower(samples, end, end.Sub(start), b.opts.Source.HistoryURL(sensor, start, end))
	return power * toWh
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
