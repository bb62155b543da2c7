package profile

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadcast/internal/fetcher"
)

// fakeSource serves a constant power level per sensor by returning one sample
// at each interval edge.
type fakeSource struct {
	power map[string]float64
}

func (s *fakeSource) FetchSamples(_ context.Context, sensor string, start, end time.Time) []fetcher.Sample {
	p, ok := s.power[sensor]
	if !ok {
		return nil
	}
	state := strconv.FormatFloat(p, 'f', -1, 64)
	return []fetcher.Sample{
		{State: state, LastUpdated: start},
		{State: state, LastUpdated: end},
	}
}

func (s *fakeSource) HistoryURL(sensor string, start, end time.Time) string {
	return "http://automation.local/history?item=" + sensor
}

var _ fetcher.SampleSource = (*fakeSource)(nil)

func TestStaticDayProfileHourly(t *testing.T) {
	b := NewDayBuilder(DayBuilderOptions{Kind: SourceDefault, TimeFrameBase: 3600}, zerolog.Nop())
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	values := b.BuildDayProfile(context.Background(), start, start.AddDate(0, 0, 1))
	require.Len(t, values, 24)
	assert.Equal(t, 200.0, values[0])
	assert.Equal(t, 300.0, values[5])
	assert.Equal(t, 550.0, values[11])
	assert.Equal(t, 200.0, values[23])
}

func TestStaticDayProfileQuarterHourSubdivision(t *testing.T) {
	b := NewDayBuilder(DayBuilderOptions{Kind: SourceDefault, TimeFrameBase: 900}, zerolog.Nop())
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	values := b.BuildDayProfile(context.Background(), start, start.AddDate(0, 0, 1))
	require.Len(t, values, 96)
	// Hour 7 carries 400 W, so each quarter serves 100 Wh.
	for i := 28; i < 32; i++ {
		assert.Equal(t, 100.0, values[i], "index %d", i)
	}
}

func TestStaticDayProfileTwoDays(t *testing.T) {
	b := NewDayBuilder(DayBuilderOptions{Kind: SourceDefault, TimeFrameBase: 3600}, zerolog.Nop())
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	values := b.BuildDayProfile(context.Background(), start, start.AddDate(0, 0, 2))
	require.Len(t, values, 48)
	assert.Equal(t, values[:24], values[24:])
}

func TestStaticDayProfileOffsetStart(t *testing.T) {
	b := NewDayBuilder(DayBuilderOptions{Kind: SourceDefault, TimeFrameBase: 3600}, zerolog.Nop())
	start := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)

	values := b.BuildDayProfile(context.Background(), start, start.Add(time.Hour))
	require.Len(t, values, 1)
	assert.Equal(t, 300.0, values[0])
}

func TestSensorProfileSubtractsControllableLoads(t *testing.T) {
	src := &fakeSource{power: map[string]float64{
		"Power_Total": 1000,
		"Power_Car":   200,
		"Power_Heat":  100,
	}}
	b := NewDayBuilder(DayBuilderOptions{
		Kind:                  SourceOpenHAB,
		Source:                src,
		LoadSensor:            "Power_Total",
		CarChargeLoadSensor:   "Power_Car",
		AdditionalLoad1Sensor: "Power_Heat",
		TimeFrameBase:         3600,
	}, zerolog.Nop())

	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	values := b.BuildDayProfile(context.Background(), start, start.Add(time.Hour))
	require.Len(t, values, 1)
	assert.Equal(t, 700.0, values[0])
}

func TestSensorProfileClampsExcessControllableLoad(t *testing.T) {
	src := &fakeSource{power: map[string]float64{
		"Power_Total": 100,
		"Power_Car":   500,
	}}
	b := NewDayBuilder(DayBuilderOptions{
		Kind:                SourceOpenHAB,
		Source:              src,
		LoadSensor:          "Power_Total",
		CarChargeLoadSensor: "Power_Car",
		TimeFrameBase:       3600,
	}, zerolog.Nop())

	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	values := b.BuildDayProfile(context.Background(), start, start.Add(time.Hour))
	require.Len(t, values, 1)
	assert.Zero(t, values[0])
}

func TestSensorProfileClampsNegativeSubLoad(t *testing.T) {
	src := &fakeSource{power: map[string]float64{
		"Power_Total": 1000,
		"Power_Car":   -300,
	}}
	b := NewDayBuilder(DayBuilderOptions{
		Kind:                SourceHomeAssistant,
		Source:              src,
		LoadSensor:          "Power_Total",
		CarChargeLoadSensor: "Power_Car",
		TimeFrameBase:       3600,
	}, zerolog.Nop())

	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	values := b.BuildDayProfile(context.Background(), start, start.Add(time.Hour))
	require.Len(t, values, 1)
	assert.Equal(t, 1000.0, values[0])
}

func TestUnsupportedSourceKind(t *testing.T) {
	b := NewDayBuilder(DayBuilderOptions{Kind: "mqtt", TimeFrameBase: 3600}, zerolog.Nop())
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, b.BuildDayProfile(context.Background(), start, start.AddDate(0, 0, 1)))
}
