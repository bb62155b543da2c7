package storage

import "time"

// ForecastSnapshot is one persisted forecast cycle result: the composed
// two-day energy profile plus data-quality metadata. Raw sensor samples are
// deliberately never persisted; they are transient optimizer input.
type ForecastSnapshot struct {
	Bucket        time.Time
	Source        string
	TimeFrameBase int
	// Fallback names the fallback level that produced the profile, empty
	// when the weekday composition succeeded on historical data.
	Fallback      string
	EnergyWh      []float64
	ZeroIntervals int
	Status        string
	Error         *string
	CreatedAt     time.Time
}

// DataAlert captures an emitted data-quality alert for auditing.
type DataAlert struct {
	ID            int64
	Bucket        time.Time
	Reason        string
	Fallback      string
	ZeroIntervals int
	Channels      []string
	CreatedAt     time.Time
}
