package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"loadcast/internal/storage"
)

// Export renders a stored forecast snapshot as CSV and/or PNG. Without
// --bucket the most recent snapshot is used.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	snapshot, err := a.findSnapshot(ctx, store, opts.Bucket)
	if err != nil {
		return err
	}

	values := snapshot.EnergyWh
	if opts.MaxPoints > 0 && len(values) > opts.MaxPoints {
		values = values[:opts.MaxPoints]
	}
	if len(values) == 0 {
		a.Logger.Info().Time("bucket", snapshot.Bucket).Msg("snapshot holds no intervals")
		return nil
	}

	start := midnightIn(snapshot.Bucket, a.location())
	frame := time.Duration(snapshot.TimeFrameBase) * time.Second
	a.Logger.Info().Time("bucket", snapshot.Bucket).Int("intervals", len(values)).Msg("exporting forecast snapshot")

	if opts.CSVPath != "" {
		if err := writeProfileCSV(opts.CSVPath, start, frame, values); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeProfilePNG(opts.PNGPath, start, frame, values); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) findSnapshot(ctx context.Context, store *storage.Store, bucket *time.Time) (storage.ForecastSnapshot, error) {
	if bucket != nil {
		snapshots, err := store.ListSnapshotsBetween(ctx, bucket.UTC(), bucket.UTC().Add(time.Second))
		if err != nil {
			return storage.ForecastSnapshot{}, err
		}
		if len(snapshots) == 0 {
			return storage.ForecastSnapshot{}, errors.New("no snapshot stored for the requested bucket")
		}
		return snapshots[0], nil
	}

	snapshots, err := store.ListRecentSnapshots(ctx, 1)
	if err != nil {
		return storage.ForecastSnapshot{}, err
	}
	if len(snapshots) == 0 {
		return storage.ForecastSnapshot{}, errors.New("no snapshots stored yet")
	}
	return snapshots[0], nil
}

func writeProfileCSV(path string, start time.Time, frame time.Duration, values []float64) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"interval_start", "energy_wh"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, value := range values {
		record := []string{
			start.Add(time.Duration(i) * frame).Format(time.RFC3339),
			formatWh(value),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeProfilePNG(path string, start time.Time, frame time.Duration, values []float64) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(values))
	y := make([]float64, len(values))
	for i, value := range values {
		x[i] = start.Add(time.Duration(i) * frame)
		y[i] = value
	}

	energyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Energy (Wh)",
			ValueFormatter: energyFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Net load",
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatWh(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
