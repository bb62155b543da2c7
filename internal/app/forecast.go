package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Forecast computes the load profile once and prints it, optionally writing
// CSV/PNG artifacts. Works without a database.
func (a *App) Forecast(ctx context.Context, opts ForecastOptions) error {
	if opts.Hours <= 0 {
		return errors.New("--hours must be greater than zero")
	}

	forecaster := a.newForecaster()
	start := midnightIn(time.Now(), a.location())
	values := forecaster.GetLoadProfile(ctx, opts.Hours, start)
	if len(values) == 0 {
		return errors.New("forecast produced no intervals")
	}

	frame := time.Duration(a.Config.Profile.TimeFrameBase) * time.Second

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Interval start\tEnergy (Wh)")
	total := 0.0
	for i, value := range values {
		fmt.Fprintf(writer, "%s\t%s\n",
			start.Add(time.Duration(i)*frame).Format("2006-01-02 15:04"),
			formatWh(value),
		)
		total += value
	}
	fmt.Fprintf(writer, "Total\t%s\n", formatWh(total))
	writer.Flush()

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

func midnightIn(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
