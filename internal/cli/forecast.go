package cli

import (
	"github.com/spf13/cobra"

	"loadcast/internal/app"
)

var (
	forecastHours   int
	forecastCSVPath string
	forecastPNGPath string
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Compute the load profile once and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ForecastOptions{
			Hours:   forecastHours,
			CSVPath: forecastCSVPath,
			PNGPath: forecastPNGPath,
		}
		return getApp().Forecast(cmd.Context(), opts)
	},
}

func init() {
	forecastCmd.Flags().IntVar(&forecastHours, "hours", 48, "Forecast duration in hours")
	forecastCmd.Flags().StringVar(&forecastCSVPath, "csv", "", "Path to write CSV data")
	forecastCmd.Flags().StringVar(&forecastPNGPath, "png", "", "Path to write PNG chart")
}
