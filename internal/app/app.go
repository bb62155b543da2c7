package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"loadcast/internal/alerting"
	"loadcast/internal/config"
	"loadcast/internal/fetcher"
	"loadcast/internal/profile"
	"loadcast/internal/scheduler"
	"loadcast/internal/service"
	"loadcast/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newForecaster() *profile.Forecaster {
	client := fetcher.NewClient(fetcher.ClientOptions{
		MaxRetries:       a.Config.Fetch.MaxRetries,
		RetryBackoff:     a.Config.Fetch.RetryBackoff,
		WarningThreshold: a.Config.Fetch.WarningThreshold,
		Timeout:          a.Config.Fetch.RequestTimeout,
	}, a.Logger)

	var source fetcher.SampleSource
	switch a.Config.Source.Kind {
	case profile.SourceOpenHAB:
		source = fetcher.NewPersistenceSource(a.Config.Source.URL, client, a.Logger)
	case profile.SourceHomeAssistant:
		source = fetcher.NewHistorySource(a.Config.Source.URL, a.Config.Source.AccessToken, client, a.Logger)
	}

	builder := profile.NewDayBuilder(profile.DayBuilderOptions{
		Kind:                  a.Config.Source.Kind,
		Source:                source,
		LoadSensor:            a.Config.Source.LoadSensor,
		CarChargeLoadSensor:   a.Config.Source.CarChargeLoadSensor,
		AdditionalLoad1Sensor: a.Config.Source.AdditionalLoad1Sensor,
		TimeFrameBase:         a.Config.Profile.TimeFrameBase,
	}, a.Logger)

	return profile.NewForecaster(builder, a.location(), a.Logger)
}

func (a *App) location() *time.Location {
	loc, err := time.LoadLocation(a.Config.Source.Timezone)
	if err != nil {
		a.Logger.Warn().Err(err).Str("timezone", a.Config.Source.Timezone).Msg("falling back to UTC")
		return time.UTC
	}
	return loc
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running forecast service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; snapshot persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	forecaster := a.newForecaster()
	notifier := a.newNotifier()

	var snapshotStore storage.SnapshotStore
	var alertStore storage.DataAlertStore
	if store != nil {
		snapshotStore = store
		alertStore = store
	}

	svc := service.New(a.Config, sched, forecaster, snapshotStore, alertStore, notifier, a.Logger)

	a.Logger.Info().Str("source", a.Config.Source.Kind).Msg("starting forecast service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("forecast service stopped")
	return nil
}

// ForecastOptions configure the one-shot forecast command.
type ForecastOptions struct {
	Hours   int
	CSVPath string
	PNGPath string
}

// ExportOptions hold parameters for exporting a stored snapshot.
type ExportOptions struct {
	Bucket    *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure recomputation of historical buckets.
type BackfillOptions struct {
	From    time.Time
	To      time.Time
	DryRun  bool
	Workers int
}
