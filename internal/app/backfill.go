package app

import (
	"context"
	"errors"
	"time"

	"loadcast/internal/service"
	"loadcast/internal/storage"
)

// Backfill recomputes forecast snapshots for historical buckets. Each bucket
// is composed as if the service had run at that moment, so the window must
// still be covered by the backend's retention.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	interval := a.Config.Scheduler.Interval
	if interval <= 0 {
		return errors.New("scheduler.interval is not valid")
	}

	start := alignForward(opts.From.UTC(), interval)
	end := opts.To.UTC()
	if !start.Before(end) {
		return errors.New("backfill window is empty; check --from/--to")
	}

	if opts.Workers > 1 {
		a.Logger.Warn().Int("workers", opts.Workers).Msg("backfill runs sequentially; ignoring --workers")
	}

	var snapshotStore storage.SnapshotStore

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
		snapshotStore = store
	}

	forecaster := a.newForecaster()
	svc := service.New(a.Config, nil, forecaster, snapshotStore, nil, nil, a.Logger)

	processed := 0
	failed := 0
	for bucket := start; bucket.Before(end); bucket = bucket.Add(interval) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := svc.ProcessBucket(ctx, bucket); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("bucket", bucket).Msg("backfill bucket failed")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill finished")
	return nil
}

func alignForward(t time.Time, interval time.Duration) time.Time {
	aligned := t.Truncate(interval)
	if aligned.Before(t) {
		aligned = aligned.Add(interval)
	}
	return aligned
}
