package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"loadcast/internal/alerting"
	"loadcast/internal/config"
	"loadcast/internal/profile"
	"loadcast/internal/storage"
)

type fakeComposer struct {
	comp profile.Composition
}

func (c *fakeComposer) ComposeAt(context.Context, time.Time) profile.Composition {
	return c.comp
}

type fakeSnapshotStore struct {
	snapshots []storage.ForecastSnapshot
}

func (s *fakeSnapshotStore) UpsertSnapshot(_ context.Context, snapshot storage.ForecastSnapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *fakeSnapshotStore) ListSnapshotsBetween(context.Context, time.Time, time.Time) ([]storage.ForecastSnapshot, error) {
	return s.snapshots, nil
}

func (s *fakeSnapshotStore) ListRecentSnapshots(context.Context, int) ([]storage.ForecastSnapshot, error) {
	return s.snapshots, nil
}

func (s *fakeSnapshotStore) MarkSnapshotErrored(context.Context, time.Time, string) error {
	return nil
}

func (s *fakeSnapshotStore) CountSnapshots(context.Context) (int64, error) {
	return int64(len(s.snapshots)), nil
}

type fakeAlertStore struct {
	alerts []storage.DataAlert
}

func (s *fakeAlertStore) InsertDataAlert(_ context.Context, alert storage.DataAlert) (storage.DataAlert, error) {
	s.alerts = append(s.alerts, alert)
	return alert, nil
}

func (s *fakeAlertStore) ListRecentDataAlerts(context.Context, int) ([]storage.DataAlert, error) {
	return s.alerts, nil
}

func (s *fakeAlertStore) DeleteDataAlertsBefore(context.Context, time.Time) error {
	return nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Source.Kind = profile.SourceOpenHAB
	cfg.Profile.TimeFrameBase = 3600
	cfg.Alerting.Enabled = true
	cfg.Alerting.MaxZeroRatio = 0.5
	cfg.Alerting.Channels = []string{"telegram"}
	return cfg
}

func newTestService(comp profile.Composition) (*Service, *fakeSnapshotStore, *fakeAlertStore, *fakeNotifier) {
	store := &fakeSnapshotStore{}
	alertStore := &fakeAlertStore{}
	notifier := &fakeNotifier{}
	svc := New(testConfig(), nil, &fakeComposer{comp: comp}, store, alertStore, notifier, zerolog.Nop())
	return svc, store, alertStore, notifier
}

func TestProcessBucketStoresHealthySnapshot(t *testing.T) {
	comp := profile.Composition{Energy: []float64{100, 200, 300, 400}}
	svc, store, alertStore, notifier := newTestService(comp)

	bucket := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(store.snapshots))
	}
	snap := store.snapshots[0]
	if !snap.Bucket.Equal(bucket) || snap.Status != "complete" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.EnergyWh) != 4 {
		t.Fatalf("expected 4 intervals, got %d", len(snap.EnergyWh))
	}
	if len(alertStore.alerts) != 0 || len(notifier.notes) != 0 {
		t.Fatal("healthy cycle must not alert")
	}
}

func TestProcessBucketAlertsOnFallback(t *testing.T) {
	comp := profile.Composition{
		Energy:   []float64{200, 300},
		Fallback: profile.FallbackDefault,
	}
	svc, _, alertStore, notifier := newTestService(comp)

	bucket := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notes))
	}
	note := notifier.notes[0]
	if note.Fallback != profile.FallbackDefault || note.Reason == "" {
		t.Fatalf("unexpected notification %+v", note)
	}
	if len(alertStore.alerts) != 1 {
		t.Fatalf("alert must be persisted, got %d records", len(alertStore.alerts))
	}
}

func TestProcessBucketAlertsOnZeroRatio(t *testing.T) {
	comp := profile.Composition{
		Energy:        []float64{0, 0, 0, 100},
		ZeroIntervals: 3,
	}
	svc, _, _, notifier := newTestService(comp)

	if err := svc.ProcessBucket(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("expected 1 notification for zero-heavy forecast, got %d", len(notifier.notes))
	}
}

func TestProcessBucketAlertingDisabled(t *testing.T) {
	comp := profile.Composition{
		Energy:   []float64{200, 300},
		Fallback: profile.FallbackYesterday,
	}
	store := &fakeSnapshotStore{}
	notifier := &fakeNotifier{}
	cfg := testConfig()
	cfg.Alerting.Enabled = false
	svc := New(cfg, nil, &fakeComposer{comp: comp}, store, nil, notifier, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatal("disabled alerting must not notify")
	}
	if len(store.snapshots) != 1 {
		t.Fatal("snapshot must still be stored")
	}
}
