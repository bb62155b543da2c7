package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"loadcast/internal/alerting"
	"loadcast/internal/config"
	"loadcast/internal/profile"
	"loadcast/internal/scheduler"
	"loadcast/internal/storage"
)

// Composer produces the two-day forecast for a reference time.
type Composer interface {
	ComposeAt(ctx context.Context, ref time.Time) profile.Composition
}

// Service orchestrates forecast composition, persistence, and data-quality
// alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	composer   Composer
	store      storage.SnapshotStore
	alertStore storage.DataAlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger

	source        string
	timeFrameBase int
	maxZeroRatio  float64
	channels      []string
	alertsOn      bool
	locker        storage.AdvisoryLocker
	lockKey       int64
}

// New constructs the forecast service.
func New(cfg *config.Config, sched *scheduler.Scheduler, composer Composer, store storage.SnapshotStore, alertStore storage.DataAlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:     sched,
		composer:      composer,
		store:         store,
		alertStore:    alertStore,
		notifier:      notifier,
		logger:        logger.With().Str("component", "service").Logger(),
		source:        cfg.Source.Kind,
		timeFrameBase: cfg.Profile.TimeFrameBase,
		maxZeroRatio:  cfg.Alerting.MaxZeroRatio,
		channels:      cfg.Alerting.Channels,
		alertsOn:      cfg.Alerting.Enabled,
		locker:        locker,
		lockKey:       cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned forecast loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket executes one forecast cycle for the given bucket.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeBucket(ctx, bucket)
}

func (s *Service) executeBucket(ctx context.Context, bucket time.Time) error {
	comp := s.composer.ComposeAt(ctx, bucket)

	intervals := len(comp.Energy)
	snapshot := storage.ForecastSnapshot{
		Bucket:        bucket,
		Source:        s.source,
		TimeFrameBase: s.timeFrameBase,
		Fallback:      comp.Fallback,
		EnergyWh:      comp.Energy,
		ZeroIntervals: comp.ZeroIntervals,
		Status:        "complete",
		CreatedAt:     time.Now().UTC(),
	}

	if s.store != nil {
		if err := s.store.UpsertSnapshot(ctx, snapshot); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to upsert forecast snapshot")
		}
	}

	s.logger.Info().Time("bucket", bucket).
		Str("fallback", comp.Fallback).
		Int("intervals", intervals).
		Int("zero_intervals", comp.ZeroIntervals).
		Msg("forecast recorded")

	if reason := s.degradationReason(comp); reason != "" {
		s.emitAlert(ctx, bucket, comp, reason)
	}

	return nil
}

// degradationReason classifies a cycle whose data quality warrants an alert;
// empty for a healthy cycle.
func (s *Service) degradationReason(comp profile.Composition) string {
	if !s.alertsOn || s.notifier == nil {
		return ""
	}

	var reasons []string
	if comp.Degraded() {
		reasons = append(reasons, fmt.Sprintf("forecast fell back to %s profile", comp.Fallback))
	}
	if n := len(comp.Energy); n > 0 && s.maxZeroRatio > 0 {
		ratio := float64(comp.ZeroIntervals) / float64(n)
		if ratio > s.maxZeroRatio {
			reasons = append(reasons, fmt.Sprintf("%d of %d intervals composed to zero", comp.ZeroIntervals, n))
		}
	}
	return strings.Join(reasons, "; ")
}

func (s *Service) emitAlert(ctx context.Context, bucket time.Time, comp profile.Composition, reason string) {
	note := alerting.Notification{
		Bucket:        bucket,
		Source:        s.source,
		Reason:        reason,
		Fallback:      comp.Fallback,
		ZeroIntervals: comp.ZeroIntervals,
		IntervalCount: len(comp.Energy),
		Channels:      s.channels,
	}

	if s.alertStore != nil {
		record := storage.DataAlert{
			Bucket:        bucket,
			Reason:        reason,
			Fallback:      comp.Fallback,
			ZeroIntervals: comp.ZeroIntervals,
			Channels:      s.channels,
		}
		if _, err := s.alertStore.InsertDataAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist data alert")
		}
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to dispatch data alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
