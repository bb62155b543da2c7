package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertSnapshotSQL = `INSERT INTO forecast_snapshots (
        bucket_ts,
        source,
        time_frame_base,
        fallback,
        energy_wh,
        zero_intervals,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (bucket_ts) DO UPDATE
    SET
        source          = EXCLUDED.source,
        time_frame_base = EXCLUDED.time_frame_base,
        fallback        = EXCLUDED.fallback,
        energy_wh       = EXCLUDED.energy_wh,
        zero_intervals  = EXCLUDED.zero_intervals,
        status          = EXCLUDED.status,
        error           = EXCLUDED.error;`

	listSnapshotsBetweenSQL = `SELECT
        bucket_ts,
        source,
        time_frame_base,
        fallback,
        energy_wh,
        zero_intervals,
        status,
        error,
        created_at
    FROM forecast_snapshots
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentSnapshotsSQL = `SELECT
        bucket_ts,
        source,
        time_frame_base,
        fallback,
        energy_wh,
        zero_intervals,
        status,
        error,
        created_at
    FROM forecast_snapshots
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	markSnapshotErroredSQL = `UPDATE forecast_snapshots
    SET status = 'errored', error = $2
    WHERE bucket_ts = $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM forecast_snapshots;`

	insertDataAlertSQL = `INSERT INTO data_alerts (
        bucket_ts,
        reason,
        fallback,
        zero_intervals,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (bucket_ts) DO UPDATE
    SET reason         = EXCLUDED.reason,
        fallback       = EXCLUDED.fallback,
        zero_intervals = EXCLUDED.zero_intervals,
        channels       = EXCLUDED.channels
    RETURNING id, bucket_ts, reason, fallback, zero_intervals, channels, created_at;`

	listRecentDataAlertsSQL = `SELECT
        id,
        bucket_ts,
        reason,
        fallback,
        zero_intervals,
        channels,
        created_at
    FROM data_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteDataAlertsBeforeSQL = `DELETE FROM data_alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore defines operations for forecast snapshot persistence.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snapshot ForecastSnapshot) error
	ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]ForecastSnapshot, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]ForecastSnapshot, error)
	MarkSnapshotErrored(ctx context.Context, bucket time.Time, errMsg string) error
	CountSnapshots(ctx context.Context) (int64, error)
}

// DataAlertStore defines operations for data-quality alert auditing.
type DataAlertStore interface {
	InsertDataAlert(ctx context.Context, alert DataAlert) (DataAlert, error)
	ListRecentDataAlerts(ctx context.Context, limit int) ([]DataAlert, error)
	DeleteDataAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to forecast snapshots and data alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. Keeps concurrent loadcast instances from double-computing the
// same bucket.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// unlock is best effort; the session drop releases it anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertSnapshot persists or updates a forecast snapshot.
func (s *Store) UpsertSnapshot(ctx context.Context, snapshot ForecastSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if snapshot.Error != nil {
		errMsg = *snapshot.Error
	}

	_, execErr := pool.Exec(ctx, upsertSnapshotSQL,
		snapshot.Bucket,
		snapshot.Source,
		snapshot.TimeFrameBase,
		snapshot.Fallback,
		snapshot.EnergyWh,
		snapshot.ZeroIntervals,
		snapshot.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert forecast snapshot: %w", execErr)
	}
	return nil
}

// ListSnapshotsBetween lists snapshots within a time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]ForecastSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]ForecastSnapshot, 0)
	for rows.Next() {
		snapshot, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// ListRecentSnapshots lists the most recent snapshots ordered by descending
// bucket.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]ForecastSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]ForecastSnapshot, 0, limit)
	for rows.Next() {
		snapshot, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// MarkSnapshotErrored marks a snapshot as errored.
func (s *Store) MarkSnapshotErrored(ctx context.Context, bucket time.Time, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markSnapshotErroredSQL, bucket, errMsg)
	if execErr != nil {
		return fmt.Errorf("mark snapshot errored: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertDataAlert persists a data-quality alert emission.
func (s *Store) InsertDataAlert(ctx context.Context, alert DataAlert) (DataAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return DataAlert{}, err
	}

	row := pool.QueryRow(ctx, insertDataAlertSQL,
		alert.Bucket,
		alert.Reason,
		alert.Fallback,
		alert.ZeroIntervals,
		alert.Channels,
	)

	var rec DataAlert
	if scanErr := row.Scan(
		&rec.ID,
		&rec.Bucket,
		&rec.Reason,
		&rec.Fallback,
		&rec.ZeroIntervals,
		&rec.Channels,
		&rec.CreatedAt,
	); scanErr != nil {
		return DataAlert{}, fmt.Errorf("insert data alert: %w", scanErr)
	}

	return rec, nil
}

// ListRecentDataAlerts lists most recent data alerts.
func (s *Store) ListRecentDataAlerts(ctx context.Context, limit int) ([]DataAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDataAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent data alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]DataAlert, 0, limit)
	for rows.Next() {
		var rec DataAlert
		if err := rows.Scan(
			&rec.ID,
			&rec.Bucket,
			&rec.Reason,
			&rec.Fallback,
			&rec.ZeroIntervals,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteDataAlertsBefore deletes historical data alerts.
func (s *Store) DeleteDataAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteDataAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete data alerts before: %w", execErr)
	}
	return nil
}

func scanSnapshot(rows pgx.Rows) (ForecastSnapshot, error) {
	var (
		snapshot ForecastSnapshot
		errMsg   sql.NullString
	)

	if err := rows.Scan(
		&snapshot.Bucket,
		&snapshot.Source,
		&snapshot.TimeFrameBase,
		&snapshot.Fallback,
		&snapshot.EnergyWh,
		&snapshot.ZeroIntervals,
		&snapshot.Status,
		&errMsg,
		&snapshot.CreatedAt,
	); err != nil {
		return ForecastSnapshot{}, err
	}

	if errMsg.Valid {
		msg := errMsg.String
		snapshot.Error = &msg
	}

	return snapshot, nil
}
