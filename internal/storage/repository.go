package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS subscribers (
        username   TEXT PRIMARY KEY,
        chat_id    BIGINT NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS alerts (
        id            BIGSERIAL PRIMARY KEY,
        event_id      UUID NOT NULL UNIQUE,
        channel       TEXT NOT NULL,
        rule          TEXT NOT NULL DEFAULT '',
        glucose_value INTEGER,
        reading_ts    TIMESTAMPTZ,
        message       TEXT NOT NULL,
        delivered     INTEGER NOT NULL DEFAULT 0,
        muted         INTEGER NOT NULL DEFAULT 0,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS alerts_created_at_idx ON alerts (created_at DESC);`

	upsertSubscriberSQL = `INSERT INTO subscribers (username, chat_id, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (username) DO UPDATE
    SET chat_id    = EXCLUDED.chat_id,
        updated_at = EXCLUDED.updated_at;`

	listSubscribersSQL = `SELECT username, chat_id, updated_at
    FROM subscribers
    ORDER BY username;`

	insertAlertSQL = `INSERT INTO alerts (
        event_id,
        channel,
        rule,
        glucose_value,
        reading_ts,
        message,
        delivered,
        muted
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (event_id) DO UPDATE
    SET delivered = EXCLUDED.delivered,
        muted     = EXCLUDED.muted
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        event_id,
        channel,
        rule,
        glucose_value,
        reading_ts,
        message,
        delivered,
        muted,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SubscriberStore persists the username to chat mapping.
type SubscriberStore interface {
	UpsertSubscriber(ctx context.Context, sub Subscriber) error
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to subscribers and alerts.
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

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
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
		// best effort; the lock is released with the session anyway
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

// UpsertSubscriber stores or replaces the chat of a username.
func (s *Store) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertSubscriberSQL, sub.Username, sub.ChatID); execErr != nil {
		return fmt.Errorf("upsert subscriber: %w", execErr)
	}
	return nil
}

// ListSubscribers returns every stored subscriber ordered by username.
func (s *Store) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSubscribersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscribers: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]Subscriber, 0)
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.Username, &sub.ChatID, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var value interface{}
	if alert.GlucoseValue != nil {
		value = *alert.GlucoseValue
	}
	var readingTS interface{}
	if alert.ReadingTS != nil {
		readingTS = *alert.ReadingTS
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.EventID,
		alert.Channel,
		alert.Rule,
		value,
		readingTS,
		alert.Message,
		alert.Delivered,
		alert.Muted,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec       AlertRecord
		eventID   uuid.UUID
		value     sql.NullInt32
		readingTS sql.NullTime
	)

	if err := rows.Scan(
		&rec.ID,
		&eventID,
		&rec.Channel,
		&rec.Rule,
		&value,
		&readingTS,
		&rec.Message,
		&rec.Delivered,
		&rec.Muted,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	rec.EventID = eventID
	if value.Valid {
		v := int(value.Int32)
		rec.GlucoseValue = &v
	}
	if readingTS.Valid {
		ts := readingTS.Time
		rec.ReadingTS = &ts
	}
	return rec, nil
}

var (
	_ SubscriberStore = (*Store)(nil)
	_ AlertStore      = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
