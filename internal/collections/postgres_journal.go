package collections

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresJournalTableName        = "impactd_change_events"
	postgresJournalOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresJournal persists change events so operators keep history
// across restarts. The cache itself never touches disk; only these
// summaries do. The schema is created lazily on first use.
type PostgresJournal struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresJournal(dsn string) (*PostgresJournal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres journal requires a dsn")
	}
	return &PostgresJournal{
		dsn:       dsn,
		tableName: postgresJournalTableName,
		openDB:    sql.Open,
	}, nil
}

func (j *PostgresJournal) Append(ctx context.Context, event ChangeEvent) error {
	if err := j.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresJournalOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (kind, added, changed, removed, detected_at)
		VALUES ($1, $2, $3, $4, $5)`, postgresQuoteIdentifier(j.tableName))
	_, err := j.db.ExecContext(ctx, query, string(event.Kind), event.Added, event.Changed, event.Removed, event.DetectedAt)
	return err
}

func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]ChangeEvent, error) {
	if err := j.ensureReady(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultJournalCapacity
	}
	ctx, cancel := context.WithTimeout(ctx, postgresJournalOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT kind, added, changed, removed, detected_at
		FROM %s ORDER BY detected_at DESC, id DESC LIMIT $1`, postgresQuoteIdentifier(j.tableName))
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ChangeEvent
	for rows.Next() {
		var event ChangeEvent
		var kind string
		if err := rows.Scan(&kind, &event.Added, &event.Changed, &event.Removed, &event.DetectedAt); err != nil {
			return nil, err
		}
		event.Kind = Kind(kind)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (j *PostgresJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *PostgresJournal) ensureReady() error {
	j.initOnce.Do(func() {
		db, err := j.openDB("postgres", j.dsn)
		if err != nil {
			j.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresJournalOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				kind TEXT NOT NULL,
				added INTEGER NOT NULL,
				changed INTEGER NOT NULL,
				removed INTEGER NOT NULL,
				detected_at TIMESTAMPTZ NOT NULL
			)`, postgresQuoteIdentifier(j.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			j.initErr = err
			return
		}
		j.db = db
	})
	return j.initErr
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
