package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	txcontext "kgcore/pkg/platform/tx"
)

// PostgresJournal persists events in the events table and announces them
// through the outbox in the same transaction.
type PostgresJournal struct {
	db     *sql.DB
	outbox OutboxWriter
}

func NewPostgresJournal(db *sql.DB, ob OutboxWriter) *PostgresJournal {
	return &PostgresJournal{db: db, outbox: ob}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (j *PostgresJournal) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return j.db
}

const selectEvents = `
	SELECT id, event_type, space, instance_uuid, user_id, client_id, stage, suggestion,
	       payload, expected_revision, replace_document, reported_at, indexed_at, failed, failure
	FROM events`

func (j *PostgresJournal) Append(ctx context.Context, e Persisted) error {
	var payload []byte
	if e.Document != nil {
		var err error
		if payload, err = json.Marshal(e.Document); err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}
	_, err := j.execer(ctx).ExecContext(ctx, `
		INSERT INTO events (id, event_type, space, instance_uuid, user_id, client_id, stage, suggestion,
		                    payload, expected_revision, replace_document, reported_at, indexed_at, failed, failure)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, e.ID, string(e.Type), string(e.Space), e.InstanceUUID, string(e.UserID), e.ClientID, string(e.Stage), e.Suggestion,
		payload, e.ExpectedRevision, e.ReplaceDocument, e.ReportedAt, e.IndexedAt, e.Failed, e.Failure)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return announce(ctx, j.outbox, e)
}

func (j *PostgresJournal) Get(ctx context.Context, id uuid.UUID) (*Persisted, error) {
	e, err := scanEvent(j.execer(ctx).QueryRowContext(ctx, selectEvents+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return e, err
}

func (j *PostgresJournal) ListByInstance(ctx context.Context, id uuid.UUID) ([]Persisted, error) {
	rows, err := j.execer(ctx).QueryContext(ctx, selectEvents+` WHERE instance_uuid = $1 ORDER BY indexed_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}

func (j *PostgresJournal) ListFailed(ctx context.Context, limit int) ([]Persisted, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.execer(ctx).QueryContext(ctx, selectEvents+` WHERE failed ORDER BY indexed_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]Persisted, error) {
	defer rows.Close()
	var out []Persisted
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Persisted, error) {
	var e Persisted
	var eventType, space, user, stage string
	var payload []byte
	err := row.Scan(&e.ID, &eventType, &space, &e.InstanceUUID, &user, &e.ClientID, &stage, &e.Suggestion,
		&payload, &e.ExpectedRevision, &e.ReplaceDocument, &e.ReportedAt, &e.IndexedAt, &e.Failed, &e.Failure)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.Type = domain.EventType(eventType)
	e.Space = domain.SpaceName(space)
	e.UserID = domain.UserID(user)
	e.Stage = domain.DataStage(stage)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Document); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
	}
	return &e, nil
}
