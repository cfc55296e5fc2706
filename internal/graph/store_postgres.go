package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kgcore/internal/events/outbox"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	txcontext "kgcore/pkg/platform/tx"
)

const (
	aggregateInstance = "instance"
	eventUpsert       = "graph.upsert"
	eventDelete       = "graph.delete"
)

// OutboxWriter records change notifications in the same transaction as the projection.
type OutboxWriter interface {
	Append(ctx context.Context, e outbox.Entry) error
}

// PostgresStore projects documents into graph_documents/graph_relations and
// announces every change through the outbox.
type PostgresStore struct {
	db      *sql.DB
	outbox  OutboxWriter
	resolve RefResolver
}

func NewPostgresStore(db *sql.DB, ob OutboxWriter, resolve RefResolver) *PostgresStore {
	return &PostgresStore{db: db, outbox: ob, resolve: resolve}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// changePayload is the message published for each projection change.
type changePayload struct {
	Stage    string          `json:"stage"`
	UUID     string          `json:"uuid"`
	Space    string          `json:"space,omitempty"`
	Document domain.Document `json:"document,omitempty"`
	Links    []string        `json:"links,omitempty"`
}

func (s *PostgresStore) Upsert(ctx context.Context, stage domain.DataStage, id domain.InstanceID, doc domain.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal graph document: %w", err)
	}
	exec := s.execer(ctx)

	_, err = exec.ExecContext(ctx, `
		INSERT INTO graph_documents (stage, instance_uuid, space, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stage, instance_uuid) DO UPDATE
		SET space = EXCLUDED.space, payload = EXCLUDED.payload
	`, string(stage), id.UUID, string(id.Space), payload)
	if err != nil {
		return fmt.Errorf("upsert graph document: %w", err)
	}

	if _, err := exec.ExecContext(ctx, `DELETE FROM graph_relations WHERE stage = $1 AND from_uuid = $2`, string(stage), id.UUID); err != nil {
		return fmt.Errorf("clear graph relations: %w", err)
	}
	links := resolveLinks(doc, id.UUID, s.resolve)
	for _, to := range links {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO graph_relations (stage, from_uuid, to_uuid)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, string(stage), id.UUID, to)
		if err != nil {
			return fmt.Errorf("insert graph relation: %w", err)
		}
	}

	change := changePayload{Stage: string(stage), UUID: id.UUID.String(), Space: string(id.Space), Document: doc}
	for _, l := range links {
		change.Links = append(change.Links, l.String())
	}
	return s.announce(ctx, id.UUID, eventUpsert, change)
}

func (s *PostgresStore) Delete(ctx context.Context, stage domain.DataStage, id uuid.UUID) error {
	exec := s.execer(ctx)
	if _, err := exec.ExecContext(ctx, `DELETE FROM graph_relations WHERE stage = $1 AND from_uuid = $2`, string(stage), id); err != nil {
		return fmt.Errorf("delete graph relations: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM graph_documents WHERE stage = $1 AND instance_uuid = $2`, string(stage), id); err != nil {
		return fmt.Errorf("delete graph document: %w", err)
	}
	return s.announce(ctx, id, eventDelete, changePayload{Stage: string(stage), UUID: id.String()})
}

func (s *PostgresStore) announce(ctx context.Context, id uuid.UUID, eventType string, change changePayload) error {
	if s.outbox == nil {
		return nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal graph change: %w", err)
	}
	return s.outbox.Append(ctx, outbox.NewEntry(aggregateInstance, id.String(), eventType, payload, time.Now()))
}

func (s *PostgresStore) Get(ctx context.Context, stage domain.DataStage, id uuid.UUID) (*Node, error) {
	var space string
	var payload []byte
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT space, payload FROM graph_documents WHERE stage = $1 AND instance_uuid = $2
	`, string(stage), id).Scan(&space, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find graph document: %w", err)
	}
	node := &Node{ID: domain.InstanceID{Space: domain.SpaceName(space), UUID: id}}
	if err := json.Unmarshal(payload, &node.Document); err != nil {
		return nil, fmt.Errorf("decode graph document: %w", err)
	}
	node.Links, err = s.Related(ctx, stage, id)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *PostgresStore) Related(ctx context.Context, stage domain.DataStage, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT to_uuid FROM graph_relations WHERE stage = $1 AND from_uuid = $2 ORDER BY to_uuid
	`, string(stage), id)
	if err != nil {
		return nil, fmt.Errorf("query graph relations: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var to uuid.UUID
		if err := rows.Scan(&to); err != nil {
			return nil, fmt.Errorf("scan graph relation: %w", err)
		}
		out = append(out, to)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SpaceOf(ctx context.Context, stage domain.DataStage, id uuid.UUID) (domain.SpaceName, error) {
	var space string
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT space FROM graph_documents WHERE stage = $1 AND instance_uuid = $2
	`, string(stage), id).Scan(&space)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find graph space: %w", err)
	}
	return domain.SpaceName(space), nil
}
