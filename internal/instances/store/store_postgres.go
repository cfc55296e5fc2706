package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kgcore/internal/instances/models"
	"kgcore/internal/reconcile"
	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	txcontext "kgcore/pkg/platform/tx"
)

// Postgres persists the stages of instances. All writes honour the transaction in context.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Info(ctx context.Context, id uuid.UUID) (*models.Info, error) {
	var info models.Info
	var space, status string
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT space, release_status FROM instance_info WHERE instance_uuid = $1
	`, id).Scan(&space, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find instance info: %w", err)
	}
	info.ID = domain.InstanceID{Space: domain.SpaceName(space), UUID: id}
	info.ReleaseStatus = models.ReleaseStatus(status)
	return &info, nil
}

func (s *Postgres) SaveInfo(ctx context.Context, info models.Info) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO instance_info (instance_uuid, space, release_status)
		VALUES ($1, $2, $3)
		ON CONFLICT (instance_uuid) DO UPDATE
		SET space = EXCLUDED.space, release_status = EXCLUDED.release_status
	`, info.ID.UUID, string(info.ID.Space), string(info.ReleaseStatus))
	if err != nil {
		return fmt.Errorf("save instance info: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveInfo(ctx context.Context, id uuid.UUID) error {
	if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM instance_info WHERE instance_uuid = $1`, id); err != nil {
		return fmt.Errorf("remove instance info: %w", err)
	}
	return nil
}

func (s *Postgres) ReleaseStatuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ReleaseStatus, error) {
	out := make(map[uuid.UUID]models.ReleaseStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT instance_uuid, release_status FROM instance_info WHERE instance_uuid = ANY($1::uuid[])
	`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("query release statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan release status: %w", err)
		}
		out[id] = models.ReleaseStatus(status)
	}
	return out, rows.Err()
}

func (s *Postgres) Contributions(ctx context.Context, id uuid.UUID) ([]reconcile.Contribution, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT contribution_id, user_id, document, field_update_times, suggestion
		FROM contributions WHERE instance_uuid = $1 ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	defer rows.Close()
	var out []reconcile.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Postgres) Contribution(ctx context.Context, id uuid.UUID, user domain.UserID) (*reconcile.Contribution, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT contribution_id, user_id, document, field_update_times, suggestion
		FROM contributions WHERE instance_uuid = $1 AND user_id = $2
	`, id, string(user))
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContribution(row scanner) (*reconcile.Contribution, error) {
	var c reconcile.Contribution
	var user string
	var doc, times []byte
	if err := row.Scan(&c.ID, &user, &doc, &times, &c.Suggestion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan contribution: %w", err)
	}
	c.UserID = domain.UserID(user)
	if err := json.Unmarshal(doc, &c.Document); err != nil {
		return nil, fmt.Errorf("decode contribution: %w", err)
	}
	if err := json.Unmarshal(times, &c.FieldUpdateTimes); err != nil {
		return nil, fmt.Errorf("decode contribution timestamps: %w", err)
	}
	return &c, nil
}

// SaveContribution upserts on (instance, user); an update keeps the original seq
// so insertion order survives edits.
func (s *Postgres) SaveContribution(ctx context.Context, id domain.InstanceID, c reconcile.Contribution) error {
	doc, err := json.Marshal(c.Document)
	if err != nil {
		return fmt.Errorf("marshal contribution: %w", err)
	}
	times, err := json.Marshal(c.FieldUpdateTimes)
	if err != nil {
		return fmt.Errorf("marshal contribution timestamps: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO contributions (instance_uuid, user_id, contribution_id, space, document, field_update_times, suggestion)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instance_uuid, user_id) DO UPDATE
		SET space = EXCLUDED.space,
		    document = EXCLUDED.document,
		    field_update_times = EXCLUDED.field_update_times,
		    suggestion = EXCLUDED.suggestion
	`, id.UUID, string(c.UserID), c.ID, string(id.Space), doc, times, c.Suggestion)
	if err != nil {
		return fmt.Errorf("save contribution: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveContributions(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		DELETE FROM contributions WHERE instance_uuid = $1 RETURNING contribution_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("remove contributions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("scan removed contribution: %w", err)
		}
		ids = append(ids, cid)
	}
	return ids, rows.Err()
}

func (s *Postgres) Inferred(ctx context.Context, id uuid.UUID) (*models.InferredRecord, error) {
	var rec models.InferredRecord
	var space string
	var payload []byte
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT space, payload, revision, updated_at FROM inferred_documents WHERE instance_uuid = $1
	`, id).Scan(&space, &payload, &rec.Revision, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find inferred document: %w", err)
	}
	rec.ID = domain.InstanceID{Space: domain.SpaceName(space), UUID: id}
	if err := json.Unmarshal(payload, &rec.Inferred); err != nil {
		return nil, fmt.Errorf("decode inferred document: %w", err)
	}
	return &rec, nil
}

func (s *Postgres) SaveInferred(ctx context.Context, rec models.InferredRecord) error {
	payload, err := json.Marshal(rec.Inferred)
	if err != nil {
		return fmt.Errorf("marshal inferred document: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO inferred_documents (instance_uuid, space, payload, revision, inference_of, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (instance_uuid) DO UPDATE
		SET space = EXCLUDED.space,
		    payload = EXCLUDED.payload,
		    revision = EXCLUDED.revision,
		    inference_of = EXCLUDED.inference_of,
		    updated_at = EXCLUDED.updated_at
	`, rec.ID.UUID, string(rec.ID.Space), payload, rec.Revision, pq.Array(rec.Inferred.InferenceOf), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save inferred document: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveInferred(ctx context.Context, id uuid.UUID) error {
	if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM inferred_documents WHERE instance_uuid = $1`, id); err != nil {
		return fmt.Errorf("remove inferred document: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveInferredDerivedFrom(ctx context.Context, contributionIDs []string) ([]uuid.UUID, error) {
	if len(contributionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		DELETE FROM inferred_documents WHERE inference_of && $1::text[] RETURNING instance_uuid
	`, pq.Array(contributionIDs))
	if err != nil {
		return nil, fmt.Errorf("remove derived documents: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan derived document: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Postgres) Released(ctx context.Context, id uuid.UUID) (*models.ReleasedRecord, error) {
	var rec models.ReleasedRecord
	var space string
	var payload []byte
	var releasedAt time.Time
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT space, payload, revision, released_at FROM released_documents WHERE instance_uuid = $1
	`, id).Scan(&space, &payload, &rec.Revision, &releasedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find released document: %w", err)
	}
	rec.ID = domain.InstanceID{Space: domain.SpaceName(space), UUID: id}
	rec.ReleasedAt = releasedAt
	if err := json.Unmarshal(payload, &rec.Document); err != nil {
		return nil, fmt.Errorf("decode released document: %w", err)
	}
	return &rec, nil
}

func (s *Postgres) SaveReleased(ctx context.Context, rec models.ReleasedRecord) error {
	payload, err := json.Marshal(rec.Document)
	if err != nil {
		return fmt.Errorf("marshal released document: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO released_documents (instance_uuid, space, payload, revision, released_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instance_uuid) DO UPDATE
		SET space = EXCLUDED.space,
		    payload = EXCLUDED.payload,
		    revision = EXCLUDED.revision,
		    released_at = EXCLUDED.released_at
	`, rec.ID.UUID, string(rec.ID.Space), payload, rec.Revision, rec.ReleasedAt)
	if err != nil {
		return fmt.Errorf("save released document: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveReleased(ctx context.Context, id uuid.UUID) error {
	if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM released_documents WHERE instance_uuid = $1`, id); err != nil {
		return fmt.Errorf("remove released document: %w", err)
	}
	return nil
}
