package space

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kgcore/pkg/domain"
	"kgcore/pkg/platform/sentinel"
	txcontext "kgcore/pkg/platform/tx"
)

// PostgresStore persists spaces in the spaces table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
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

func (s *PostgresStore) Get(ctx context.Context, name domain.SpaceName) (*Space, error) {
	query := `
		SELECT name, auto_release, client_space, created_by, created_at
		FROM spaces WHERE name = $1
	`
	var sp Space
	var createdBy string
	err := s.execer(ctx).QueryRowContext(ctx, query, string(name)).
		Scan(&sp.Name, &sp.AutoRelease, &sp.ClientSpace, &createdBy, &sp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find space: %w", err)
	}
	sp.CreatedBy = domain.UserID(createdBy)
	return &sp, nil
}

func (s *PostgresStore) Save(ctx context.Context, sp Space) error {
	query := `
		INSERT INTO spaces (name, auto_release, client_space, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET auto_release = EXCLUDED.auto_release, client_space = EXCLUDED.client_space
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		string(sp.Name), sp.AutoRelease, sp.ClientSpace, string(sp.CreatedBy), sp.CreatedAt)
	if err != nil {
		return fmt.Errorf("save space: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Space, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT name, auto_release, client_space, created_by, created_at
		FROM spaces ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	var out []Space
	for rows.Next() {
		var sp Space
		var createdBy string
		if err := rows.Scan(&sp.Name, &sp.AutoRelease, &sp.ClientSpace, &createdBy, &sp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		sp.CreatedBy = domain.UserID(createdBy)
		out = append(out, sp)
	}
	return out, rows.Err()
}
