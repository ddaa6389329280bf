package environment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for environment persistence operations.
type Repository interface {
	Create(ctx context.Context, env *Environment) error
	List(ctx context.Context) ([]Environment, error)
	GetByID(ctx context.Context, id int64) (*Environment, error)
	Update(ctx context.Context, env *Environment) error
	Delete(ctx context.Context, id int64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed environment repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new environment and sets its ID and timestamps.
func (r *SQLiteRepository) Create(ctx context.Context, env *Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	env.CreatedAt = now
	env.UpdatedAt = now

	const query = `INSERT INTO environments (name, color, created_at, updated_at)
		VALUES (?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		env.Name, env.Color, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("inserting environment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading environment id: %w", err)
	}
	env.ID = id
	return nil
}

// List returns all environments ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Environment, error) {
	const query = `SELECT id, name, color, created_at, updated_at
		FROM environments ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying environments: %w", err)
	}
	defer rows.Close()

	var envs []Environment
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if err != nil {
			return nil, err
		}
		envs = append(envs, *env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating environments: %w", err)
	}
	return envs, nil
}

// GetByID returns a single environment.
// Returns ErrEnvironmentNotFound if it does not exist.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Environment, error) {
	const query = `SELECT id, name, color, created_at, updated_at
		FROM environments WHERE id = ?`

	env, err := scanEnvironment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnvironmentNotFound
		}
		return nil, err
	}
	return env, nil
}

// Update replaces the name and color of an existing environment.
func (r *SQLiteRepository) Update(ctx context.Context, env *Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}

	env.UpdatedAt = time.Now().UTC()
	const query = `UPDATE environments SET name = ?, color = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, env.Name, env.Color, formatTime(env.UpdatedAt), env.ID)
	if err != nil {
		return fmt.Errorf("updating environment %d: %w", env.ID, err)
	}
	return requireAffected(result)
}

// Delete removes an environment. Links to it are removed by cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM environments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting environment %d: %w", id, err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEnvironmentNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEnvironment(s scanner) (*Environment, error) {
	var env Environment
	var createdAt, updatedAt string
	if err := s.Scan(&env.ID, &env.Name, &env.Color, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning environment: %w", err)
	}
	env.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by this package
	env.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by this package
	return &env, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
