package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device and link persistence.
type Repository interface {
	// CreateDevice inserts a device and sets its ID.
	// Returns ErrEnvironmentNotFound if EnvironmentID does not exist.
	CreateDevice(ctx context.Context, d *Device) error

	// GetDevice returns ErrDeviceNotFound if the device does not exist.
	GetDevice(ctx context.Context, id int64) (*Device, error)

	ListDevices(ctx context.Context) ([]Device, error)

	// CreateLink inserts a device-environment link and sets its ID.
	CreateLink(ctx context.Context, l *Link) error

	// GetLink returns ErrLinkNotFound if the link does not exist.
	GetLink(ctx context.Context, id int64) (*Link, error)

	// ListLinks returns links, optionally filtered by environment and type.
	ListLinks(ctx context.Context, filter LinkFilter) ([]Link, error)

	// SaveLink writes the mutable fields of an existing link.
	SaveLink(ctx context.Context, l *Link) error
}

// LinkFilter narrows ListLinks. Zero values match everything.
type LinkFilter struct {
	EnvironmentID int64
	DeviceID      int64
	Type          Type
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateDevice inserts a new device.
func (r *SQLiteRepository) CreateDevice(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	query := `INSERT INTO devices (name, environment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		d.Name, nullableInt64(d.EnvironmentID), formatTime(now), formatTime(now))
	if err != nil {
		if isForeignKeyError(err) {
			return ErrEnvironmentNotFound
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading device id: %w", err)
	}
	d.ID = id
	return nil
}

// GetDevice retrieves a device by its identifier.
func (r *SQLiteRepository) GetDevice(ctx context.Context, id int64) (*Device, error) {
	query := `SELECT id, name, environment_id, created_at, updated_at
		FROM devices WHERE id = ?`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// ListDevices retrieves all devices ordered by name.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	query := `SELECT id, name, environment_id, created_at, updated_at
		FROM devices ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

const linkColumns = `id, alias, type, status, interval_minutes, food_grams, identifier,
	device_id, environment_id, cleaning_started_at, last_cleaned_at, created_at, updated_at`

// CreateLink inserts a new device-environment link.
func (r *SQLiteRepository) CreateLink(ctx context.Context, l *Link) error {
	if err := ValidateLink(l); err != nil {
		return err
	}

	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	query := `INSERT INTO device_environments (
			alias, type, status, interval_minutes, food_grams, identifier,
			device_id, environment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		l.Alias, string(l.Type), string(l.Status),
		nullableInt(l.Interval), nullableFloat(l.FoodGrams), l.Identifier,
		l.DeviceID, l.EnvironmentID, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: device or environment does not exist", ErrInvalidLink)
		}
		return fmt.Errorf("inserting link: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading link id: %w", err)
	}
	l.ID = id
	return nil
}

// GetLink retrieves a link by its identifier.
func (r *SQLiteRepository) GetLink(ctx context.Context, id int64) (*Link, error) {
	query := `SELECT ` + linkColumns + ` FROM device_environments WHERE id = ?`

	l, err := scanLink(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("querying link by id: %w", err)
	}
	return l, nil
}

// ListLinks retrieves links matching filter ordered by alias.
func (r *SQLiteRepository) ListLinks(ctx context.Context, filter LinkFilter) ([]Link, error) {
	var where []string
	var args []any
	if filter.EnvironmentID > 0 {
		where = append(where, "environment_id = ?")
		args = append(args, filter.EnvironmentID)
	}
	if filter.DeviceID > 0 {
		where = append(where, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := `SELECT ` + linkColumns + ` FROM device_environments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY alias, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		links = append(links, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating links: %w", err)
	}
	return links, nil
}

// SaveLink writes status, interval, food and cleaning timestamps.
func (r *SQLiteRepository) SaveLink(ctx context.Context, l *Link) error {
	l.UpdatedAt = time.Now().UTC()

	query := `UPDATE device_environments SET
			status = ?, interval_minutes = ?, food_grams = ?,
			cleaning_started_at = ?, last_cleaned_at = ?, updated_at = ?
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		string(l.Status), nullableInt(l.Interval), nullableFloat(l.FoodGrams),
		nullableTime(l.CleaningStartedAt), nullableTime(l.LastCleanedAt),
		formatTime(l.UpdatedAt), l.ID,
	)
	if err != nil {
		return fmt.Errorf("updating link %d: %w", l.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	var envID sql.NullInt64
	var createdAt, updatedAt string

	if err := s.Scan(&d.ID, &d.Name, &envID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if envID.Valid {
		d.EnvironmentID = &envID.Int64
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func scanLink(s scanner) (*Link, error) {
	var l Link
	var linkType, status, createdAt, updatedAt string
	var interval sql.NullInt64
	var food sql.NullFloat64
	var identifier, cleaningStarted, lastCleaned sql.NullString

	err := s.Scan(&l.ID, &l.Alias, &linkType, &status, &interval, &food, &identifier,
		&l.DeviceID, &l.EnvironmentID, &cleaningStarted, &lastCleaned, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	l.Type = Type(linkType)
	l.Status = Status(status)
	l.Identifier = identifier.String
	if interval.Valid {
		v := int(interval.Int64)
		l.Interval = &v
	}
	if food.Valid {
		l.FoodGrams = &food.Float64
	}
	l.CleaningStartedAt = parseNullableTime(cleaningStarted)
	l.LastCleanedAt = parseNullableTime(lastCleaned)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // written by this package
	return t
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
