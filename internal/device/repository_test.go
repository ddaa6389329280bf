package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/petcare-core/internal/infrastructure/database"
	"github.com/nerrad567/petcare-core/migrations"
)

// setupTestDB opens a migrated in-memory database with one environment (id 1).
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.ExecContext(ctx,
		`INSERT INTO environments (name, color, created_at, updated_at) VALUES ('Cocina', '#fff', ?, ?)`,
		now, now); err != nil {
		t.Fatalf("failed to seed environment: %v", err)
	}
	return db.DB
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// createDevice inserts a device in environment 1.
func createDevice(t *testing.T, repo *SQLiteRepository, name string) *Device {
	t.Helper()
	d := &Device{Name: name, EnvironmentID: int64Ptr(1)}
	if err := repo.CreateDevice(context.Background(), d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	return d
}

func createLink(t *testing.T, repo *SQLiteRepository, l *Link) *Link {
	t.Helper()
	if err := repo.CreateLink(context.Background(), l); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	return l
}

func TestSQLiteRepository_CreateAndGetDevice(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	d := createDevice(t, repo, "ESP32 cocina")
	if d.ID == 0 {
		t.Fatal("CreateDevice() did not set ID")
	}

	got, err := repo.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.Name != "ESP32 cocina" {
		t.Errorf("Name = %q, want %q", got.Name, "ESP32 cocina")
	}
	if got.EnvironmentID == nil || *got.EnvironmentID != 1 {
		t.Errorf("EnvironmentID = %v, want 1", got.EnvironmentID)
	}
}

func TestSQLiteRepository_CreateDeviceErrors(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateDevice(ctx, &Device{Name: " "}); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("CreateDevice(blank) error = %v, want ErrInvalidDevice", err)
	}
	if err := repo.CreateDevice(ctx, &Device{Name: "x", EnvironmentID: int64Ptr(42)}); !errors.Is(err, ErrEnvironmentNotFound) {
		t.Errorf("CreateDevice(unknown env) error = %v, want ErrEnvironmentNotFound", err)
	}
	if _, err := repo.GetDevice(ctx, 99); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(99) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListDevices(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	createDevice(t, repo, "b")
	createDevice(t, repo, "a")

	devices, err := repo.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 || devices[0].Name != "a" || devices[1].Name != "b" {
		t.Errorf("ListDevices() = %+v, want a then b", devices)
	}
}

func TestSQLiteRepository_LinkRoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	d := createDevice(t, repo, "ESP32")

	l := createLink(t, repo, &Link{
		Alias:         "Arenero sala",
		Type:          TypeLitterBox,
		Interval:      intPtr(120),
		DeviceID:      d.ID,
		EnvironmentID: 1,
	})

	got, err := repo.GetLink(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetLink() error = %v", err)
	}
	if got.Status != StatusSupplied {
		t.Errorf("Status = %q, want default %q", got.Status, StatusSupplied)
	}
	if got.Interval == nil || *got.Interval != 120 {
		t.Errorf("Interval = %v, want 120", got.Interval)
	}
	if got.FoodGrams != nil {
		t.Errorf("FoodGrams = %v, want nil", *got.FoodGrams)
	}
	if got.Identifier == "" {
		t.Error("Identifier should be generated")
	}

	cleaned := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	got.Status = StatusDirty
	got.LastCleanedAt = &cleaned
	if err := repo.SaveLink(ctx, got); err != nil {
		t.Fatalf("SaveLink() error = %v", err)
	}

	saved, err := repo.GetLink(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetLink() error = %v", err)
	}
	if saved.Status != StatusDirty {
		t.Errorf("Status = %q, want %q", saved.Status, StatusDirty)
	}
	if saved.LastCleanedAt == nil || !saved.LastCleanedAt.Equal(cleaned) {
		t.Errorf("LastCleanedAt = %v, want %v", saved.LastCleanedAt, cleaned)
	}
	if saved.CleaningStartedAt != nil {
		t.Errorf("CleaningStartedAt = %v, want nil", saved.CleaningStartedAt)
	}
}

func TestSQLiteRepository_LinkErrors(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	d := createDevice(t, repo, "ESP32")

	tests := []struct {
		name    string
		link    Link
		wantErr error
	}{
		{"unknown type", Link{Alias: "x", Type: "pecera", DeviceID: d.ID, EnvironmentID: 1}, ErrInvalidLink},
		{"unknown status", Link{Alias: "x", Type: TypeFeeder, Status: "vacio", DeviceID: d.ID, EnvironmentID: 1}, ErrInvalidStatus},
		{"interval on feeder", Link{Alias: "x", Type: TypeFeeder, Interval: intPtr(5), DeviceID: d.ID, EnvironmentID: 1}, ErrUnsupported},
		{"zero interval", Link{Alias: "x", Type: TypeLitterBox, Interval: intPtr(0), DeviceID: d.ID, EnvironmentID: 1}, ErrInvalidInterval},
		{"food on waterer", Link{Alias: "x", Type: TypeWaterer, FoodGrams: floatPtr(5), DeviceID: d.ID, EnvironmentID: 1}, ErrUnsupported},
		{"missing device", Link{Alias: "x", Type: TypeFeeder, EnvironmentID: 1}, ErrInvalidLink},
		{"unknown environment", Link{Alias: "x", Type: TypeFeeder, DeviceID: d.ID, EnvironmentID: 7}, ErrInvalidLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.CreateLink(ctx, &tt.link)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateLink() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := repo.GetLink(ctx, 99); !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("GetLink(99) error = %v, want ErrLinkNotFound", err)
	}
	if err := repo.SaveLink(ctx, &Link{ID: 99, Status: StatusFull}); !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("SaveLink(99) error = %v, want ErrLinkNotFound", err)
	}
}

func TestSQLiteRepository_ListLinksFilter(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	d := createDevice(t, repo, "ESP32")

	createLink(t, repo, &Link{Alias: "Comedero", Type: TypeFeeder, DeviceID: d.ID, EnvironmentID: 1})
	createLink(t, repo, &Link{Alias: "Arenero", Type: TypeLitterBox, DeviceID: d.ID, EnvironmentID: 1})

	tests := []struct {
		name   string
		filter LinkFilter
		want   int
	}{
		{"all", LinkFilter{}, 2},
		{"by environment", LinkFilter{EnvironmentID: 1}, 2},
		{"by type", LinkFilter{Type: TypeLitterBox}, 1},
		{"by device", LinkFilter{DeviceID: d.ID}, 2},
		{"no match", LinkFilter{EnvironmentID: 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links, err := repo.ListLinks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListLinks() error = %v", err)
			}
			if len(links) != tt.want {
				t.Errorf("ListLinks() returned %d links, want %d", len(links), tt.want)
			}
		})
	}
}
