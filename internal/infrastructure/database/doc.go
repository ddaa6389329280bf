// Package database provides the SQLite relational store for PetCare Core.
//
// It holds environments, registered devices and the device-environment
// links (alias, type, status, feeding interval, food amount). Time-series
// readings live in MongoDB, not here.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations loaded from an fs.FS (usually the embedded
//     migrations package)
//   - Transaction helpers for multi-row changes
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. New columns must be NULLABLE or carry a
// DEFAULT so older binaries keep working against a migrated file.
package database
