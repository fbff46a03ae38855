// Package database provides the SQLite connection used by Iroh Core.
//
// The database holds timer history and the command audit trail. It is opened
// in WAL mode so the HTTP API can read while handlers write, and the file is
// restricted to its owner (0600).
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are pairs of YYYYMMDD_HHMMSS_name.up.sql and .down.sql files at
// the root of the supplied filesystem, normally the embedded migrations
// package.
package database
