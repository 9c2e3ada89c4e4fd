// Package database provides the SQLite store behind TypePilot's session
// history and learning topics.
//
// It manages:
//   - the connection (WAL mode, busy timeout, single writer)
//   - versioned schema migrations read from an fs.FS
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLABLE or carry a DEFAULT,
// and every .up.sql has a matching .down.sql.
package database
