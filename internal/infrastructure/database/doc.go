// Package database provides SQLite connectivity for the plantcare field store.
//
// It manages:
//   - Connection setup (WAL mode, busy timeout, foreign keys) via mattn/go-sqlite3
//   - A single-connection pool so multi-statement writes are serialised
//   - Versioned SQL migrations read from any fs.FS
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are additive: new columns must be nullable or carry a
// default, and every .up.sql should ship with a .down.sql.
package database
