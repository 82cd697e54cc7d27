// Package database opens the controller's SQLite database and applies its
// schema migrations.
//
// The database holds the durable copy of pending re-arms so that a SWITCH ON
// scheduled before a restart is still delivered after it.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package, which embeds
// them and registers them through MigrationsFS on import.
package database
