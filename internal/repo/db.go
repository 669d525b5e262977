package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"      // registers "pgx" database/sql driver
	_ "github.com/ncruces/go-sqlite3/driver" // registers "sqlite3" database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the Sqlite WASM runtime, no cgo
)

// Open opens a database/sql handle for the configured provider and returns
// the dialect adapter alongside it. Defaults to Sqlite when provider is
// empty, matching spec's configuration default.
func Open(ctx context.Context, provider Provider, dsn string) (*sql.DB, Dialect, error) {
	dialect, driverName, err := dialectFor(provider)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driverName, err)
	}

	if dialect.Name() == string(ProviderSqlite) {
		// Sqlite serializes writers internally; a single connection
		// avoids SQLITE_BUSY churn from our own connection pool
		// fighting itself.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}

	return db, dialect, nil
}
