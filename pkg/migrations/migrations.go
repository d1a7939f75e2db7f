package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens (creating if necessary) the sqlite database at `path`, ":memory:"
// opens a private in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0700)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	// a single connection also keeps ":memory:" databases from being opened twice.
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, wrapOpenDB(err)
		}
	}

	return db, nil
}

func wrapOpenAndMigrate(err error) error {
	return fmt.Errorf("open and migrate db: %w", err)
}

// OpenAndMigrateDB opens the database and applies `schema` to it. The schema
// must be idempotent (CREATE ... IF NOT EXISTS).
func OpenAndMigrateDB(ctx context.Context, schema, path string) (*sql.DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, wrapOpenAndMigrate(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, wrapOpenAndMigrate(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, schema)
	if err != nil {
		db.Close()
		return nil, wrapOpenAndMigrate(err)
	}
	err = tx.Commit()
	if err != nil {
		db.Close()
		return nil, wrapOpenAndMigrate(err)
	}

	return db, nil
}
