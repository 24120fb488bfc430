package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteLedger implements the Ledger interface on a usage_log table.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (or creates) the database at path and applies the
// embedded migrations.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite ledger: %w", err)
	}
	// a single connection serialises writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite ledger: %w", err)
	}

	if err := runMigrations(path); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteLedger{db: db}, nil
}

func runMigrations(path string) error {
	migrateDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating sqlite migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running ledger migrations: %w", err)
	}
	return nil
}

// Append inserts one row in its own transaction
func (l *SQLiteLedger) Append(ctx context.Context, entry Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO usage_log (timestamp, image_path, input_tokens, output_tokens, total_cost, image_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.Format(time.RFC3339),
		entry.ImagePath,
		entry.InputTokens,
		entry.OutputTokens,
		entry.TotalCost,
		entry.ImageHash,
	)
	if err != nil {
		return fmt.Errorf("inserting ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger entry: %w", err)
	}
	return nil
}

// Fingerprints returns the distinct non-empty image hashes
func (l *SQLiteLedger) Fingerprints(ctx context.Context) (FingerprintSet, error) {
	set := make(FingerprintSet)

	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT image_hash FROM usage_log WHERE image_hash <> ''`)
	if err != nil {
		return set, fmt.Errorf("querying fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return set, fmt.Errorf("scanning fingerprint: %w", err)
		}
		set.Add(fp)
	}
	if err := rows.Err(); err != nil {
		return set, fmt.Errorf("iterating fingerprints: %w", err)
	}
	return set, nil
}

// Close closes the database connection
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
