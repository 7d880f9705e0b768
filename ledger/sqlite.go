// SQLite-backed usage ledger.
//
// Information Hiding:
// - SQLite connection management hidden behind the Ledger interface
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteLedger persists usage records in a SQLite database file.
type SqliteLedger struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite ledger at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteLedger, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite ledger: %w", err)
	}

	ledger := &SqliteLedger{db: db}
	if err := ledger.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return ledger, nil
}

// NewSqliteInMemory creates an in-memory ledger (useful for testing).
func NewSqliteInMemory() (*SqliteLedger, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	ledger := &SqliteLedger{db: db}
	if err := ledger.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return ledger, nil
}

// Close closes the database connection.
func (l *SqliteLedger) Close() error {
	return l.db.Close()
}

func (l *SqliteLedger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS usage_records (
			id TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL,
			operation TEXT NOT NULL,
			provider TEXT NOT NULL,
			latency_ns INTEGER NOT NULL,
			success INTEGER NOT NULL,
			estimated_cost REAL NOT NULL,
			detail TEXT,
			seq INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_usage_provider
		ON usage_records(provider, recorded_at);

		CREATE INDEX IF NOT EXISTS idx_usage_operation
		ON usage_records(operation, recorded_at);
	`

	_, err := l.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append stores one record.
func (l *SqliteLedger) Append(ctx context.Context, rec Record) error {
	stamp(&rec)

	success := 0
	if rec.Success {
		success = 1
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage_records
		 (id, recorded_at, operation, provider, latency_ns, success, estimated_cost, detail, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?,
		   (SELECT COALESCE(MAX(seq), 0) + 1 FROM usage_records))`,
		rec.ID, rec.Timestamp.UnixNano(), rec.Operation, rec.Provider,
		int64(rec.Latency), success, rec.EstimatedCost, rec.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}
	return nil
}

// Records returns all records in append order.
func (l *SqliteLedger) Records(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, recorded_at, operation, provider, latency_ns, success, estimated_cost, detail
		 FROM usage_records ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var recordedAt, latency int64
		var success int
		var detail sql.NullString
		if err := rows.Scan(&rec.ID, &recordedAt, &rec.Operation, &rec.Provider,
			&latency, &success, &rec.EstimatedCost, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		rec.Timestamp = time.Unix(0, recordedAt).UTC()
		rec.Latency = time.Duration(latency)
		rec.Success = success == 1
		rec.Detail = detail.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}
	return records, nil
}

// Stats computes the rollup over all records.
func (l *SqliteLedger) Stats(ctx context.Context) (Stats, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return Stats{}, err
	}
	return rollup(records), nil
}

var _ Ledger = (*SqliteLedger)(nil)
