package gateway

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/logger"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// knownTables are the tables this store serves. Listing any other table
// returns ErrTableNotFound, which callers treat as "no data yet".
var knownTables = map[string]bool{
	"receivables":            true,
	"payables":               true,
	"reconciliation_records": true,
	"reconciliation_imports": true,
}

// schema stores every table as JSON payload rows. The partial unique index
// is the storage-layer guard against double-processing: at most one live
// reconciliation record per (tenant, fitId).
const schema = `
CREATE TABLE IF NOT EXISTS gateway_rows (
    id TEXT NOT NULL,
    tbl TEXT NOT NULL,
    payload TEXT NOT NULL,
    deleted_at TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    updated_at TEXT,
    PRIMARY KEY (tbl, id)
);

CREATE INDEX IF NOT EXISTS idx_gateway_rows_tbl
    ON gateway_rows (tbl);

CREATE UNIQUE INDEX IF NOT EXISTS idx_recon_records_tenant_fitid
    ON gateway_rows (json_extract(payload, '$.tenant_id'), json_extract(payload, '$.fit_id'))
    WHERE tbl = 'reconciliation_records' AND deleted_at IS NULL;
`

// SQLiteStore is the durable Gateway implementation.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path, with
// WAL mode enabled and the schema initialized.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.GetGlobalLogger().WithComponent("sqlite_gateway"),
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns the rows of table matching opts.
func (s *SQLiteStore) List(ctx context.Context, table string, opts ListOptions) ([]Row, error) {
	if !knownTables[table] {
		return nil, ErrTableNotFound
	}

	query := "SELECT id, payload FROM gateway_rows WHERE tbl = ?"
	args := []interface{}{table}

	if !opts.IncludeDeleted {
		query += " AND deleted_at IS NULL"
	}

	for _, f := range opts.Filters {
		clause, clauseArgs, err := filterClause(f)
		if err != nil {
			return nil, err
		}
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	if opts.SortField != "" {
		direction := "ASC"
		if opts.SortDesc {
			direction = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY json_extract(payload, '$.%s') %s", sanitizeField(opts.SortField), direction)
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("list %s: %w", table, err)
		}
		row := Row{}
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("Skipping row with malformed payload")
			continue
		}
		row["id"] = id
		result = append(result, row)
	}
	return result, rows.Err()
}

// Create inserts a new row, generating an id when the payload has none.
func (s *SQLiteStore) Create(ctx context.Context, table string, payload Row) (Row, error) {
	if !knownTables[table] {
		return nil, ErrTableNotFound
	}

	id := payload.String("id")
	if id == "" {
		id = NewID()
	}

	stored := clone(payload)
	stored["id"] = id
	encoded, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO gateway_rows (id, tbl, payload) VALUES (?, ?, ?)", id, table, string(encoded))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create %s: %w", table, err)
	}

	return stored, nil
}

// Update merges the payload into the existing row identified by payload["id"].
func (s *SQLiteStore) Update(ctx context.Context, table string, payload Row) (Row, error) {
	if !knownTables[table] {
		return nil, ErrTableNotFound
	}
	id := payload.String("id")
	if id == "" {
		return nil, fmt.Errorf("update %s: payload id is required", table)
	}

	var existing string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM gateway_rows WHERE tbl = ? AND id = ? AND deleted_at IS NULL",
		table, id).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}

	merged := Row{}
	if err := json.Unmarshal([]byte(existing), &merged); err != nil {
		return nil, fmt.Errorf("update %s: malformed stored payload: %w", table, err)
	}
	for k, v := range payload {
		merged[k] = v
	}
	merged["id"] = id

	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE gateway_rows SET payload = ?, updated_at = ? WHERE tbl = ? AND id = ?",
		string(encoded), time.Now().UTC().Format(time.RFC3339), table, id)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}

	return merged, nil
}

// filterClause renders one filter as a SQL fragment over the JSON payload.
func filterClause(f Filter) (string, []interface{}, error) {
	field := sanitizeField(f.Field)
	extract := fmt.Sprintf("json_extract(payload, '$.%s')", field)

	switch f.Op {
	case OpEqual:
		return extract + " = ?", []interface{}{f.Value}, nil
	case OpGTE:
		return extract + " >= ?", []interface{}{f.Value}, nil
	case OpLTE:
		return extract + " <= ?", []interface{}{f.Value}, nil
	case OpIn:
		values, ok := f.Value.([]string)
		if !ok || len(values) == 0 {
			return "", nil, fmt.Errorf("filter %s: 'in' requires a non-empty []string", f.Field)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		args := make([]interface{}, len(values))
		for i, v := range values {
			args[i] = v
		}
		return fmt.Sprintf("%s IN (%s)", extract, placeholders), args, nil
	default:
		return "", nil, fmt.Errorf("filter %s: unsupported operator %q", f.Field, f.Op)
	}
}

// sanitizeField keeps filter fields to identifier characters; the field is
// interpolated into the json_extract path, not bound.
func sanitizeField(field string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return -1
	}, field)
}

func clone(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// NewID returns a random 16-byte hex identifier.
func NewID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back to a
		// timestamp so writes still have distinct ids.
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
