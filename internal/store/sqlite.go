package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/amishk599/inboxsheet/internal/model"
)

// Ensure SQLiteSheet implements model.Sheet.
var _ model.Sheet = (*SQLiteSheet)(nil)

// SQLiteSheet keeps the sheet in a SQLite database, one table row per sheet
// row. row_no is the 1-based sheet row number; row 1 is the header.
type SQLiteSheet struct {
	db *sql.DB
}

// NewSQLiteSheet opens (or creates) a SQLite database at dbPath and ensures
// the sheet_rows table exists.
func NewSQLiteSheet(dbPath string) (*SQLiteSheet, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS sheet_rows (
		row_no     INTEGER PRIMARY KEY,
		cells      TEXT NOT NULL,
		written_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sheet_rows table: %w", err)
	}

	return &SQLiteSheet{db: db}, nil
}

func (s *SQLiteSheet) Header(ctx context.Context) ([]string, error) {
	var cells string
	err := s.db.QueryRowContext(ctx, "SELECT cells FROM sheet_rows WHERE row_no = 1").Scan(&cells)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header row: %w", err)
	}
	return decodeCells(cells)
}

func (s *SQLiteSheet) WriteHeader(ctx context.Context, header []string) error {
	cells, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sheet_rows (row_no, cells) VALUES (1, ?) ON CONFLICT(row_no) DO UPDATE SET cells = excluded.cells",
		string(cells))
	if err != nil {
		return fmt.Errorf("writing header row: %w", err)
	}
	return nil
}

// RowCount returns the number of the last occupied row.
func (s *SQLiteSheet) RowCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(row_no), 0) FROM sheet_rows").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sheet rows: %w", err)
	}
	return n, nil
}

func (s *SQLiteSheet) Rows(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT cells FROM sheet_rows ORDER BY row_no")
	if err != nil {
		return nil, fmt.Errorf("reading sheet rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("scanning sheet row: %w", err)
		}
		row, err := decodeCells(cells)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// AppendRows inserts all rows in one transaction after the last row.
func (s *SQLiteSheet) AppendRows(ctx context.Context, rows [][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	var last int
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(row_no), 0) FROM sheet_rows").Scan(&last); err != nil {
		return fmt.Errorf("counting sheet rows: %w", err)
	}
	for i, row := range rows {
		cells, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO sheet_rows (row_no, cells) VALUES (?, ?)", last+1+i, string(cells)); err != nil {
			return fmt.Errorf("appending row %d: %w", last+1+i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteSheet) Close() error {
	return s.db.Close()
}

func decodeCells(s string) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(s), &cells); err != nil {
		return nil, fmt.Errorf("decoding stored row: %w", err)
	}
	return cells, nil
}
