package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBlobStore keeps blobs in a SQLite scratch database so large uploads do not sit
// in process memory. The table is emptied on open: documents live only as long as the
// process, and the file is spill space, not persistence.
type SQLiteBlobStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteBlobStore opens or creates the database at dbPath, creates the schema and
// removes any blobs left by a previous run. Parent directories are created if needed.
func NewSQLiteBlobStore(dbPath string) (*SQLiteBlobStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBlobStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		size INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	DELETE FROM blobs;
	`
	_, err := db.Exec(schema)
	return err
}

// Put stores data under id, replacing any existing blob.
func (s *SQLiteBlobStore) Put(ctx context.Context, id string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (id, data, size) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, size = excluded.size`,
		id, data, len(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store blob %s: %w", id, err)
	}
	return nil
}

// Get returns the blob stored under id.
func (s *SQLiteBlobStore) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the blob under id. Deleting a missing id is not an error.
func (s *SQLiteBlobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", id, err)
	}
	return nil
}

// Size returns the total number of stored bytes.
func (s *SQLiteBlobStore) Size(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM blobs`).Scan(&n)
	return n, err
}

// Path returns the database file path.
func (s *SQLiteBlobStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}
