package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quantarax/wiretransport/transfer"
)

// SQLiteFileStore is a durable FileStore. Adapted from the teacher's
// PersistentStore (daemon/manager/persistence.go): same connection-pool
// settings and INSERT OR REPLACE idiom, restructured around one row per
// stored file plus one row per chunk rather than session/bitmap rows.
type SQLiteFileStore struct {
	db *sql.DB
}

// NewSQLiteFileStore opens (creating if absent) a SQLite database at
// dbPath and ensures its schema exists.
func NewSQLiteFileStore(dbPath string) (*SQLiteFileStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteFileStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteFileStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS files (
			content_id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			size INTEGER NOT NULL,
			mime_type TEXT NOT NULL,
			encrypted INTEGER NOT NULL,
			total_chunks INTEGER NOT NULL,
			client_file_id TEXT NOT NULL,
			stored_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS file_chunks (
			content_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (content_id, chunk_index),
			FOREIGN KEY (content_id) REFERENCES files(content_id) ON DELETE CASCADE
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteFileStore) GetFile(contentID string) (*transfer.StoredFile, error) {
	var (
		filename, mimeType, clientFileID string
		size                             uint64
		encryptedInt                     int
		totalChunks                      uint64
	)
	row := s.db.QueryRow(
		`SELECT filename, size, mime_type, encrypted, total_chunks, client_file_id FROM files WHERE content_id = ?`,
		contentID,
	)
	err := row.Scan(&filename, &size, &mimeType, &encryptedInt, &totalChunks, &clientFileID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT chunk_index, data FROM file_chunks WHERE content_id = ? ORDER BY chunk_index ASC`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([][]byte, totalChunks)
	for rows.Next() {
		var idx uint64
		var data []byte
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if idx < totalChunks {
			chunks[idx] = data
		}
	}

	return &transfer.StoredFile{
		Chunks: chunks,
		Metadata: transfer.UploadMetadata{
			ClientFileID: clientFileID, Filename: filename, Size: size,
			MimeType: mimeType, Encrypted: encryptedInt != 0, TotalChunks: totalChunks,
		},
	}, nil
}

func (s *SQLiteFileStore) StoreFileFromUpload(result *transfer.UploadResult) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	encryptedInt := 0
	if result.Metadata.Encrypted {
		encryptedInt = 1
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO files
		 (content_id, filename, size, mime_type, encrypted, total_chunks, client_file_id, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ContentID, result.Metadata.Filename, result.Metadata.Size, result.Metadata.MimeType,
		encryptedInt, result.Metadata.TotalChunks, result.Metadata.ClientFileID, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM file_chunks WHERE content_id = ?`, result.ContentID); err != nil {
		return "", fmt.Errorf("failed to clear stale chunks: %w", err)
	}
	for i, data := range result.Chunks {
		if _, err := tx.Exec(
			`INSERT INTO file_chunks (content_id, chunk_index, data) VALUES (?, ?, ?)`,
			result.ContentID, i, data,
		); err != nil {
			return "", fmt.Errorf("failed to save chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result.ContentID, nil
}

func (s *SQLiteFileStore) DeleteFile(contentID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM file_chunks WHERE content_id = ?`, contentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE content_id = ?`, contentID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database handle.
func (s *SQLiteFileStore) Close() error { return s.db.Close() }
