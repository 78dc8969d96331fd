package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/log"
	"kmlstore/pkg/models"
)

// sqliteSchema mirrors the record layout of the mongo collection. admin_id
// carries its own unique index for the secondary lookup.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kml_files (
	id TEXT PRIMARY KEY,
	admin_id TEXT NOT NULL,
	file_key TEXT NOT NULL,
	created TEXT NOT NULL,
	updated TEXT NOT NULL,
	length INTEGER NOT NULL,
	empty INTEGER NOT NULL,
	author TEXT NOT NULL,
	author_version TEXT NOT NULL,
	encoding TEXT NOT NULL,
	content_type TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_kml_files_admin_id ON kml_files(admin_id);
`

// SQLiteStore is the embedded metadata backend for single-node and local
// deployments, where running MongoDB next to the service is not worth it.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens the database file and initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrency
	if _, err := database.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := database.ExecContext(ctx, sqliteSchema); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: database}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kml_files
			(id, admin_id, file_key, created, updated, length, empty, author, author_version, encoding, content_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.AdminID, doc.FileKey, doc.Created, doc.Updated,
		doc.Length, doc.Empty, doc.Author, doc.AuthorVersion, doc.Encoding, doc.ContentType,
	)
	if err != nil {
		return fmt.Errorf("metadata create %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, admin_id, file_key, created, updated, length, empty, author, author_version, encoding, content_type
		FROM kml_files WHERE id = ?`, id), id)
}

func (s *SQLiteStore) GetByAdminID(ctx context.Context, adminID string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, admin_id, file_key, created, updated, length, empty, author, author_version, encoding, content_type
		FROM kml_files WHERE admin_id = ? ORDER BY id`, adminID)
	if err != nil {
		return nil, fmt.Errorf("metadata get_by_admin_id: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc := &models.Document{}
		if err := rows.Scan(&doc.ID, &doc.AdminID, &doc.FileKey, &doc.Created, &doc.Updated,
			&doc.Length, &doc.Empty, &doc.Author, &doc.AuthorVersion, &doc.Encoding, &doc.ContentType); err != nil {
			return nil, fmt.Errorf("metadata get_by_admin_id scan: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata get_by_admin_id: %w", err)
	}

	if len(docs) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "Could not find document")
	}
	if len(docs) > 1 {
		log.Error().Int("matches", len(docs)).Msg("Multiple records share one admin_id")
	}
	return docs[0], nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, upd models.DocumentUpdate) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE kml_files SET updated = ?, length = ?, empty = ?, author_version = ? WHERE id = ?`,
		upd.Updated, upd.Length, upd.Empty, upd.AuthorVersion, id)
	if err != nil {
		return nil, fmt.Errorf("metadata update %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("metadata update %s: %w", id, err)
	}
	if affected == 0 {
		return nil, apperr.Newf(apperr.KindNotFound, "Could not find %s within the database.", id)
	}

	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, admin_id, file_key, created, updated, length, empty, author, author_version, encoding, content_type
		FROM kml_files WHERE id = ?`, id), id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kml_files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("metadata delete %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) scanOne(row *sql.Row, id string) (*models.Document, error) {
	doc := &models.Document{}
	err := row.Scan(&doc.ID, &doc.AdminID, &doc.FileKey, &doc.Created, &doc.Updated,
		&doc.Length, &doc.Empty, &doc.Author, &doc.AuthorVersion, &doc.Encoding, &doc.ContentType)
	if errors.Is(err, sql.ErrNoRows) {
		log.Error().Str("id", id).Msg("Could not find the kml id in the database")
		return nil, apperr.Newf(apperr.KindNotFound, "Could not find %s within the database.", id)
	}
	if err != nil {
		return nil, fmt.Errorf("metadata get %s: %w", id, err)
	}
	return doc, nil
}
