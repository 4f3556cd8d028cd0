// Package metadata is the durable record of every ingested document. It owns
// the authoritative copy of extracted text and chunk embeddings; the vector
// index is only a rebuildable projection of what is stored here.
package metadata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"docqa/internal/domain"
)

// Store is a SQLite-backed document store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at dbPath and ensures the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pdf_extracts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			extracted_text TEXT,
			page_count INTEGER,
			extraction_date DATETIME,
			cleaned BOOLEAN,
			embedding_json TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("creating pdf_extracts table: %w", err)
	}
	return nil
}

// Insert appends a new document row. Re-ingesting the same filename inserts
// another row rather than updating; rows are immutable once written.
func (s *Store) Insert(doc *domain.Document) error {
	embeddings, err := json.Marshal(doc.ChunkEmbeddings)
	if err != nil {
		return fmt.Errorf("marshaling embeddings: %w", err)
	}
	date := doc.ExtractionDate
	if date.IsZero() {
		date = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO pdf_extracts (filename, extracted_text, page_count, extraction_date, cleaned, embedding_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.Filename, doc.ExtractedText, doc.PageCount, date, doc.Cleaned, string(embeddings))
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.Filename, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	doc.ID = id
	doc.ExtractionDate = date
	return nil
}

// GetByFilename returns the most recently inserted row for the filename, or
// domain.ErrNotFound.
func (s *Store) GetByFilename(filename string) (*domain.Document, error) {
	row := s.db.QueryRow(`
		SELECT id, filename, extracted_text, page_count, extraction_date, cleaned, embedding_json
		FROM pdf_extracts
		WHERE filename = ?
		ORDER BY id DESC
		LIMIT 1
	`, filename)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", filename, err)
	}
	return doc, nil
}

// All returns every stored document in insertion (id) order.
func (s *Store) All() ([]*domain.Document, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, extracted_text, page_count, extraction_date, cleaned, embedding_json
		FROM pdf_extracts
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of stored rows.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pdf_extracts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc           domain.Document
		embeddingJSON string
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.ExtractedText, &doc.PageCount,
		&doc.ExtractionDate, &doc.Cleaned, &embeddingJSON); err != nil {
		return nil, err
	}
	if embeddingJSON != "" {
		if err := json.Unmarshal([]byte(embeddingJSON), &doc.ChunkEmbeddings); err != nil {
			return nil, fmt.Errorf("unmarshaling embeddings: %w", err)
		}
	}
	return &doc, nil
}
