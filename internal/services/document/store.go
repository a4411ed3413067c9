// internal/services/document/store.go
package document

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"platform-services/internal/models"
)

var ErrNotFound = errors.New("document not found")

type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Document, error)
	ListAll(ctx context.Context, limit, offset int) ([]*models.Document, error)
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, note, reviewedBy string) (*models.Document, error)
	Delete(ctx context.Context, id string) error
	OwnerEmail(ctx context.Context, ownerID string) (string, error)
}

type sqlStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db}
}

const docColumns = `id, owner_id, filename, storage_key, content_type, size_bytes,
	status, COALESCE(review_note, ''), COALESCE(reviewed_by, ''), reviewed_at, created_at, updated_at`

func (s *sqlStore) Create(ctx context.Context, doc *models.Document) error {
	query := `INSERT INTO documents
		(id, owner_id, filename, storage_key, content_type, size_bytes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID, doc.OwnerID, doc.Filename, doc.StorageKey,
		doc.ContentType, doc.SizeBytes, doc.Status, doc.CreatedAt,
	)
	return err
}

func scanDocument(scanner interface{ Scan(...interface{}) error }) (*models.Document, error) {
	var doc models.Document
	var reviewedAt sql.NullTime
	err := scanner.Scan(
		&doc.ID, &doc.OwnerID, &doc.Filename, &doc.StorageKey,
		&doc.ContentType, &doc.SizeBytes, &doc.Status,
		&doc.ReviewNote, &doc.ReviewedBy, &reviewedAt,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if reviewedAt.Valid {
		doc.ReviewedAt = &reviewedAt.Time
	}
	return &doc, nil
}

func (s *sqlStore) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents WHERE id = $1`
	return scanDocument(s.db.QueryRowContext(ctx, query, id))
}

func (s *sqlStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (s *sqlStore) ListAll(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]*models.Document, error) {
	defer rows.Close()
	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateStatus writes the new review state. The state machine is enforced in
// the service; the WHERE clause on the current status guards against races
// between concurrent reviewers.
func (s *sqlStore) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, note, reviewedBy string) (*models.Document, error) {
	now := time.Now().UTC()
	var query string
	var row *sql.Row
	if status == models.DocumentPending {
		// Reset clears the previous review.
		query = `UPDATE documents
			SET status = $2, review_note = NULL, reviewed_by = NULL, reviewed_at = NULL, updated_at = $3
			WHERE id = $1 AND status = 'rejected'
			RETURNING ` + docColumns
		row = s.db.QueryRowContext(ctx, query, id, status, now)
	} else {
		query = `UPDATE documents
			SET status = $2, review_note = $3, reviewed_by = $4, reviewed_at = $5, updated_at = $5
			WHERE id = $1 AND status = 'pending'
			RETURNING ` + docColumns
		row = s.db.QueryRowContext(ctx, query, id, status, note, reviewedBy, now)
	}
	return scanDocument(row)
}

// OwnerEmail resolves the owner's address for review notifications.
func (s *sqlStore) OwnerEmail(ctx context.Context, ownerID string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx,
		`SELECT email FROM users WHERE id = $1 AND deleted_at IS NULL`, ownerID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return email, nil
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
