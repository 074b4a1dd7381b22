package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DocumentRepository handles document asset CRUD operations.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, owner_id, display_name, storage_key, size_bytes, uploaded_at,
	status, content_hash, thumbnail_url, thumbnail_kind, page_count, page_assets,
	ocr_text, text_spans, created_at, updated_at`

// Insert creates a new document asset record.
func (r *DocumentRepository) Insert(ctx context.Context, doc *DocumentAsset) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}

	query := `
		INSERT INTO document_assets (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID.String(), doc.OwnerID, doc.DisplayName, doc.StorageKey, doc.SizeBytes, doc.UploadedAt,
		doc.Status, doc.ContentHash, doc.ThumbnailURL, doc.ThumbnailKind, toNullInt(doc.PageCount),
		doc.PageAssets, doc.OCRText, doc.TextSpans, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetByID retrieves a document asset by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*DocumentAsset, error) {
	query := `SELECT ` + documentColumns + ` FROM document_assets WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id.String()))
}

// ListByOwner lists all document assets belonging to an owner, newest first.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*DocumentAsset, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM document_assets
		WHERE owner_id = $1
		ORDER BY uploaded_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*DocumentAsset
	for rows.Next() {
		doc, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// FindCompletedByOwnerAndHash finds the most recent completed record for an
// owner with matching content hash and at least one rendered page. Records
// that never produced page assets are not reuse candidates.
func (r *DocumentRepository) FindCompletedByOwnerAndHash(ctx context.Context, ownerID, hash string) (*DocumentAsset, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM document_assets
		WHERE owner_id = $1 AND content_hash = $2 AND status = $3
			AND page_assets IS NOT NULL AND page_assets != '[]' AND page_assets != ''
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, ownerID, hash, AssetStatusCompleted))
}

// Update applies a partial update in a single write. Only the fields present
// in the AssetUpdate are touched; any non-empty update refreshes updated_at.
func (r *DocumentRepository) Update(ctx context.Context, id uuid.UUID, upd AssetUpdate) error {
	// Nothing to write; skipping also leaves updated_at untouched.
	if upd.IsEmpty() {
		return nil
	}

	sets := []string{}
	args := []interface{}{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.ContentHash != nil {
		add("content_hash", *upd.ContentHash)
	}
	if upd.ThumbnailURL != nil {
		add("thumbnail_url", *upd.ThumbnailURL)
	}
	if upd.ThumbnailKind != nil {
		add("thumbnail_kind", *upd.ThumbnailKind)
	}
	if upd.PageAssets != nil {
		add("page_assets", upd.PageAssets)
	}
	if upd.PageCount != nil {
		add("page_count", *upd.PageCount)
	}
	if upd.OCRText != nil {
		add("ocr_text", *upd.OCRText)
	}
	if upd.TextSpans != nil {
		add("text_spans", upd.TextSpans)
	}
	add("updated_at", time.Now())

	args = append(args, id.String())
	query := fmt.Sprintf(
		"UPDATE document_assets SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args),
	)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document asset record.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM document_assets WHERE id = $1`, id.String())
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *DocumentRepository) scanOne(row *sql.Row) (*DocumentAsset, error) {
	doc, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (r *DocumentRepository) scanRow(row rowScanner) (*DocumentAsset, error) {
	doc := &DocumentAsset{}
	var id string
	var pageCount sql.NullInt64
	err := row.Scan(
		&id, &doc.OwnerID, &doc.DisplayName, &doc.StorageKey, &doc.SizeBytes, &doc.UploadedAt,
		&doc.Status, &doc.ContentHash, &doc.ThumbnailURL, &doc.ThumbnailKind, &pageCount,
		&doc.PageAssets, &doc.OCRText, &doc.TextSpans, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse document id: %w", err)
	}
	if pageCount.Valid {
		n := int(pageCount.Int64)
		doc.PageCount = &n
	}
	return doc, nil
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
