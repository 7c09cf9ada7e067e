package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Upsert inserts the document with status pending, or merges the supplied
// fields into the existing row while preserving its status. Safe to call
// repeatedly with the same identifier.
func (r *PostgresRepo) Upsert(ctx context.Context, doc *Document) (Action, error) {
	extras, err := json.Marshal(orEmpty(doc.Extras))
	if err != nil {
		return "", fmt.Errorf("marshal extras: %w", err)
	}

	query := `
		INSERT INTO documents (
			id, filename, domain, variant, raw_key, converted_key, size_bytes,
			content_type, parent_id, is_container, status, title, authors,
			doc_date, keywords, extras, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10, 'pending', $11, $12, NULLIF($13, ''), $14, $15, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			filename      = EXCLUDED.filename,
			domain        = EXCLUDED.domain,
			variant       = EXCLUDED.variant,
			raw_key       = EXCLUDED.raw_key,
			converted_key = COALESCE(EXCLUDED.converted_key, documents.converted_key),
			size_bytes    = EXCLUDED.size_bytes,
			content_type  = EXCLUDED.content_type,
			is_container  = EXCLUDED.is_container,
			title         = EXCLUDED.title,
			authors       = EXCLUDED.authors,
			doc_date      = COALESCE(EXCLUDED.doc_date, documents.doc_date),
			keywords      = EXCLUDED.keywords,
			extras        = EXCLUDED.extras,
			updated_at    = NOW()
		RETURNING (xmax = 0)`

	var inserted bool
	err = r.db.QueryRowContext(ctx, query,
		doc.ID, doc.Filename, doc.Domain, doc.Variant, doc.RawKey, doc.ConvertedKey,
		doc.SizeBytes, doc.ContentType, doc.ParentID, doc.IsContainer,
		doc.Title, pq.Array(orEmptySlice(doc.Authors)), doc.Date,
		pq.Array(orEmptySlice(doc.Keywords)), extras,
	).Scan(&inserted)
	if err != nil {
		return "", err
	}

	if inserted {
		return ActionCreated, nil
	}
	return ActionUpdated, nil
}

// TransitionStatus moves a document from one status to another. The UPDATE is
// guarded on the expected current status, which doubles as the per-identifier
// compare-and-swap: a concurrent writer that already moved the row causes
// zero affected rows here, reported as ErrInvalidTransition.
func (r *PostgresRepo) TransitionStatus(ctx context.Context, id string, from, to Status, failureMsg string) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}

	query := `
		UPDATE documents SET
			status          = $1,
			failure_message = NULLIF($2, ''),
			processed_at    = CASE WHEN $1 IN ('completed', 'failed') THEN NOW() ELSE processed_at END,
			updated_at      = NOW()
		WHERE id = $3 AND status = $4`

	res, err := r.db.ExecContext(ctx, query, string(to), failureMsg, id, string(from))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: document %s is not in status %s", ErrInvalidTransition, id, from)
	}
	return nil
}

const selectColumns = `
	id, filename, domain, variant, raw_key, COALESCE(converted_key, ''),
	size_bytes, content_type, COALESCE(parent_id::text, ''), is_container,
	status, title, authors, COALESCE(doc_date, ''), keywords, extras,
	COALESCE(failure_message, ''), created_at, updated_at, processed_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	query := `SELECT` + selectColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT` + selectColumns + ` FROM documents ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Children returns the documents extracted from a container, in creation order.
func (r *PostgresRepo) Children(ctx context.Context, parentID string) ([]Document, error) {
	query := `SELECT` + selectColumns + ` FROM documents WHERE parent_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc       Document
		status    string
		extrasRaw []byte
	)
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.Domain, &doc.Variant, &doc.RawKey, &doc.ConvertedKey,
		&doc.SizeBytes, &doc.ContentType, &doc.ParentID, &doc.IsContainer,
		&status, &doc.Title, pq.Array(&doc.Authors), &doc.Date, pq.Array(&doc.Keywords),
		&extrasRaw, &doc.FailureMsg, &doc.CreatedAt, &doc.UpdatedAt, &doc.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = Status(status)
	if len(extrasRaw) > 0 {
		if err := json.Unmarshal(extrasRaw, &doc.Extras); err != nil {
			return nil, fmt.Errorf("unmarshal extras: %w", err)
		}
	}
	return &doc, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
