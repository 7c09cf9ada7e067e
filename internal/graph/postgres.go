package graph

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	kindDocument = "document"
	kindDomain   = "domain"
	kindAuthor   = "author"
	kindKeyword  = "keyword"
)

type PostgresUpdater struct {
	db *sql.DB
}

func NewPostgresUpdater(db *sql.DB) *PostgresUpdater {
	return &PostgresUpdater{db: db}
}

// Apply upserts the document node and its domain/author/keyword neighbours
// inside one transaction. Every statement is an ON CONFLICT upsert, so a
// redelivered task rewrites the same rows.
func (u *PostgresUpdater) Apply(ctx context.Context, snap Snapshot) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	docNode := nodeID(kindDocument, snap.DocumentID)
	if err := upsertNode(ctx, tx, docNode, kindDocument, snap.Title); err != nil {
		return err
	}

	if snap.Domain != "" {
		domainNode := nodeID(kindDomain, snap.Domain)
		if err := upsertNode(ctx, tx, domainNode, kindDomain, snap.Domain); err != nil {
			return err
		}
		if err := upsertEdge(ctx, tx, docNode, "in_domain", domainNode); err != nil {
			return err
		}
	}

	for _, author := range snap.Authors {
		authorNode := nodeID(kindAuthor, author)
		if err := upsertNode(ctx, tx, authorNode, kindAuthor, author); err != nil {
			return err
		}
		if err := upsertEdge(ctx, tx, docNode, "authored_by", authorNode); err != nil {
			return err
		}
	}

	for _, keyword := range snap.Keywords {
		keywordNode := nodeID(kindKeyword, keyword)
		if err := upsertNode(ctx, tx, keywordNode, kindKeyword, keyword); err != nil {
			return err
		}
		if err := upsertEdge(ctx, tx, docNode, "has_keyword", keywordNode); err != nil {
			return err
		}
	}

	if snap.ParentID != "" {
		parentNode := nodeID(kindDocument, snap.ParentID)
		if err := upsertNode(ctx, tx, parentNode, kindDocument, ""); err != nil {
			return err
		}
		if err := upsertEdge(ctx, tx, docNode, "child_of", parentNode); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func nodeID(kind, value string) string {
	return fmt.Sprintf("%s:%s", kind, value)
}

func upsertNode(ctx context.Context, tx *sql.Tx, id, kind, label string) error {
	query := `
		INSERT INTO graph_nodes (id, kind, label, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			label      = CASE WHEN EXCLUDED.label <> '' THEN EXCLUDED.label ELSE graph_nodes.label END,
			updated_at = NOW()`
	_, err := tx.ExecContext(ctx, query, id, kind, label)
	return err
}

func upsertEdge(ctx context.Context, tx *sql.Tx, src, relation, dst string) error {
	query := `
		INSERT INTO graph_edges (src, relation, dst)
		VALUES ($1, $2, $3)
		ON CONFLICT (src, relation, dst) DO NOTHING`
	_, err := tx.ExecContext(ctx, query, src, relation, dst)
	return err
}
