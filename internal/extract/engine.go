// Package extract resolves document metadata through ordered path-expression
// fallback and splits body text into deterministic overlapping chunks.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"docforge/internal/domaincfg"
)

// Error marks a failure while parsing structured content or resolving fields.
type Error struct {
	DocumentID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Metadata is the resolved per-document metadata.
type Metadata struct {
	Title    string
	Authors  []string
	Date     string
	Keywords []string
	Body     string
	Extras   map[string]string
}

type Engine struct {
	registry *domaincfg.Registry
}

func NewEngine(registry *domaincfg.Registry) *Engine {
	return &Engine{registry: registry}
}

// Extract parses the canonical XML content and resolves each configured field.
// Per field, the expressions are tried in configured order and the first one
// yielding a non-empty match wins; later expressions are never evaluated.
// A field with no matching expression is left empty, never an error.
func (e *Engine) Extract(documentID string, structured []byte, domain, variant string) (*Metadata, error) {
	fields, err := e.registry.Variant(domain, variant)
	if err != nil {
		return nil, &Error{DocumentID: documentID, Err: err}
	}

	doc, err := xmlquery.Parse(bytes.NewReader(structured))
	if err != nil {
		return nil, &Error{DocumentID: documentID, Err: fmt.Errorf("parse structured content: %w", err)}
	}

	md := &Metadata{Extras: map[string]string{}}

	if exprs, ok := fields.Lookup(domaincfg.FieldTitle); ok {
		md.Title = resolveFirst(doc, exprs)
	}
	if exprs, ok := fields.Lookup(domaincfg.FieldAuthors); ok {
		md.Authors = resolveAll(doc, exprs)
	}
	if exprs, ok := fields.Lookup(domaincfg.FieldCreatedDate); ok {
		md.Date = resolveFirst(doc, exprs)
	}
	if exprs, ok := fields.Lookup(domaincfg.FieldKeywords); ok {
		md.Keywords = resolveAll(doc, exprs)
	}
	if exprs, ok := fields.Lookup(domaincfg.FieldProdInfo); ok {
		if v := resolveFirst(doc, exprs); v != "" {
			md.Extras[domaincfg.FieldProdInfo] = v
		}
	}
	if exprs, ok := fields.Lookup(domaincfg.FieldOtherMeta); ok {
		if vals := resolveAll(doc, exprs); len(vals) > 0 {
			md.Extras[domaincfg.FieldOtherMeta] = strings.Join(vals, "; ")
		}
	}
	if exprs, ok := fields.Lookup(domaincfg.FieldBody); ok {
		// A body expression may match several nodes (multi-section documents);
		// all matches of the winning expression are joined in document order.
		md.Body = strings.Join(resolveAll(doc, exprs), "\n\n")
	}

	return md, nil
}

// resolveFirst returns the first non-empty match of the first expression that
// matches anything.
func resolveFirst(doc *xmlquery.Node, exprs []string) string {
	for _, expr := range exprs {
		if matches := evaluate(doc, expr); len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}

// resolveAll returns every non-empty match of the winning expression, in
// document order.
func resolveAll(doc *xmlquery.Node, exprs []string) []string {
	for _, expr := range exprs {
		if matches := evaluate(doc, expr); len(matches) > 0 {
			return matches
		}
	}
	return nil
}

func evaluate(doc *xmlquery.Node, expr string) []string {
	nodes, err := xmlquery.QueryAll(doc, expr)
	if err != nil {
		// Expressions are compiled at config load; a failure here means the
		// expression does not apply to this document shape. Treat as no match.
		return nil
	}

	var matches []string
	for _, n := range nodes {
		text := strings.TrimSpace(n.InnerText())
		if text != "" {
			matches = append(matches, text)
		}
	}
	return matches
}
