// Package domaincfg loads the per-domain field-extraction configuration.
// The registry is read-only after Load and safe to share across workers.
package domaincfg

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/antchfx/xpath"
	"gopkg.in/yaml.v3"
)

// Well-known field names. A variant may configure any subset; an absent field
// means "not configured, skip", which is distinct from an empty path list.
const (
	FieldTitle       = "title"
	FieldAuthors     = "authors"
	FieldCreatedDate = "createdDate"
	FieldKeywords    = "keywords"
	FieldProdInfo    = "prodinfo"
	FieldOtherMeta   = "othermeta"
	FieldBody        = "body"
)

// FieldPaths maps a field name to its ordered list of path expressions.
// Order is the fallback order: the first expression that matches wins.
type FieldPaths map[string][]string

// Lookup distinguishes an unconfigured field (ok=false) from a configured
// field with an empty expression list.
func (f FieldPaths) Lookup(field string) ([]string, bool) {
	exprs, ok := f[field]
	return exprs, ok
}

type domainEntry struct {
	DefaultVariant string                `yaml:"default_variant"`
	FormatVariants map[string]string     `yaml:"format_variants"`
	Variants       map[string]FieldPaths `yaml:"variants"`
}

// Registry holds the validated domain configuration.
type Registry struct {
	domains map[string]domainEntry
}

// Load reads and validates the domain configuration file. Malformed entries
// fail startup, not per-request: every path expression is compiled here.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Registry, error) {
	var domains map[string]domainEntry
	if err := yaml.Unmarshal(raw, &domains); err != nil {
		return nil, fmt.Errorf("parse domain config: %w", err)
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("domain config is empty")
	}

	for domain, entry := range domains {
		if strings.TrimSpace(domain) == "" {
			return nil, fmt.Errorf("domain config: blank domain name")
		}
		if len(entry.Variants) == 0 {
			return nil, fmt.Errorf("domain %q: at least one variant required", domain)
		}
		if entry.DefaultVariant != "" {
			if _, ok := entry.Variants[entry.DefaultVariant]; !ok {
				return nil, fmt.Errorf("domain %q: default_variant %q is not a variant", domain, entry.DefaultVariant)
			}
		}
		for format, variant := range entry.FormatVariants {
			if _, ok := entry.Variants[variant]; !ok {
				return nil, fmt.Errorf("domain %q: format %q maps to unknown variant %q", domain, format, variant)
			}
		}
		for variant, fields := range entry.Variants {
			if strings.TrimSpace(variant) == "" {
				return nil, fmt.Errorf("domain %q: blank variant name", domain)
			}
			for field, exprs := range fields {
				for i, expr := range exprs {
					if strings.TrimSpace(expr) == "" {
						return nil, fmt.Errorf("domain %q variant %q field %q: blank expression at position %d", domain, variant, field, i)
					}
					if _, err := xpath.Compile(expr); err != nil {
						return nil, fmt.Errorf("domain %q variant %q field %q: %q: %w", domain, variant, field, expr, err)
					}
				}
			}
		}
	}

	return &Registry{domains: domains}, nil
}

// HasDomain reports whether the domain is configured.
func (r *Registry) HasDomain(domain string) bool {
	_, ok := r.domains[domain]
	return ok
}

// Domains lists the configured domain names, sorted.
func (r *Registry) Domains() []string {
	names := make([]string, 0, len(r.domains))
	for name := range r.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VariantFor derives the variant name for a domain and document format
// (lowercase extension without the dot). Falls back to the domain's default
// variant when the format has no explicit mapping.
func (r *Registry) VariantFor(domain, format string) (string, error) {
	entry, ok := r.domains[domain]
	if !ok {
		return "", fmt.Errorf("unknown domain %q", domain)
	}
	if v, ok := entry.FormatVariants[format]; ok {
		return v, nil
	}
	if entry.DefaultVariant != "" {
		return entry.DefaultVariant, nil
	}
	// Single-variant domains need no explicit default.
	if len(entry.Variants) == 1 {
		for name := range entry.Variants {
			return name, nil
		}
	}
	return "", fmt.Errorf("domain %q: no variant for format %q and no default_variant", domain, format)
}

// Variant returns the field path lists for a domain variant.
func (r *Registry) Variant(domain, variant string) (FieldPaths, error) {
	entry, ok := r.domains[domain]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
	fields, ok := entry.Variants[variant]
	if !ok {
		return nil, fmt.Errorf("domain %q: unknown variant %q", domain, variant)
	}
	return fields, nil
}
