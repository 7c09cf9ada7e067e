package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"docforge/internal/domaincfg"
)

// Validation check identifiers, reported back to the caller so it can tell
// which check rejected the submission.
const (
	CheckExtension = "extension"
	CheckFormat    = "format"
	CheckDomain    = "domain"
	CheckSize      = "size"
)

// ValidationError is the only error surfaced synchronously to the submitting
// caller. No persistent state exists when it is returned.
type ValidationError struct {
	Check string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %q", e.Check, e.Value)
}

var supportedExtensions = map[string]bool{
	".xml":      true,
	".dita":     true,
	".html":     true,
	".htm":      true,
	".md":       true,
	".markdown": true,
	".docx":     true,
	".pptx":     true,
	".xlsx":     true,
	".zip":      true,
}

// SupportedExtension reports whether the file extension is ingestible.
func SupportedExtension(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

type Validator struct {
	registry *domaincfg.Registry
	maxBytes int64
}

func NewValidator(registry *domaincfg.Registry, maxBytes int64) *Validator {
	return &Validator{registry: registry, maxBytes: maxBytes}
}

// Validate runs the intake checks in order: extension, declared format,
// domain, size. The cheap checks run first; the caller streams the body only
// after they pass (the handler caps the actual read with MaxBytesReader).
func (v *Validator) Validate(filename, declaredFormat, domain string, declaredSize int64) error {
	if !SupportedExtension(filename) {
		return &ValidationError{Check: CheckExtension, Value: filepath.Ext(filename)}
	}

	if declaredFormat != "" {
		normalized := "." + strings.TrimPrefix(strings.ToLower(declaredFormat), ".")
		if !supportedExtensions[normalized] {
			return &ValidationError{Check: CheckFormat, Value: declaredFormat}
		}
	}

	if domain != "" && !v.registry.HasDomain(domain) {
		return &ValidationError{Check: CheckDomain, Value: domain}
	}

	if declaredSize > v.maxBytes {
		return &ValidationError{Check: CheckSize, Value: fmt.Sprintf("%d bytes (max %d)", declaredSize, v.maxBytes)}
	}

	return nil
}
