package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"docforge/features/document"
	"docforge/internal/domaincfg"
	"docforge/internal/extract"
	"docforge/internal/index"
	"docforge/internal/middleware"
	"docforge/internal/storage"
)

type Repository interface {
	Upsert(ctx context.Context, doc *document.Document) (document.Action, error)
	TransitionStatus(ctx context.Context, id string, from, to document.Status, failureMsg string) error
}

type Converter interface {
	Convert(ctx context.Context, filename string, content []byte) ([]byte, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ChunkIndexer interface {
	Index(ctx context.Context, doc index.DocumentFields, chunks []extract.Chunk, vectors [][]float32) (index.Report, error)
}

type CompletionDispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// Options are the pipeline tuning knobs, all bounded.
type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	ConvertTimeout time.Duration
	StorageTimeout time.Duration
	IndexTimeout   time.Duration
}

// Service is the pipeline orchestrator. Each document runs the stage sequence
// validate → place → record → extract → index → dispatch on a worker drawn
// from a bounded pool; documents in a batch are independent of each other.
type Service struct {
	repo       Repository
	store      storage.ObjectStore
	converter  Converter
	engine     *extract.Engine
	embedder   Embedder
	indexer    ChunkIndexer
	dispatcher CompletionDispatcher
	registry   *domaincfg.Registry
	validator  *Validator
	pool       *ants.Pool
	opts       Options
}

func NewService(
	repo Repository,
	store storage.ObjectStore,
	converter Converter,
	engine *extract.Engine,
	embedder Embedder,
	indexer ChunkIndexer,
	dispatcher CompletionDispatcher,
	registry *domaincfg.Registry,
	validator *Validator,
	concurrency int,
	opts Options,
) (*Service, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}
	return &Service{
		repo:       repo,
		store:      store,
		converter:  converter,
		engine:     engine,
		embedder:   embedder,
		indexer:    indexer,
		dispatcher: dispatcher,
		registry:   registry,
		validator:  validator,
		pool:       pool,
		opts:       opts,
	}, nil
}

// Release shuts the worker pool down. The service must not be used afterwards.
func (s *Service) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// File is one submitted file.
type File struct {
	Name        string
	Content     []byte
	ContentType string
}

// SubmitResponse is the synchronous acceptance result. Acceptance does not
// imply processing success; callers poll status by document identity.
type SubmitResponse struct {
	DocumentIDs []string `json:"document_ids"`
	Count       int      `json:"count"`
	Domain      string   `json:"domain"`
	Format      string   `json:"format"`
}

type pipelineJob struct {
	ID          string
	Filename    string
	Domain      string
	Variant     string
	Content     []byte
	ContentType string
	ParentID    string
	IsContainer bool
}

// SubmitBatch validates every file, expands archives into parent plus child
// jobs, and schedules each document's pipeline on the bounded pool. Validation
// errors reject the submission before any persistent state is created; after
// acceptance, one document's failure never aborts its siblings.
func (s *Service) SubmitBatch(ctx context.Context, files []File, domain, declaredFormat string) (*SubmitResponse, error) {
	if len(files) == 0 {
		return nil, &ValidationError{Check: CheckFormat, Value: "no files submitted"}
	}

	for _, f := range files {
		if err := s.validator.Validate(f.Name, declaredFormat, domain, int64(len(f.Content))); err != nil {
			return nil, err
		}
	}

	var jobs []pipelineJob
	for _, f := range files {
		if isArchive(f.Name) {
			expanded, err := s.expandContainer(f, domain)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, expanded...)
			continue
		}

		variant, err := s.registry.VariantFor(domain, formatOf(f.Name))
		if err != nil {
			return nil, &ValidationError{Check: CheckDomain, Value: err.Error()}
		}
		jobs = append(jobs, pipelineJob{
			ID:          uuid.New().String(),
			Filename:    f.Name,
			Domain:      domain,
			Variant:     variant,
			Content:     f.Content,
			ContentType: f.ContentType,
		})
	}

	// A child row references its parent through a foreign key, so the parent
	// record must exist before any child pipeline can run. Create it here,
	// before anything is scheduled.
	for _, job := range jobs {
		if job.IsContainer {
			if _, err := s.repo.Upsert(ctx, newDocument(job)); err != nil {
				return nil, fmt.Errorf("create container record: %w", err)
			}
		}
	}

	// The background path outlives the request: cancellation of the caller's
	// context must not cancel the pipeline.
	correlationID := middleware.GetCorrelationID(ctx)

	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		job := job
		ids = append(ids, job.ID)
		if err := s.pool.Submit(func() {
			bgCtx := middleware.WithCorrelationID(context.Background(), correlationID)
			s.process(bgCtx, job)
		}); err != nil {
			// Pool submission only fails when the pool is released; treat as
			// a stage failure for this document, keep the siblings going.
			slog.ErrorContext(ctx, "failed to schedule pipeline", "document_id", job.ID, "error", err)
			s.recordFailure(middleware.WithCorrelationID(context.Background(), correlationID), job, "schedule", err)
		}
	}

	return &SubmitResponse{
		DocumentIDs: ids,
		Count:       len(files),
		Domain:      domain,
		Format:      declaredFormat,
	}, nil
}

// expandContainer turns one archive into a parent job plus a child job per
// contained supported file.
func (s *Service) expandContainer(f File, domain string) ([]pipelineJob, error) {
	entries, err := expandArchive(f.Content)
	if err != nil {
		return nil, &ValidationError{Check: CheckFormat, Value: err.Error()}
	}

	parentID := uuid.New().String()
	jobs := []pipelineJob{{
		ID:          parentID,
		Filename:    f.Name,
		Domain:      domain,
		Content:     f.Content,
		ContentType: f.ContentType,
		IsContainer: true,
	}}

	for _, entry := range entries {
		variant, err := s.registry.VariantFor(domain, formatOf(entry.Name))
		if err != nil {
			return nil, &ValidationError{Check: CheckDomain, Value: err.Error()}
		}
		jobs = append(jobs, pipelineJob{
			ID:       uuid.New().String(),
			Filename: entry.Name,
			Domain:   domain,
			Variant:  variant,
			Content:  entry.Content,
			ParentID: parentID,
		})
	}
	return jobs, nil
}

// process drives one document through the synchronous pipeline stages. Every
// failure after acceptance lands on the record as status=failed; nothing here
// propagates back to the submitting caller.
func (s *Service) process(ctx context.Context, job pipelineJob) {
	doc := newDocument(job)

	// Place raw content.
	rawKey := storage.UploadKey(job.Domain, job.ID, job.Filename)
	if err := s.put(ctx, rawKey, job.Content); err != nil {
		s.recordFailure(ctx, job, "storage", err)
		return
	}
	doc.RawKey = rawKey

	// Create the record and begin processing. A transient failure here still
	// gets a second chance to leave a queryable failed record behind.
	if _, err := s.repo.Upsert(ctx, doc); err != nil {
		slog.ErrorContext(ctx, "failed to create document record", "document_id", job.ID, "error", err)
		s.recordFailure(ctx, job, "record", err)
		return
	}
	if err := s.repo.TransitionStatus(ctx, job.ID, document.StatusPending, document.StatusProcessing, ""); err != nil {
		slog.ErrorContext(ctx, "failed to begin processing", "document_id", job.ID, "error", err)
		return
	}

	// A container has no body of its own; its graph node still gets created
	// by the background worker, which also finalizes its status.
	if job.IsContainer {
		if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
			s.markFailed(ctx, job.ID, "dispatch", err)
		}
		return
	}

	// Convert to canonical structured content unless already structured.
	structured := job.Content
	if !isStructured(job.Filename) {
		converted, err := s.convert(ctx, job)
		if err != nil {
			s.markFailed(ctx, job.ID, "convert", err)
			return
		}
		structured = converted

		convertedKey := storage.ConvertedKey(job.Domain, job.ID, job.Filename+".xml")
		if err := s.put(ctx, convertedKey, structured); err != nil {
			s.markFailed(ctx, job.ID, "storage", err)
			return
		}
		doc.ConvertedKey = convertedKey
	}

	// Resolve metadata and merge it onto the record.
	md, err := s.engine.Extract(job.ID, structured, job.Domain, job.Variant)
	if err != nil {
		s.markFailed(ctx, job.ID, "extract", err)
		return
	}
	doc.Title = md.Title
	doc.Authors = md.Authors
	doc.Date = md.Date
	doc.Keywords = md.Keywords
	doc.Extras = md.Extras
	if _, err := s.repo.Upsert(ctx, doc); err != nil {
		s.markFailed(ctx, job.ID, "record", err)
		return
	}

	// Chunk, embed, index.
	chunks := extract.ChunkBody(md.Body, s.opts.ChunkSize, s.opts.ChunkOverlap)

	vectors := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		vec, err := s.embed(ctx, contextualText(md, job, chunk))
		if err != nil {
			s.markFailed(ctx, job.ID, "embed", err)
			return
		}
		vectors[i] = vec
	}

	fields := index.DocumentFields{
		ID:       job.ID,
		Title:    md.Title,
		Abstract: abstractOf(md.Body),
		Domain:   job.Domain,
		Keywords: md.Keywords,
		Extras:   md.Extras,
	}
	ictx, cancel := context.WithTimeout(ctx, s.opts.IndexTimeout)
	defer cancel()
	report, err := s.indexer.Index(ictx, fields, chunks, vectors)
	if err != nil {
		// The index.Error already carries the partial count for retry tooling.
		s.markFailed(ctx, job.ID, "index", err)
		return
	}

	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		s.markFailed(ctx, job.ID, "dispatch", err)
		return
	}

	slog.InfoContext(ctx, "document dispatched for completion",
		"document_id", job.ID, "chunks_indexed", report.ChunksIndexed, "total_chunks", report.TotalChunks)
}

func (s *Service) put(ctx context.Context, key string, content []byte) error {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StorageTimeout)
	defer cancel()
	return s.store.Put(sctx, key, bytes.NewReader(content))
}

func (s *Service) convert(ctx context.Context, job pipelineJob) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.ConvertTimeout)
	defer cancel()
	return s.converter.Convert(cctx, job.Filename, job.Content)
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, s.opts.IndexTimeout)
	defer cancel()
	return s.embedder.Embed(ectx, text)
}

// markFailed transitions processing → failed, recording the stage and cause.
func (s *Service) markFailed(ctx context.Context, id, stage string, cause error) {
	msg := fmt.Sprintf("%s: %v", stage, cause)
	slog.ErrorContext(ctx, "pipeline stage failed", "document_id", id, "stage", stage, "error", cause)
	if err := s.repo.TransitionStatus(ctx, id, document.StatusProcessing, document.StatusFailed, msg); err != nil {
		slog.ErrorContext(ctx, "failed to mark document failed", "document_id", id, "error", err)
	}
}

// recordFailure handles a failure before the record reached processing: the
// record is created (idempotent upsert) and walked through the state machine
// to failed, so the failure is inspectable via the status interface.
func (s *Service) recordFailure(ctx context.Context, job pipelineJob, stage string, cause error) {
	if _, err := s.repo.Upsert(ctx, newDocument(job)); err != nil {
		slog.ErrorContext(ctx, "failed to record failure", "document_id", job.ID, "error", err)
		return
	}
	if err := s.repo.TransitionStatus(ctx, job.ID, document.StatusPending, document.StatusProcessing, ""); err != nil {
		slog.ErrorContext(ctx, "failed to record failure", "document_id", job.ID, "error", err)
		return
	}
	s.markFailed(ctx, job.ID, stage, cause)
}

// newDocument is the base record for a job, before any pipeline stage has
// filled in keys or metadata.
func newDocument(job pipelineJob) *document.Document {
	return &document.Document{
		ID:          job.ID,
		Filename:    job.Filename,
		Domain:      job.Domain,
		Variant:     job.Variant,
		SizeBytes:   int64(len(job.Content)),
		ContentType: job.ContentType,
		ParentID:    job.ParentID,
		IsContainer: job.IsContainer,
	}
}

// contextualText prefixes the chunk with document context before embedding,
// so similar chunks from different documents stay separable in vector space.
func contextualText(md *extract.Metadata, job pipelineJob, chunk extract.Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nDomain: %s\nFile: %s", md.Title, job.Domain, job.Filename)
	if chunk.Section != "" {
		fmt.Fprintf(&b, "\nSection: %s", chunk.Section)
	}
	if len(md.Authors) > 0 {
		fmt.Fprintf(&b, "\nAuthors: %s", strings.Join(md.Authors, ", "))
	}
	if md.Date != "" {
		fmt.Fprintf(&b, "\nCreated: %s", md.Date)
	}
	fmt.Fprintf(&b, "\n---\n%s", chunk.Text)
	return b.String()
}

func formatOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

func isStructured(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xml", ".dita":
		return true
	}
	return false
}

// abstractOf is the denormalized abstract stored on every index record: the
// opening of the body, cut at a rune boundary.
func abstractOf(body string) string {
	const maxRunes = 280
	runes := []rune(body)
	if len(runes) <= maxRunes {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}
