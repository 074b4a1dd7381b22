// Package ingest provides the document ingestion pipeline for the Asset Engine.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuview-ai/docuview/libs/asset-engine/internal/cache"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/events"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/objectstore"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/observability"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/render"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/storage"
)

// Validation errors
var (
	ErrEmptyDocument = errors.New("document is empty")
	ErrMissingOwner  = errors.New("owner id is required")
)

// MetadataStore is the subset of the document repository the pipeline uses.
type MetadataStore interface {
	Insert(ctx context.Context, doc *storage.DocumentAsset) error
	GetByID(ctx context.Context, id uuid.UUID) (*storage.DocumentAsset, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*storage.DocumentAsset, error)
	FindCompletedByOwnerAndHash(ctx context.Context, ownerID, hash string) (*storage.DocumentAsset, error)
	Update(ctx context.Context, id uuid.UUID, upd storage.AssetUpdate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Transcriber turns document bytes into recognized text.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte) (string, error)
}

// DocumentRenderer renders all pages of a document and its thumbnail.
type DocumentRenderer interface {
	RenderDocument(ctx context.Context, ownerID, documentID, pdfPath string) (*render.Output, error)
}

// LayoutExtractor extracts positioned text spans from a document.
type LayoutExtractor interface {
	Extract(ctx context.Context, path string) (storage.TextSpanList, error)
}

// PipelineConfig holds pipeline configuration.
type PipelineConfig struct {
	StageTimeout time.Duration
	CacheTTL     time.Duration
}

// IngestRequest represents a request to ingest a document.
type IngestRequest struct {
	OwnerID     string
	DisplayName string
	Data        []byte
}

// Pipeline orchestrates document ingestion: it persists the raw upload,
// derives assets concurrently, and merges the results into the record.
type Pipeline struct {
	logger      *observability.Logger
	config      PipelineConfig
	store       MetadataStore
	objects     objectstore.Store
	dedupCache  cache.Client
	publisher   events.Publisher
	transcriber Transcriber
	renderer    DocumentRenderer
	layout      LayoutExtractor
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	logger *observability.Logger,
	cfg PipelineConfig,
	store MetadataStore,
	objects objectstore.Store,
	dedupCache cache.Client,
	publisher events.Publisher,
	transcriber Transcriber,
	renderer DocumentRenderer,
	layout LayoutExtractor,
) *Pipeline {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 2 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Pipeline{
		logger:      logger,
		config:      cfg,
		store:       store,
		objects:     objects,
		dedupCache:  dedupCache,
		publisher:   publisher,
		transcriber: transcriber,
		renderer:    renderer,
		layout:      layout,
	}
}

// Ingest processes one uploaded document. The raw bytes are stored first;
// if that fails the record is retracted and the upload is rejected. The
// three derivation stages then run concurrently and each contributes its
// fields to a single merged update. A stage failure only loses that
// stage's fields, the record still completes.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*storage.DocumentAsset, error) {
	if req.OwnerID == "" {
		return nil, ErrMissingOwner
	}
	if len(req.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	docID := uuid.New()
	hash := ContentHash(req.Data)
	startTime := time.Now()

	logger := p.logger.WithOwner(req.OwnerID)
	logger.Info().
		Str("document_id", docID.String()).
		Str("display_name", req.DisplayName).
		Int("size_bytes", len(req.Data)).
		Msg("Starting document ingestion")

	doc := &storage.DocumentAsset{
		ID:          docID,
		OwnerID:     req.OwnerID,
		DisplayName: req.DisplayName,
		StorageKey:  objectstore.DocumentKey(req.OwnerID, docID.String(), req.DisplayName),
		SizeBytes:   int64(len(req.Data)),
		UploadedAt:  startTime,
		Status:      storage.AssetStatusUploading,
	}
	if err := p.store.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	// Store the raw bytes. This is the one step whose failure rejects
	// the upload; the placeholder record is retracted before returning.
	if _, err := p.objects.Put(ctx, doc.StorageKey, req.Data, contentTypeFor(req.DisplayName)); err != nil {
		if delErr := p.store.Delete(ctx, docID); delErr != nil {
			logger.Warn().
				Str("document_id", docID.String()).
				Err(delErr).
				Msg("Failed to retract record after upload failure")
		}
		return nil, fmt.Errorf("store document bytes: %w", err)
	}

	// External tools read the document from disk.
	tmpPath, cleanup, err := p.writeTempDocument(req)
	if err != nil {
		logger.Warn().
			Str("document_id", docID.String()).
			Err(err).
			Msg("Failed to stage document on disk, render and layout will be skipped")
	} else {
		defer cleanup()
	}

	var (
		wg sync.WaitGroup

		ocrText   string
		ocrOK     bool
		renderOut *render.Output
		spans     storage.TextSpanList
		layoutOK  bool
	)

	wg.Add(3)

	go func() {
		defer wg.Done()
		stageCtx, cancel := context.WithTimeout(ctx, p.config.StageTimeout)
		defer cancel()

		text, err := p.transcriber.Transcribe(stageCtx, req.Data)
		if err != nil {
			logger.Warn().
				Str("document_id", docID.String()).
				Err(err).
				Msg("Transcription failed, continuing without text")
			return
		}
		ocrText = text
		ocrOK = true
	}()

	go func() {
		defer wg.Done()
		stageCtx, cancel := context.WithTimeout(ctx, p.config.StageTimeout)
		defer cancel()

		// A completed upload with the same content already carries
		// rendered assets; reuse them instead of rendering again.
		if reuse := p.lookupReuse(stageCtx, req.OwnerID, hash, docID); reuse != nil {
			logger.Info().
				Str("document_id", docID.String()).
				Str("reused_from", reuse.ID.String()).
				Msg("Reusing rendered assets from previous upload")
			renderOut = &render.Output{
				Pages:         reuse.PageAssets,
				ThumbnailURL:  reuse.ThumbnailURL,
				ThumbnailKind: reuse.ThumbnailKind,
			}
			if reuse.PageCount != nil {
				renderOut.PageCount = *reuse.PageCount
			}
			return
		}

		if tmpPath == "" {
			return
		}
		out, err := p.renderer.RenderDocument(stageCtx, req.OwnerID, docID.String(), tmpPath)
		if err != nil {
			logger.Warn().
				Str("document_id", docID.String()).
				Err(err).
				Msg("Page rendering failed, continuing without page assets")
			return
		}
		renderOut = out
	}()

	go func() {
		defer wg.Done()
		stageCtx, cancel := context.WithTimeout(ctx, p.config.StageTimeout)
		defer cancel()

		if tmpPath == "" {
			return
		}
		result, err := p.layout.Extract(stageCtx, tmpPath)
		if err != nil {
			logger.Warn().
				Str("document_id", docID.String()).
				Err(err).
				Msg("Layout extraction failed, continuing without text spans")
			return
		}
		spans = result
		layoutOK = true
	}()

	wg.Wait()

	// Merge all stage results into a single write.
	status := storage.AssetStatusCompleted
	upd := storage.AssetUpdate{
		Status:      &status,
		ContentHash: &hash,
	}
	if ocrOK {
		upd.OCRText = &ocrText
	}
	if renderOut != nil {
		// The recorded count reflects pages that actually rendered;
		// a zero-page outcome leaves both fields absent.
		if len(renderOut.Pages) > 0 {
			upd.PageAssets = renderOut.Pages
			pageCount := len(renderOut.Pages)
			upd.PageCount = &pageCount
		}
		if renderOut.ThumbnailURL != "" {
			upd.ThumbnailURL = &renderOut.ThumbnailURL
			kind := renderOut.ThumbnailKind
			upd.ThumbnailKind = &kind
		}
	}
	if layoutOK && spans != nil {
		upd.TextSpans = spans
	}

	if err := p.store.Update(ctx, docID, upd); err != nil {
		return nil, fmt.Errorf("finalize document record: %w", err)
	}

	applyUpdate(doc, upd)

	// Best-effort followups: the record is already complete.
	if renderOut != nil && len(renderOut.Pages) > 0 {
		if err := p.dedupCache.Set(ctx, cache.DedupKey(req.OwnerID, hash), []byte(docID.String()), p.config.CacheTTL); err != nil {
			logger.Warn().
				Str("document_id", docID.String()).
				Err(err).
				Msg("Failed to cache dedup entry")
		}
	}

	pageCount := 0
	if doc.PageCount != nil {
		pageCount = *doc.PageCount
	}
	event := events.DocumentIngested{
		DocumentID:  docID.String(),
		OwnerID:     req.OwnerID,
		ContentHash: hash,
		PageCount:   pageCount,
		Status:      string(doc.Status),
		CompletedAt: time.Now(),
	}
	if err := p.publisher.PublishIngested(ctx, event); err != nil {
		logger.Warn().
			Str("document_id", docID.String()).
			Err(err).
			Msg("Failed to publish ingestion event")
	}

	logger.Info().
		Str("document_id", docID.String()).
		Int("page_count", pageCount).
		Bool("has_text", ocrOK).
		Bool("has_spans", layoutOK).
		Dur("duration", time.Since(startTime)).
		Msg("Document ingestion completed")

	return doc, nil
}

// Get retrieves a document asset by ID.
func (p *Pipeline) Get(ctx context.Context, id uuid.UUID) (*storage.DocumentAsset, error) {
	return p.store.GetByID(ctx, id)
}

// List returns all of an owner's document assets, newest first.
func (p *Pipeline) List(ctx context.Context, ownerID string) ([]*storage.DocumentAsset, error) {
	return p.store.ListByOwner(ctx, ownerID)
}

// Delete removes a document record and its stored objects. Object
// deletions are best effort; the record removal is what matters.
func (p *Pipeline) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := p.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	keys := []string{doc.StorageKey}
	for _, page := range doc.PageAssets {
		keys = append(keys, objectstore.PageKey(doc.OwnerID, doc.ID.String(), page.PageNumber))
	}
	if doc.ThumbnailURL != "" {
		keys = append(keys, objectstore.ThumbnailKey(doc.OwnerID, doc.ID.String()))
	}
	for _, key := range keys {
		if err := p.objects.Delete(ctx, key); err != nil {
			p.logger.Warn().
				Str("document_id", id.String()).
				Str("key", key).
				Err(err).
				Msg("Failed to delete stored object")
		}
	}

	if doc.ContentHash != "" {
		if err := p.dedupCache.Delete(ctx, cache.DedupKey(doc.OwnerID, doc.ContentHash)); err != nil {
			p.logger.Warn().
				Str("document_id", id.String()).
				Err(err).
				Msg("Failed to evict dedup entry")
		}
	}

	return p.store.Delete(ctx, id)
}

// lookupReuse finds a previous completed upload of the same content whose
// rendered assets can be reused. The cache is consulted first, then the
// repository. Returns nil when there is nothing to reuse.
func (p *Pipeline) lookupReuse(ctx context.Context, ownerID, hash string, selfID uuid.UUID) *storage.DocumentAsset {
	key := cache.DedupKey(ownerID, hash)

	if val, err := p.dedupCache.Get(ctx, key); err == nil {
		if id, err := uuid.Parse(string(val)); err == nil && id != selfID {
			doc, err := p.store.GetByID(ctx, id)
			if err == nil && reusable(doc) {
				return doc
			}
		}
	}

	doc, err := p.store.FindCompletedByOwnerAndHash(ctx, ownerID, hash)
	if err != nil || doc.ID == selfID || !reusable(doc) {
		return nil
	}
	return doc
}

func reusable(doc *storage.DocumentAsset) bool {
	return doc.Status == storage.AssetStatusCompleted && len(doc.PageAssets) > 0
}

// writeTempDocument stages the upload on disk for the external tools.
func (p *Pipeline) writeTempDocument(req IngestRequest) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "asset-engine-ingest-*"+filepath.Ext(req.DisplayName))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(req.Data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}

	return tmpPath, func() { os.Remove(tmpPath) }, nil
}

// applyUpdate folds the merged update back into the in-memory record so
// the caller gets the final state without a re-query.
func applyUpdate(doc *storage.DocumentAsset, upd storage.AssetUpdate) {
	if upd.Status != nil {
		doc.Status = *upd.Status
	}
	if upd.ContentHash != nil {
		doc.ContentHash = *upd.ContentHash
	}
	if upd.ThumbnailURL != nil {
		doc.ThumbnailURL = *upd.ThumbnailURL
	}
	if upd.ThumbnailKind != nil {
		doc.ThumbnailKind = *upd.ThumbnailKind
	}
	if upd.PageAssets != nil {
		doc.PageAssets = upd.PageAssets
	}
	if upd.PageCount != nil {
		doc.PageCount = upd.PageCount
	}
	if upd.OCRText != nil {
		doc.OCRText = *upd.OCRText
	}
	if upd.TextSpans != nil {
		doc.TextSpans = upd.TextSpans
	}
	doc.UpdatedAt = time.Now()
}

func contentTypeFor(displayName string) string {
	if strings.EqualFold(filepath.Ext(displayName), ".pdf") {
		return "application/pdf"
	}
	return "application/octet-stream"
}
