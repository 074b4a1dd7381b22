package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/docuview-ai/docuview/libs/asset-engine/internal/objectstore"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/observability"
	"github.com/docuview-ai/docuview/libs/asset-engine/internal/storage"
)

const svgContentType = "image/svg+xml"

// Output is the result of rendering a whole document. Pages that failed
// to render are simply absent; PageCount reflects the inspected page
// count, zero when inspection failed.
type Output struct {
	PageCount     int
	Pages         storage.PageAssetList
	ThumbnailURL  string
	ThumbnailKind storage.ThumbnailKind
}

// Orchestrator renders all pages of a document in bounded-parallel waves
// and uploads the results to the object store.
type Orchestrator struct {
	counter  PageCounter
	renderer PageRenderer
	store    objectstore.Store
	logger   *observability.Logger
	width    int
}

// NewOrchestrator creates a render orchestrator. maxParallel bounds the
// number of pages rendered concurrently; zero derives it from the host.
func NewOrchestrator(counter PageCounter, renderer PageRenderer, store objectstore.Store, logger *observability.Logger, maxParallel int) *Orchestrator {
	if maxParallel <= 0 {
		maxParallel = defaultWidth()
	}
	return &Orchestrator{
		counter:  counter,
		renderer: renderer,
		store:    store,
		logger:   logger,
		width:    maxParallel,
	}
}

// defaultWidth derives the wave width from the host CPU count, clamped
// so a small host still overlaps renders and a large host does not
// spawn dozens of renderer processes at once.
func defaultWidth() int {
	w := runtime.GOMAXPROCS(0)
	if w < 2 {
		w = 2
	}
	if w > 8 {
		w = 8
	}
	return w
}

type pageResult struct {
	page int
	url  string
	data []byte
	err  error
}

// RenderDocument inspects the page count, renders every page in waves of
// at most width pages, uploads each render, and derives a thumbnail from
// the first page that rendered. Failures are logged and converted to
// absent fields, never returned; a page count failure only forfeits the
// per-page renders, the thumbnail is still attempted on its own.
func (o *Orchestrator) RenderDocument(ctx context.Context, ownerID, documentID, pdfPath string) (*Output, error) {
	count, err := o.counter.PageCount(ctx, pdfPath)
	if err != nil {
		o.logger.Warn().
			Str("document_id", documentID).
			Err(err).
			Msg("Page count inspection failed, skipping page renders")
		count = 0
	}

	out := &Output{PageCount: count}
	var thumbSource []byte

	if count > 0 {
		results := make([]pageResult, count)

		// Each wave completes fully before the next starts.
		for start := 1; start <= count; start += o.width {
			g := new(errgroup.Group)
			for page := start; page < start+o.width && page <= count; page++ {
				page := page
				g.Go(func() error {
					results[page-1] = o.renderOne(ctx, ownerID, documentID, pdfPath, page)
					return nil
				})
			}
			// Tasks record their own results and never fail the group.
			_ = g.Wait()
		}

		for _, res := range results {
			if res.err != nil {
				o.logger.Warn().
					Str("document_id", documentID).
					Int("page", res.page).
					Err(res.err).
					Msg("Page render failed, skipping")
				continue
			}
			out.Pages = append(out.Pages, storage.PageAsset{PageNumber: res.page, AssetURL: res.url})
			if thumbSource == nil {
				thumbSource = res.data
			}
		}
	}

	// The thumbnail needs only the first page, so it does not depend on
	// the wave renders. When no wave produced a usable page, render page
	// one on its own for the thumbnail.
	if thumbSource == nil {
		thumbSource = o.renderThumbnailSource(ctx, documentID, pdfPath)
	}

	if thumbSource != nil {
		url, err := o.store.Put(ctx, objectstore.ThumbnailKey(ownerID, documentID), thumbSource, svgContentType)
		if err != nil {
			o.logger.Warn().
				Str("document_id", documentID).
				Err(err).
				Msg("Thumbnail upload failed, skipping")
		} else {
			out.ThumbnailURL = url
			out.ThumbnailKind = storage.ThumbnailKindSVG
		}
	}

	return out, nil
}

// renderOne renders a single page in its own temp workspace and uploads
// the result. The workspace is removed regardless of outcome.
func (o *Orchestrator) renderOne(ctx context.Context, ownerID, documentID, pdfPath string, page int) pageResult {
	tmpDir, err := os.MkdirTemp("", "asset-engine-render-*")
	if err != nil {
		return pageResult{page: page, err: fmt.Errorf("create render workspace: %w", err)}
	}
	defer os.RemoveAll(tmpDir)

	outPath := filepath.Join(tmpDir, fmt.Sprintf("page-%d.svg", page))
	if err := o.renderer.RenderPage(ctx, pdfPath, page, outPath); err != nil {
		return pageResult{page: page, err: err}
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return pageResult{page: page, err: fmt.Errorf("read rendered page: %w", err)}
	}

	url, err := o.store.Put(ctx, objectstore.PageKey(ownerID, documentID, page), data, svgContentType)
	if err != nil {
		return pageResult{page: page, err: fmt.Errorf("upload rendered page: %w", err)}
	}

	return pageResult{page: page, url: url, data: data}
}

// renderThumbnailSource renders the first page into a private workspace
// and returns its bytes without uploading a page asset. Returns nil when
// the render fails.
func (o *Orchestrator) renderThumbnailSource(ctx context.Context, documentID, pdfPath string) []byte {
	tmpDir, err := os.MkdirTemp("", "asset-engine-render-*")
	if err != nil {
		o.logger.Warn().
			Str("document_id", documentID).
			Err(err).
			Msg("Thumbnail workspace creation failed, skipping")
		return nil
	}
	defer os.RemoveAll(tmpDir)

	outPath := filepath.Join(tmpDir, "thumbnail.svg")
	if err := o.renderer.RenderPage(ctx, pdfPath, 1, outPath); err != nil {
		o.logger.Warn().
			Str("document_id", documentID).
			Err(err).
			Msg("Thumbnail render failed, skipping")
		return nil
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		o.logger.Warn().
			Str("document_id", documentID).
			Err(err).
			Msg("Thumbnail read failed, skipping")
		return nil
	}
	return data
}
