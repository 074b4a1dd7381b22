// Package layout extracts positioned text spans from documents using an
// external layout analysis tool.
package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/docuview-ai/docuview/libs/asset-engine/internal/storage"
)

// toolPage mirrors the layout tool's JSON output: one entry per page,
// each carrying the spans found on it.
type toolPage struct {
	Page  int        `json:"page"`
	Spans []toolSpan `json:"spans"`
}

type toolSpan struct {
	Text   string  `json:"text"`
	Font   string  `json:"font"`
	Size   float64 `json:"size"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Extractor runs the layout tool against a document and parses its output.
type Extractor struct {
	bin     string
	timeout time.Duration
}

// NewExtractor creates a layout extractor.
func NewExtractor(bin string, timeout time.Duration) *Extractor {
	if bin == "" {
		bin = "pdf-spans"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{bin: bin, timeout: timeout}
}

// Extract copies the document into a private workspace, runs the layout
// tool on the copy, and flattens the per-page output into a span list.
// The workspace is removed regardless of outcome.
func (e *Extractor) Extract(ctx context.Context, path string) (storage.TextSpanList, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tmpDir, err := os.MkdirTemp("", "asset-engine-layout-*")
	if err != nil {
		return nil, fmt.Errorf("create layout workspace: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// The tool writes sidecar files next to its input, so it runs on a
	// copy instead of the shared original.
	workCopy := filepath.Join(tmpDir, filepath.Base(path))
	if err := copyFile(path, workCopy); err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.bin, workCopy)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run layout tool: %w", err)
	}

	return parseSpans(output)
}

// parseSpans flattens tool output into a span list ordered by page.
func parseSpans(data []byte) (storage.TextSpanList, error) {
	var pages []toolPage
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("parse layout output: %w", err)
	}

	var spans storage.TextSpanList
	for _, page := range pages {
		for _, s := range page.Spans {
			spans = append(spans, storage.TextSpan{
				Text:     s.Text,
				Page:     page.Page,
				X:        s.X,
				Y:        s.Y,
				Width:    s.Width,
				Height:   s.Height,
				FontSize: s.Size,
				FontName: s.Font,
			})
		}
	}
	return spans, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
