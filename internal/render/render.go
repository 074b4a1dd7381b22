// Package render produces per-page images and thumbnails for documents
// using external rendering tools.
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// PageCounter reports how many pages a document has.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// PageRenderer renders a single page of a document to an output file.
type PageRenderer interface {
	RenderPage(ctx context.Context, pdfPath string, page int, outPath string) error
}

// Inspector counts pages by invoking an external inspector binary
// (qpdf by default) and parsing its stdout.
type Inspector struct {
	bin     string
	timeout time.Duration
}

// NewInspector creates a page count inspector.
func NewInspector(bin string, timeout time.Duration) *Inspector {
	if bin == "" {
		bin = "qpdf"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Inspector{bin: bin, timeout: timeout}
}

// PageCount runs the inspector and parses the page count from its output.
func (i *Inspector) PageCount(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, i.bin, "--show-npages", path)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("inspect page count: %w", err)
	}

	return parsePageCount(string(output))
}

func parsePageCount(output string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("parse page count %q: %w", strings.TrimSpace(output), err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative page count %d", n)
	}
	return n, nil
}

// CairoRenderer renders single pages to SVG by invoking pdftocairo.
type CairoRenderer struct {
	bin     string
	timeout time.Duration
}

// NewCairoRenderer creates a pdftocairo-backed page renderer.
func NewCairoRenderer(bin string, timeout time.Duration) *CairoRenderer {
	if bin == "" {
		bin = "pdftocairo"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CairoRenderer{bin: bin, timeout: timeout}
}

// RenderPage renders one page of the document to outPath.
func (r *CairoRenderer) RenderPage(ctx context.Context, pdfPath string, page int, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pageArg := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, r.bin, "-svg", "-f", pageArg, "-l", pageArg, pdfPath, outPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("render page %d: %w: %s", page, err, strings.TrimSpace(string(output)))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("render page %d produced no output: %w", page, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("render page %d produced empty output", page)
	}
	return nil
}
