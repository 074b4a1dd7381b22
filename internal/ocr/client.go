// Package ocr provides a client for the transcription service that turns
// document bytes into per-page markdown.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/docuview-ai/docuview/libs/asset-engine/internal/config"
)

// TranscribeResponse is the service's response envelope.
type TranscribeResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		Pages []TranscribedPage `json:"pages"`
	} `json:"data"`
}

// TranscribedPage is one page of recognized text.
type TranscribedPage struct {
	Page     int    `json:"page"`
	Markdown string `json:"markdown"`
}

// Client calls the OCR transcription service.
type Client struct {
	endpoint   string
	apiToken   string
	httpClient *http.Client
}

// NewClient creates an OCR client.
func NewClient(cfg config.OCRConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transcribe sends the document bytes for recognition and returns the
// page transcripts joined into a single text, pages in ascending order.
func (c *Client) Transcribe(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/transcribe", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result TranscribeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if result.Code != 0 {
		return "", fmt.Errorf("transcription service error: %s", result.Message)
	}

	return joinPages(result.Data.Pages), nil
}

func joinPages(pages []TranscribedPage) string {
	sorted := append([]TranscribedPage(nil), pages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Page < sorted[j].Page })

	parts := make([]string, 0, len(sorted))
	for _, page := range sorted {
		parts = append(parts, page.Markdown)
	}
	return strings.Join(parts, "\n\n")
}
