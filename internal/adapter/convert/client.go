// Package convert calls the external format-conversion service that turns
// source documents into canonical structured XML. The service itself is a
// black box; only its HTTP contract lives here.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Convert posts the file to the conversion service and returns the canonical
// XML body. Timeouts and non-2xx responses surface as errors; the orchestrator
// treats them as stage-fatal for the document.
func (c *Client) Convert(ctx context.Context, filename string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("convert: build request: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("convert: build request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("convert: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/convert?to=xml", &buf)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("convert %s: service returned %d: %s", filename, resp.StatusCode, body)
	}

	converted, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("convert %s: read response: %w", filename, err)
	}
	return converted, nil
}
