// Package ingest drives the document ingestion pipeline: OCR, LLM
// extraction, validation, and persistence, behind a bounded worker pool.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/healthassistant/internal/infra"
)

// OCRClient converts a raw document into text or markdown.
type OCRClient interface {
	Convert(ctx context.Context, filename string, content []byte) (string, error)
}

// HTTPOCRClient posts the file to an external document-parsing sidecar.
// One retry on connection error, none on 4xx.
type HTTPOCRClient struct {
	client      *http.Client
	serviceURL  string
	retryConfig *infra.RetryConfig
}

// NewHTTPOCRClient builds a client bound to serviceURL with a 120s
// per-call timeout.
func NewHTTPOCRClient(serviceURL string) *HTTPOCRClient {
	return &HTTPOCRClient{
		client:     &http.Client{Timeout: 120 * time.Second},
		serviceURL: strings.TrimRight(strings.TrimSpace(serviceURL), "/"),
		retryConfig: &infra.RetryConfig{
			MaxAttempts:    1,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       2 * time.Second,
			Strategy:       infra.BackoffConstant,
			JitterFraction: 0.1,
			RetryIf:        isConnectionError,
		},
	}
}

func (c *HTTPOCRClient) Convert(ctx context.Context, filename string, content []byte) (string, error) {
	text, result := infra.Retry(ctx, c.retryConfig, func(ctx context.Context) (string, error) {
		return c.convertOnce(ctx, filename, content)
	})
	if result.LastError != nil {
		return "", fmt.Errorf("ingest: ocr convert: %w", result.LastError)
	}
	return text, nil
}

func (c *HTTPOCRClient) convertOnce(ctx context.Context, filename string, content []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", infra.AsPermanent(fmt.Errorf("build multipart body: %w", err))
	}
	if _, err := part.Write(content); err != nil {
		return "", infra.AsPermanent(fmt.Errorf("write multipart body: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", infra.AsPermanent(fmt.Errorf("close multipart writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/convert", &body)
	if err != nil {
		return "", infra.AsPermanent(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err // network error: retryable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", infra.AsPermanent(fmt.Errorf("read ocr response: %w", err))
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", infra.AsPermanent(fmt.Errorf("ocr service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("ocr service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return string(respBody), nil
}

func isConnectionError(err error) bool {
	return !infra.IsPermanent(err)
}
