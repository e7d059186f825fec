// Package ocr calls the remote OCR collaborator and normalizes its output.
// The service is a moving target — different deployments wrap their text
// boxes in different envelope shapes — so extraction walks the payload
// generically instead of binding to one schema.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/speak2fill/speak2fill/internal/form"
)

// ErrNoText is returned when the service answers successfully but no usable
// text boxes can be extracted.
var ErrNoText = errors.New("ocr service returned no text boxes")

const (
	defaultTimeout = 120 * time.Second
	maxAttempts    = 3
	retryBaseDelay = 500 * time.Millisecond
)

// Result is the normalized OCR output. ImageWidth/ImageHeight are zero when
// the service does not report dimensions; callers fall back to decoding the
// image locally.
type Result struct {
	Items       []form.OCRItem
	ImageWidth  int
	ImageHeight int
}

// Client talks to the OCR service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the given service URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Analyze sends the raw image bytes and extracts text boxes from whatever
// envelope comes back. Transport errors and 5xx responses are retried with
// backoff; a failure after all attempts surfaces as an error, never as a
// stale result.
func (c *Client) Analyze(ctx context.Context, image []byte) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(retryBaseDelay * time.Duration(attempt-1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			log.Printf("ocr: retrying request (attempt %d/%d)", attempt, maxAttempts)
		}

		payload, retryable, err := c.post(ctx, image)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !retryable {
				return nil, err
			}
			lastErr = err
			continue
		}

		items := extractItems(payload)
		if len(items) == 0 {
			return nil, ErrNoText
		}
		width, height := findImageDims(payload)
		return &Result{Items: items, ImageWidth: width, ImageHeight: height}, nil
	}
	return nil, fmt.Errorf("ocr service unavailable: %w", lastErr)
}

// post performs one request. retryable reports whether a failure is worth
// another attempt (transport errors and 5xx are; 4xx and bad JSON are not).
func (c *Client) post(ctx context.Context, image []byte) (payload any, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(image))
	if err != nil {
		return nil, false, fmt.Errorf("building ocr request: %w", err)
	}
	// Raw binary, no multipart fields — that is what the service expects.
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("calling ocr service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("ocr service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("ocr service returned invalid JSON: %w", err)
	}
	return payload, false, nil
}
