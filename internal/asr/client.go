// Package asr uploads recorded audio to a whisper.cpp style inference
// server and extracts the transcript from its JSON response.
package asr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"voiced/internal/clock"
	"voiced/internal/logging"
)

// Config controls the upload and retry behavior.
type Config struct {
	// Endpoint is the inference URL, e.g. http://127.0.0.1:8080/inference.
	Endpoint string
	// Model, Language, and Prompt are forwarded as form fields when set.
	Model    string
	Language string
	Prompt   string
	// TextPath is the gjson path of the transcript in the response.
	TextPath string
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// MaxRetries is the total number of upload attempts.
	MaxRetries int
	// RetryBaseDelay is the wait after the first failure; it doubles on
	// each subsequent failure.
	RetryBaseDelay time.Duration
}

// Client uploads WAV files for transcription.
type Client struct {
	cfg  Config
	http *http.Client
	clk  clock.Clock
	log  *logging.Logger
}

// New creates a client. httpClient may be nil, in which case one with
// the configured timeout is used.
func New(cfg Config, httpClient *http.Client, clk clock.Clock, log *logging.Logger) *Client {
	if cfg.TextPath == "" {
		cfg.TextPath = "text"
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Client{cfg: cfg, http: httpClient, clk: clk, log: log}
}

// Transcribe uploads the WAV at wavPath and returns the extracted
// transcript. Failed uploads are retried with exponential backoff up
// to the configured attempt count.
func (c *Client) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if c.cfg.Endpoint == "" {
		return "", fmt.Errorf("asr endpoint not configured")
	}

	delay := c.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		text, err := c.upload(ctx, wavPath)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.log.Warn("transcription attempt failed",
			"attempt", attempt,
			"max", c.cfg.MaxRetries,
			"error", err)

		if attempt == c.cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.clk.Sleep(delay)
		delay *= 2
	}
	return "", fmt.Errorf("transcription failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) upload(ctx context.Context, wavPath string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if c.cfg.Model != "" {
		_ = writer.WriteField("model", c.cfg.Model)
	}
	if c.cfg.Language != "" {
		_ = writer.WriteField("language", c.cfg.Language)
	}
	if c.cfg.Prompt != "" {
		_ = writer.WriteField("prompt", c.cfg.Prompt)
	}
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %s: %s", resp.Status, truncate(raw, 200))
	}

	result := gjson.GetBytes(raw, c.cfg.TextPath)
	if !result.Exists() {
		return "", fmt.Errorf("response has no %q field: %s", c.cfg.TextPath, truncate(raw, 200))
	}
	return result.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
