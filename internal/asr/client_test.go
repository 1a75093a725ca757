package asr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"voiced/internal/clock"
	"voiced/internal/logging"
)

func writeTestWav(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testClient(cfg Config, srv *httptest.Server) *Client {
	cfg.Endpoint = srv.URL
	return New(cfg, srv.Client(), clock.NewFake(time.Unix(1000, 0)), logging.Default())
}

func TestTranscribeExtractsText(t *testing.T) {
	var gotModel, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		w.Write([]byte(`{"text": " hello there \n"}`))
	}))
	defer srv.Close()

	c := testClient(Config{Model: "base.en", Language: "en", TextPath: "text", MaxRetries: 1}, srv)
	text, err := c.Transcribe(context.Background(), writeTestWav(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != " hello there \n" {
		t.Errorf("text = %q, want raw transcript", text)
	}
	if gotModel != "base.en" || gotLang != "en" {
		t.Errorf("form fields = (%q, %q), want configured model and language", gotModel, gotLang)
	}
}

func TestTranscribeNestedTextPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": {"segments": 2, "text": "nested"}}`))
	}))
	defer srv.Close()

	c := testClient(Config{TextPath: "result.text", MaxRetries: 1}, srv)
	text, err := c.Transcribe(context.Background(), writeTestWav(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "nested" {
		t.Errorf("text = %q, want nested field", text)
	}
}

func TestTranscribeRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text": "third time"}`))
	}))
	defer srv.Close()

	c := testClient(Config{MaxRetries: 3, RetryBaseDelay: 500 * time.Millisecond}, srv)
	text, err := c.Transcribe(context.Background(), writeTestWav(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "third time" {
		t.Errorf("text = %q", text)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestTranscribeExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no model loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(Config{MaxRetries: 3, RetryBaseDelay: time.Millisecond}, srv)
	_, err := c.Transcribe(context.Background(), writeTestWav(t))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error should mention attempt count: %v", err)
	}
}

func TestTranscribeMissingTextField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "no transcript"}`))
	}))
	defer srv.Close()

	c := testClient(Config{TextPath: "text", MaxRetries: 1}, srv)
	_, err := c.Transcribe(context.Background(), writeTestWav(t))
	if err == nil {
		t.Fatal("expected error for missing text field")
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached when the file is missing")
	}))
	defer srv.Close()

	c := testClient(Config{MaxRetries: 1}, srv)
	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	if err == nil {
		t.Fatal("expected error for missing audio file")
	}
}

func TestTranscribeNoEndpoint(t *testing.T) {
	c := New(Config{MaxRetries: 1}, nil, clock.NewFake(time.Unix(0, 0)), logging.Default())
	if _, err := c.Transcribe(context.Background(), "x.wav"); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
