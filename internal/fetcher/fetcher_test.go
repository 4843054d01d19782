package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"imgopt-gateway/internal/errs"
)

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c, err := New(opts, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsNegativeRetries(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Retries: -1}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pngbytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, Options{UserAgent: "test-agent"})
	img, err := c.Fetch(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if string(img.Data) != "pngbytes" || img.Size != 8 {
		t.Fatalf("unexpected body %q (size %d)", img.Data, img.Size)
	}
	if img.ContentType != "image/png" {
		t.Fatalf("unexpected content type %q", img.ContentType)
	}
	if gotUA != "test-agent" {
		t.Fatalf("unexpected user agent %q", gotUA)
	}
	if !strings.HasPrefix(gotAccept, "image/*") {
		t.Fatalf("unexpected accept header %q", gotAccept)
	}
}

func TestFetchRejectsNonImage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, Options{}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errs.ErrInvalidContentType) {
		t.Fatalf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestFetchRejectsDeclaredOversize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "64")
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	_, err := newTestClient(t, Options{MaxBytes: 16}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errs.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestFetchRejectsStreamedOversize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		// flushing before the body forces chunked encoding, so no length is declared
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for i := 0; i < 4; i++ {
			_, _ = w.Write(make([]byte, 16))
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	_, err := newTestClient(t, Options{MaxBytes: 32}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errs.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(t, Options{Retries: 2, BaseBackoff: time.Millisecond}).
		Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errs.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected 1 attempt, got %d", n)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	img, err := newTestClient(t, Options{Retries: 1, BaseBackoff: time.Millisecond}).
		Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(img.Data) != "ok" {
		t.Fatalf("unexpected body %q", img.Data)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestClient(t, Options{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errs.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not honored, took %v", time.Since(start))
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not a url", "ftp://example.com/a.png"} {
		_, err := newTestClient(t, Options{}).Fetch(context.Background(), raw)
		if !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%q: expected ErrValidation, got %v", raw, err)
		}
	}
}

func TestComputeBackoffBounds(t *testing.T) {
	t.Parallel()

	for attempt := 0; attempt < 20; attempt++ {
		d := computeBackoff(100*time.Millisecond, attempt)
		if d < 0 || d > maxBackoff {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "2")
	if got := parseRetryAfter(resp); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}

	resp.Header.Set("Retry-After", "3600")
	if got := parseRetryAfter(resp); got != maxRetryAfter {
		t.Fatalf("expected cap %v, got %v", maxRetryAfter, got)
	}

	resp.Header.Set("Retry-After", "soon")
	if got := parseRetryAfter(resp); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
