package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompress_GzipWhenAccepted(t *testing.T) {
	compress := NewCompress()

	responseBody := "This is a test response that should be compressed"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responseBody))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	rr := httptest.NewRecorder()
	compress.Apply(handler).ServeHTTP(rr, req)

	// Check Content-Encoding header
	if got := rr.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("expected Content-Encoding: gzip, got %q", got)
	}

	// Check Vary header
	if got := rr.Header().Get("Vary"); got != "Accept-Encoding" {
		t.Errorf("expected Vary: Accept-Encoding, got %q", got)
	}

	// Decompress and verify content
	gzReader, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("failed to create gzip reader: %v", err)
	}
	defer gzReader.Close()

	decompressed, err := io.ReadAll(gzReader)
	if err != nil {
		t.Fatalf("failed to decompress: %v", err)
	}

	if string(decompressed) != responseBody {
		t.Errorf("expected %q, got %q", responseBody, string(decompressed))
	}
}

func TestCompress_NoGzipWhenNotAccepted(t *testing.T) {
	compress := NewCompress()

	responseBody := "This is a test response"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responseBody))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	// No Accept-Encoding header

	rr := httptest.NewRecorder()
	compress.Apply(handler).ServeHTTP(rr, req)

	// Check no Content-Encoding header
	if got := rr.Header().Get("Content-Encoding"); got != "" {
		t.Errorf("expected no Content-Encoding, got %q", got)
	}

	// Body should be uncompressed
	if got := rr.Body.String(); got != responseBody {
		t.Errorf("expected %q, got %q", responseBody, got)
	}
}

func TestCompress_SkipWebsocketUpgrade(t *testing.T) {
	compress := NewCompress()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ws/rooms/ABC234", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")

	rr := httptest.NewRecorder()
	compress.Apply(handler).ServeHTTP(rr, req)

	// The raw writer must pass through untouched
	if got := rr.Header().Get("Content-Encoding"); got != "" {
		t.Errorf("upgrade request should not be compressed, got Content-Encoding: %q", got)
	}
}

func TestIsUpgradeRequest(t *testing.T) {
	tests := []struct {
		upgrade  string
		expected bool
	}{
		{"websocket", true},
		{"WebSocket", true},
		{"", false},
		{"h2c", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.upgrade != "" {
			req.Header.Set("Upgrade", tt.upgrade)
		}
		if got := isUpgradeRequest(req); got != tt.expected {
			t.Errorf("isUpgradeRequest(Upgrade=%q) = %v, want %v", tt.upgrade, got, tt.expected)
		}
	}
}

func TestCompress_GzipDeflateAccepted(t *testing.T) {
	compress := NewCompress()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	rr := httptest.NewRecorder()
	compress.Apply(handler).ServeHTTP(rr, req)

	// Should still use gzip
	if got := rr.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("expected Content-Encoding: gzip, got %q", got)
	}
}
