package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("update-bytes"), 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "app.bin")
	d := NewDownloader(0)
	if err := d.Download(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded %d bytes, want %d", len(got), len(payload))
	}
}

func TestDownloadRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok after retries")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "app.bin")
	d := NewDownloader(0)
	if err := d.Download(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server called %d times, want 3", calls.Load())
	}
}

func TestDownloadExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "app.bin")
	d := NewDownloader(0)
	err := d.Download(context.Background(), srv.URL, dest)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q does not surface the status code", err)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		t.Error("destination file exists after failed download")
	}
	if _, statErr := os.Stat(dest + ".partial"); statErr == nil {
		t.Error("partial file left behind after final failure")
	}
}

func TestDownloadEnforcesSizeLimit(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)

	tests := []struct {
		name          string
		contentLength bool
	}{
		{name: "declared_length", contentLength: true},
		{name: "chunked", contentLength: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentLength {
					w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
				}
				w.Write(payload)
			}))
			defer srv.Close()

			dest := filepath.Join(t.TempDir(), "app.bin")
			d := NewDownloader(1024)
			if err := d.Download(context.Background(), srv.URL, dest); err == nil {
				t.Fatal("oversized download was accepted")
			}
			if _, statErr := os.Stat(dest); statErr == nil {
				t.Error("destination file exists after rejected download")
			}
		})
	}
}

func TestDownloadResumesPartialFile(t *testing.T) {
	payload := []byte("0123456789abcdef")
	var sawRange atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			sawRange.Store(true)
			var from int
			fmt.Sscanf(rng, "bytes=%d-", &from)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(payload[from:])
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "app.bin")
	if err := os.WriteFile(dest+".partial", payload[:8], 0o600); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	d := NewDownloader(0)
	if err := d.Download(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !sawRange.Load() {
		t.Error("no Range request was sent for the partial file")
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("resumed download = %q, want %q", got, payload)
	}
}

func TestDownloadHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDownloader(0)
	err := d.Download(ctx, srv.URL, filepath.Join(t.TempDir(), "app.bin"))
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDownloadReportsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	var reports atomic.Int32
	d := NewDownloader(0)
	d.OnProgress = func(p Progress) {
		reports.Add(1)
		if p.Total != int64(len(payload)) {
			t.Errorf("progress total = %d, want %d", p.Total, len(payload))
		}
	}

	dest := filepath.Join(t.TempDir(), "app.bin")
	if err := d.Download(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	// The ticker fires at least once when the context ends.
	if reports.Load() == 0 {
		t.Error("no progress was reported")
	}
}
