package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestClient_GetJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"vacation","count":12}`))
	}))
	defer ts.Close()

	client := NewClient(nil, 0)

	var resp struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	headers := map[string]string{"Authorization": "Bearer token"}
	if err := client.GetJSON(context.Background(), ts.URL, headers, &resp); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if resp.Name != "vacation" || resp.Count != 12 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	// Missing auth surfaces as an error, not a decode of nothing
	if err := client.GetJSON(context.Background(), ts.URL, nil, &resp); err == nil {
		t.Error("Expected error for unauthorized request")
	}
}

func TestClient_PostJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer ts.Close()

	client := NewClient(nil, 0)

	var resp struct {
		Result string `json:"result"`
	}
	body := map[string]interface{}{"method": "generateIntegers", "id": 1}
	if err := client.PostJSON(context.Background(), ts.URL, body, &resp); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if resp.Result != "ok" {
		t.Errorf("Expected ok, got %s", resp.Result)
	}
}

func TestClient_Download(t *testing.T) {
	payload := []byte("fake image bytes")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	client := NewClient(nil, 0)
	dest := filepath.Join(t.TempDir(), "photo.jpg")

	written, err := client.Download(context.Background(), ts.URL, dest, nil)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if written != int64(len(payload)) {
		t.Errorf("Expected %d bytes written, got %d", len(payload), written)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if string(got) != string(payload) {
		t.Error("Downloaded content does not match")
	}
	// The staging file must be gone after the rename
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("Expected .part file to be renamed away")
	}
}

func TestClient_DownloadErrorLeavesNoFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(nil, 0)
	dest := filepath.Join(t.TempDir(), "photo.jpg")

	if _, err := client.Download(context.Background(), ts.URL, dest, nil); err == nil {
		t.Fatal("Expected error for 404")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("Expected no file under the final name after failure")
	}
}

func TestClient_RetryAfterHeader(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping retry timing test in short mode")
	}

	var mu sync.Mutex
	var requests int

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqCount := requests
		requests++
		mu.Unlock()

		if reqCount == 0 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewClient(nil, 0)

	start := time.Now()
	var resp struct{}
	err := client.GetJSON(context.Background(), ts.URL, nil, &resp)
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("Request failed: %v", err)
	}

	mu.Lock()
	totalReqs := requests
	mu.Unlock()

	if totalReqs != 2 {
		t.Errorf("Expected 2 requests total (1 rejected, 1 success), got %d", totalReqs)
	}
	if elapsed < 2*time.Second {
		t.Errorf("Expected request to block for at least 2 seconds due to Retry-After, got %v", elapsed)
	}
}

func TestClient_MinIntervalSpacing(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping rate limiting timing test in short mode")
	}

	var mu sync.Mutex
	var timestamps []time.Time

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		timestamps = append(timestamps, time.Now())
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	interval := 200 * time.Millisecond
	client := NewClient(nil, interval)

	var resp struct{}
	for i := 0; i < 3; i++ {
		if err := client.GetJSON(context.Background(), ts.URL, nil, &resp); err != nil {
			t.Fatalf("Request %d failed: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(timestamps))
	}
	for i := 1; i < len(timestamps); i++ {
		diff := timestamps[i].Sub(timestamps[i-1])
		if diff < interval-50*time.Millisecond {
			t.Errorf("Requests %d and %d separated by %v, expected >= ~%v", i-1, i, diff, interval)
		}
	}
}
