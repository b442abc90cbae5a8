//go:build integration

// Package integration exercises a running pagecapd instance end to end.
// Start the daemon first, then run:
//
//	go test -tags integration ./test/integration/
//
// PAGECAPD_URL overrides the default daemon address.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("PAGECAPD_URL"); v != "" {
		return v
	}
	return "http://127.0.0.1:8377"
}

func TestHealth(t *testing.T) {
	resp, err := http.Get(baseURL() + "/health")
	if err != nil {
		t.Skipf("daemon not reachable at %s: %v", baseURL(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestCaptureLifecycle(t *testing.T) {
	client := &http.Client{Timeout: 2 * time.Minute}

	if _, err := client.Get(baseURL() + "/health"); err != nil {
		t.Skipf("daemon not reachable at %s: %v", baseURL(), err)
	}

	body, _ := json.Marshal(map[string]any{
		"url":    "https://example.com/",
		"format": "png",
	})
	resp, err := client.Post(baseURL()+"/api/v1/captures", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create capture: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("create capture: status %d: %s", resp.StatusCode, raw)
	}

	var meta struct {
		ID        string `json:"id"`
		Width     int64  `json:"width"`
		Height    int64  `json:"height"`
		SizeBytes int    `json:"size_bytes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.ID == "" || meta.SizeBytes == 0 {
		t.Fatalf("meta = %+v, want non-empty id and artifact", meta)
	}
	if meta.Width < 800 || meta.Height < 600 {
		t.Fatalf("size = %dx%d, want at least the 800x600 minimum", meta.Width, meta.Height)
	}

	fileResp, err := client.Get(fmt.Sprintf("%s/api/v1/captures/%s/file", baseURL(), meta.ID))
	if err != nil {
		t.Fatalf("fetch artifact: %v", err)
	}
	defer fileResp.Body.Close()
	if ct := fileResp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("artifact content type = %q, want image/png", ct)
	}
	data, err := io.ReadAll(fileResp.Body)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("artifact is not a PNG (first bytes %x)", data[:min(len(data), 8)])
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/v1/captures/%s", baseURL(), meta.ID), nil)
	delResp, err := client.Do(req)
	if err != nil {
		t.Fatalf("delete capture: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", delResp.StatusCode, http.StatusNoContent)
	}
}
