package hub

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Error("Expected an error without an access token")
	}
}

func TestCreateRepo(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/repos/create" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Unexpected authorization header %q", got)
		}

		var req struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Name != "my-model" || req.Type != "model" {
			t.Errorf("Unexpected request: %+v", req)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client, err := NewClient("test-token", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	status = http.StatusOK
	if err := client.CreateRepo(ctx, "my-model"); err != nil {
		t.Errorf("CreateRepo failed: %v", err)
	}

	// An existing repository is not an error
	status = http.StatusConflict
	if err := client.CreateRepo(ctx, "my-model"); err != nil {
		t.Errorf("CreateRepo on an existing repo failed: %v", err)
	}

	status = http.StatusForbidden
	if err := client.CreateRepo(ctx, "my-model"); err == nil {
		t.Error("Expected an error for a forbidden repo creation")
	}
}

func TestPushModelDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"model_config.json":   `{"input_dim":8}`,
		"adapter_weights.bin": "raw-bytes",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	// Subdirectories (checkpoints) are not part of the upload
	if err := os.MkdirAll(filepath.Join(dir, "checkpoint-100"), 0755); err != nil {
		t.Fatalf("Failed to create checkpoint dir: %v", err)
	}

	uploaded := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/my-model/commit/main" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/x-ndjson" {
			t.Errorf("Unexpected content type %q", got)
		}

		scanner := bufio.NewScanner(r.Body)
		sawHeader := false
		for scanner.Scan() {
			var line struct {
				Key   string          `json:"key"`
				Value json.RawMessage `json:"value"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				t.Errorf("Failed to parse commit line: %v", err)
				continue
			}
			switch line.Key {
			case "header":
				sawHeader = true
			case "file":
				var f struct {
					Path     string `json:"path"`
					Content  string `json:"content"`
					Encoding string `json:"encoding"`
				}
				if err := json.Unmarshal(line.Value, &f); err != nil {
					t.Errorf("Failed to parse file line: %v", err)
					continue
				}
				if f.Encoding != "base64" {
					t.Errorf("Expected base64 encoding, got %q", f.Encoding)
				}
				data, err := base64.StdEncoding.DecodeString(f.Content)
				if err != nil {
					t.Errorf("Failed to decode %s: %v", f.Path, err)
				}
				uploaded[f.Path] = string(data)
			default:
				t.Errorf("Unexpected commit line key %q", line.Key)
			}
		}
		if !sawHeader {
			t.Error("Commit is missing its header line")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient("test-token", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := client.PushModelDir(context.Background(), "my-model", dir); err != nil {
		t.Fatalf("PushModelDir failed: %v", err)
	}

	if len(uploaded) != len(files) {
		t.Fatalf("Expected %d uploaded files, got %d", len(files), len(uploaded))
	}
	for name, content := range files {
		if uploaded[name] != content {
			t.Errorf("File %s uploaded as %q, expected %q", name, uploaded[name], content)
		}
	}
}

func TestPushModelDirRejectsEmptyDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request expected for an empty model directory")
	}))
	defer srv.Close()

	client, err := NewClient("test-token", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := client.PushModelDir(context.Background(), "my-model", t.TempDir()); err == nil {
		t.Error("Expected an error for an empty model directory")
	}
}
