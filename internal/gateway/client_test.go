package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docvault/client/internal/apperr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(server.URL, "test-token", 5*time.Second, zerolog.Nop())
	return client, server
}

func TestListVersionsBareArray(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected a request id header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"v2","version_number":2,"is_current":true},{"id":"v1","version_number":1}]`))
	})

	versions, err := client.ListVersions(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if !versions[0].IsCurrent {
		t.Error("expected first version to be current")
	}
}

func TestListVersionsResultsEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"id":"v1","version_number":1}]}`))
	})

	versions, err := client.ListVersions(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 1 || versions[0].ID != "v1" {
		t.Errorf("unexpected versions: %+v", versions)
	}
}

func TestListVersionsVersionsEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"document_id":"doc-1","current_version":3,"versions":[{"id":"v3","version_number":3,"is_current":true}]}`))
	})

	versions, err := client.ListVersions(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 1 || versions[0].VersionNumber != 3 {
		t.Errorf("unexpected versions: %+v", versions)
	}
}

func TestErrorEnvelopeDetail(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Document not found."}`))
	})

	_, err := client.GetDocument(context.Background(), "missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if !strings.Contains(err.Error(), "Document not found.") {
		t.Errorf("expected envelope detail in message, got %q", err.Error())
	}
}

func TestErrorEnvelopeErrorField(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Only the document owner can rollback versions."}`))
	})

	_, err := client.Rollback(context.Background(), "doc-1", "v1", "")
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestErrorEnvelopeFallbackMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<html>oops</html>`))
	})

	_, err := client.GetDocument(context.Background(), "doc-1")
	if !apperr.Is(err, apperr.KindNetwork) {
		t.Fatalf("expected network kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "request failed") {
		t.Errorf("expected generic fallback message, got %q", err.Error())
	}
}

func TestCreateVersionMultipart(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("inherit_metadata"); got != "false" {
			t.Errorf("inherit_metadata = %q", got)
		}
		if got := r.FormValue("title"); got != "Q3 Report" {
			t.Errorf("title = %q", got)
		}
		if got := r.Form["tag_ids"]; len(got) != 2 {
			t.Errorf("expected 2 tag ids, got %v", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "report.pdf" {
			t.Errorf("filename = %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"v4","version_number":4,"is_current":true}`))
	})

	version, err := client.CreateVersion(context.Background(), "doc-1", CreateVersionRequest{
		FileName:        "report.pdf",
		File:            strings.NewReader("%PDF-1.4 fake"),
		InheritMetadata: false,
		Title:           "Q3 Report",
		TagIDs:          []int64{3, 7},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	if version.VersionNumber != 4 || !version.IsCurrent {
		t.Errorf("unexpected version: %+v", version)
	}
}

func TestCreateVersionInheritSkipsMetadataFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("inherit_metadata"); got != "true" {
			t.Errorf("inherit_metadata = %q", got)
		}
		if _, ok := r.MultipartForm.Value["title"]; ok {
			t.Error("title must not be sent when inheriting metadata")
		}
		if _, ok := r.MultipartForm.Value["tag_ids"]; ok {
			t.Error("tag_ids must not be sent when inheriting metadata")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"v5","version_number":5,"is_current":true}`))
	})

	_, err := client.CreateVersion(context.Background(), "doc-1", CreateVersionRequest{
		FileName:        "report.txt",
		File:            strings.NewReader("contents"),
		InheritMetadata: true,
		Title:           "ignored",
		TagIDs:          []int64{9},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
}

func TestDownloadVersionJSONURL(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"download_url":"https://cdn.example.com/signed/v1"}`))
	})

	dl, err := client.DownloadVersion(context.Background(), "doc-1", "v1")
	if err != nil {
		t.Fatalf("DownloadVersion failed: %v", err)
	}
	if dl.URL != "https://cdn.example.com/signed/v1" {
		t.Errorf("unexpected url %q", dl.URL)
	}
	if dl.Data != nil {
		t.Error("expected no inline payload")
	}
}

func TestDownloadVersionBinary(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("raw file contents"))
	})

	dl, err := client.DownloadVersion(context.Background(), "doc-1", "v1")
	if err != nil {
		t.Fatalf("DownloadVersion failed: %v", err)
	}
	if string(dl.Data) != "raw file contents" {
		t.Errorf("unexpected payload %q", dl.Data)
	}
	if dl.ContentType != "text/plain" {
		t.Errorf("unexpected content type %q", dl.ContentType)
	}
}

func TestDeleteVersionNoContent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteVersion(context.Background(), "doc-1", "v1"); err != nil {
		t.Fatalf("DeleteVersion failed: %v", err)
	}
}

func TestFetchURLSkipsCredentials(t *testing.T) {
	client := New("http://unused.invalid", "test-token", 5*time.Second, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("pre-signed fetch must not carry credentials")
		}
		w.Write([]byte("signed payload"))
	}))
	defer server.Close()

	data, _, err := client.FetchURL(context.Background(), server.URL+"/blob")
	if err != nil {
		t.Fatalf("FetchURL failed: %v", err)
	}
	if string(data) != "signed payload" {
		t.Errorf("unexpected payload %q", data)
	}
}

func TestNetworkErrorKind(t *testing.T) {
	client := New("http://127.0.0.1:1", "", 500*time.Millisecond, zerolog.Nop())
	_, err := client.GetDocument(context.Background(), "doc-1")
	if !apperr.Is(err, apperr.KindNetwork) {
		t.Fatalf("expected network kind, got %v", err)
	}
}
