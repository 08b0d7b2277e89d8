package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, srv.URL, "admin", "admin")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestListNeedsProcessing(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/var/search/needsprocessing.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "admin" {
			t.Error("missing basic auth")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"path": "abc123", "mimeType": "application/pdf", "needsProcessing": true},
			},
		})
	}))

	items, err := c.ListNeedsProcessing(context.Background())
	if err != nil {
		t.Fatalf("ListNeedsProcessing: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Path != "abc123" || items[0].MimeType != "application/pdf" {
		t.Errorf("unexpected item %+v", items[0])
	}
}

func TestListNeedsProcessingEmpty(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))

	items, err := c.ListNeedsProcessing(context.Background())
	if err != nil {
		t.Fatalf("ListNeedsProcessing: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestStatusErrorCarriesMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]string{"message": "index unavailable"},
		})
	}))

	_, err := c.ListNeedsProcessing(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("error %v is not a StatusError", err)
	}
	if serr.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want 500", serr.Code)
	}
	if serr.Message != "index unavailable" {
		t.Errorf("Message = %q, want %q", serr.Message, "index unavailable")
	}
}

func TestStatusErrorCarriesMessageOnPost(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]string{"message": "index unavailable"},
		})
	}))

	err := c.PostProperties(context.Background(), "doc1", map[string]string{"hasPreview": "true"}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("error %v is not a StatusError", err)
	}
	if serr.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want 500", serr.Code)
	}
	if serr.Message != "index unavailable" {
		t.Errorf("Message = %q, want %q", serr.Message, "index unavailable")
	}
}

func TestClaimBatch(t *testing.T) {
	var gotRequests string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/system/batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		r.ParseForm()
		gotRequests = r.PostFormValue("requests")
	}))

	if err := c.ClaimBatch(context.Background(), []string{"a", "b"}, "123@host"); err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}

	var batch []struct {
		URL        string            `json:"url"`
		Method     string            `json:"method"`
		Parameters map[string]string `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(gotRequests), &batch); err != nil {
		t.Fatalf("parsing batch payload: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch size %d, want 2", len(batch))
	}
	if batch[0].URL != "/p/a.json" || batch[0].Parameters[PropProcessedBy] != "123@host" {
		t.Errorf("unexpected claim request %+v", batch[0])
	}
}

func TestPostProperties(t *testing.T) {
	var gotPath, gotValue string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		r.ParseForm()
		gotValue = r.PostFormValue(PropHasPreview)
	}))

	err := c.PostProperties(context.Background(), "abc", map[string]string{PropHasPreview: "true"}, 0)
	if err != nil {
		t.Fatalf("PostProperties: %v", err)
	}
	if gotPath != "/p/abc.json" {
		t.Errorf("path = %s, want /p/abc.json", gotPath)
	}
	if gotValue != "true" {
		t.Errorf("hasPreview = %q, want true", gotValue)
	}
}

func TestDownloadBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/p/abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("document bytes"))
	}))

	dest := filepath.Join(t.TempDir(), "docs", "abc.pdf")
	if err := c.DownloadBody(context.Background(), "abc", dest); err != nil {
		t.Fatalf("DownloadBody: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(data) != "document bytes" {
		t.Errorf("downloaded %q", data)
	}
}

func TestUploadPreview(t *testing.T) {
	var gotPath string
	var gotSize int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		f, _, err := r.FormFile("thumbnail")
		if err != nil {
			t.Errorf("missing thumbnail part: %v", err)
			return
		}
		defer f.Close()
		buf := make([]byte, 32)
		n, _ := f.Read(buf)
		gotSize = n
	}))

	src := filepath.Join(t.TempDir(), "page.1.jpg")
	if err := os.WriteFile(src, []byte("jpegbytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.UploadPreview(context.Background(), "abc", 1, "small", src); err != nil {
		t.Fatalf("UploadPreview: %v", err)
	}
	if gotPath != "/system/pool/createfile.abc.page1-small" {
		t.Errorf("path = %s", gotPath)
	}
	if gotSize != len("jpegbytes") {
		t.Errorf("uploaded %d bytes, want %d", gotSize, len("jpegbytes"))
	}
}

func TestPostTags(t *testing.T) {
	var gotKeys []string
	var gotOp string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotKeys = r.PostForm["key"]
		gotOp = r.PostFormValue(":operation")
	}))

	if err := c.PostTags(context.Background(), "abc", []string{"zebra", "apple"}); err != nil {
		t.Fatalf("PostTags: %v", err)
	}
	if gotOp != "tag" {
		t.Errorf(":operation = %q, want tag", gotOp)
	}
	if len(gotKeys) != 2 || gotKeys[0] != "/tags/apple" || gotKeys[1] != "/tags/zebra" {
		t.Errorf("keys = %v, want sorted /tags/ entries", gotKeys)
	}
}
