// Package store is the sole channel to the remote content repository: work
// discovery, metadata, body downloads, preview uploads and property posts.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Property names used by the preview pipeline. All writes are last-writer-wins
// overwrites keyed by content id; the claim marker is advisory, not a lock.
const (
	PropMimeType         = "mimeType"
	PropFileExtension    = "fileExtension"
	PropProcessedBy      = "processedBy"
	PropHasPreview       = "hasPreview"
	PropNeedsProcessing  = "needsProcessing"
	PropProcessingFailed = "processingFailed"
	PropProcessedAt      = "processedAt"
	PropPageCount        = "pageCount"
	PropCreatedFor       = "createdFor"
)

// ContentItem identifies one unit of preview work as returned by the
// needs-processing search.
type ContentItem struct {
	Path             string         `json:"path"`
	MimeType         string         `json:"mimeType"`
	FileExtension    string         `json:"fileExtension"`
	CreatedFor       string         `json:"createdFor"`
	ProcessedBy      string         `json:"processedBy"`
	NeedsProcessing  bool           `json:"needsProcessing"`
	HasPreview       bool           `json:"hasPreview"`
	ProcessingFailed bool           `json:"processingFailed"`
	ProcessedAt      int64          `json:"processedAt"`
	Structure        map[string]any `json:"structure,omitempty"`
}

// UserMeta carries the subset of a user's profile the pipeline cares about.
type UserMeta struct {
	User struct {
		Properties struct {
			AutoTagging bool `json:"isAutoTagging"`
			SendTagMsg  bool `json:"sendTagMsg"`
		} `json:"properties"`
	} `json:"user"`
}

// StatusError is returned for non-2xx repository responses. Message carries
// the status.message field from the JSON body when one was present.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("content store returned status %d", e.Code)
	}
	return fmt.Sprintf("content store returned status %d: %s", e.Code, e.Message)
}

// Client talks to the content repository over authenticated HTTP. Metadata
// and property traffic goes to the base URL; body downloads go to the content
// URL, which may be a separate host serving raw bytes.
type Client struct {
	baseURL    string
	contentURL string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the given server URLs and credentials.
func New(serverURL, contentServerURL, username, password string) (*Client, error) {
	base, err := normalizeURL(serverURL)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	content, err := normalizeURL(contentServerURL)
	if err != nil {
		return nil, fmt.Errorf("content server url: %w", err)
	}
	return &Client{
		baseURL:    base,
		contentURL: content,
		username:   username,
		password:   password,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}, nil
}

func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("missing scheme or host in %q", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// ListNeedsProcessing returns all items flagged for preview processing.
// An empty result is not an error.
func (c *Client) ListNeedsProcessing(ctx context.Context) ([]ContentItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/var/search/needsprocessing.json", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	var response struct {
		Results []ContentItem `json:"results"`
	}
	if err := c.doJSON(req, &response); err != nil {
		return nil, fmt.Errorf("fetching needs-processing search: %w", err)
	}
	return response.Results, nil
}

// GetMetadata fetches the full metadata map for one content item.
func (c *Client) GetMetadata(ctx context.Context, id string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/p/"+url.PathEscape(id)+".json", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	var meta map[string]any
	if err := c.doJSON(req, &meta); err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", id, err)
	}
	return meta, nil
}

// GetUserMeta fetches profile properties for the given user.
func (c *Client) GetUserMeta(ctx context.Context, userID string) (UserMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system/me?uid="+url.QueryEscape(userID), nil)
	if err != nil {
		return UserMeta{}, fmt.Errorf("creating request: %w", err)
	}
	var meta UserMeta
	if err := c.doJSON(req, &meta); err != nil {
		return UserMeta{}, fmt.Errorf("fetching user meta for %s: %w", userID, err)
	}
	return meta, nil
}

// DownloadBody streams the content body to destPath, creating parent
// directories as needed.
func (c *Client) DownloadBody(ctx context.Context, id, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentURL+"/p/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading body for %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("downloading body for %s: %w", id, statusError(resp))
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("writing body to %s: %w", destPath, err)
	}
	return nil
}

// PostProperties overwrites properties on a content item. A positive timeout
// bounds the call so a stuck repository cannot stall the batch.
func (c *Client) PostProperties(ctx context.Context, id string, props map[string]string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	form := url.Values{}
	for k, v := range props {
		form.Set(k, v)
	}
	if err := c.postForm(ctx, "/p/"+url.PathEscape(id)+".json", form); err != nil {
		return fmt.Errorf("posting properties for %s: %w", id, err)
	}
	return nil
}

// ClaimBatch marks every listed item as processed-by owner in a single
// batched request. The claim is advisory: a concurrent worker may overwrite
// it, which results in redundant but harmless reprocessing.
func (c *Client) ClaimBatch(ctx context.Context, ids []string, owner string) error {
	type batchRequest struct {
		URL        string            `json:"url"`
		Method     string            `json:"method"`
		Parameters map[string]string `json:"parameters"`
	}
	batch := make([]batchRequest, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, batchRequest{
			URL:        "/p/" + id + ".json",
			Method:     http.MethodPost,
			Parameters: map[string]string{PropProcessedBy: owner},
		})
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding claim batch: %w", err)
	}

	form := url.Values{}
	form.Set("requests", string(payload))
	if err := c.postForm(ctx, "/system/batch", form); err != nil {
		return fmt.Errorf("claiming %d item(s): %w", len(ids), err)
	}
	return nil
}

// UploadPreview uploads one rendered page image for a content item.
func (c *Client) UploadPreview(ctx context.Context, id string, page int, sizeClass, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening preview %s: %w", filePath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("thumbnail", filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("reading preview %s: %w", filePath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/system/pool/createfile.%s.page%d-%s", c.baseURL, id, page, sizeClass)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading preview for %s page %d: %w", id, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("uploading preview for %s page %d: %w", id, page, statusError(resp))
	}
	io.Copy(io.Discard, resp.Body)
	c.logger.Debug("uploaded preview", "content_id", id, "page", page, "size", sizeClass)
	return nil
}

// PostTags applies tags to a content item.
func (c *Client) PostTags(ctx context.Context, id string, tags []string) error {
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)

	form := url.Values{}
	for _, tag := range sorted {
		form.Add("key", "/tags/"+tag)
	}
	form.Set(":operation", "tag")
	if err := c.postForm(ctx, "/p/"+url.PathEscape(id), form); err != nil {
		return fmt.Errorf("tagging %s: %w", id, err)
	}
	return nil
}

// CreateNotification posts an internal message to a user's inbox.
func (c *Client) CreateNotification(ctx context.Context, to, from, subject, body string) error {
	form := url.Values{}
	form.Set("type", "internal")
	form.Set("sendstate", "pending")
	form.Set("messagebox", "outbox")
	form.Set("to", "internal:"+to)
	form.Set("from", from)
	form.Set("subject", subject)
	form.Set("body", body)
	form.Set("category", "message")
	if err := c.postForm(ctx, "/~admin/message.create.json", form); err != nil {
		return fmt.Errorf("creating notification for %s: %w", to, err)
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) doJSON(req *http.Request, v any) error {
	req.SetBasicAuth(c.username, c.password)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError reads the response body looking for a status.message field.
func statusError(resp *http.Response) *StatusError {
	serr := &StatusError{Code: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return serr
	}
	var parsed struct {
		Status struct {
			Message string `json:"message"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		serr.Message = parsed.Status.Message
	}
	return serr
}
