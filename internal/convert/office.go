// Package convert turns arbitrary documents into page-renderable PDFs and
// rasterizes PDF pages into JPEG images.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrConverterUnavailable means the external conversion service could not be
// reached. Callers distinguish it from malformed-input failures when deciding
// whether retrying at the service level makes sense.
var ErrConverterUnavailable = errors.New("document conversion service unavailable")

// OfficeClient converts office documents to PDF through a long-lived
// conversion service (a JODConverter/LibreOffice HTTP frontend) at a
// configured host:port. The HTTP connection pool is created lazily and
// reused across calls.
type OfficeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOfficeClient creates a client for the conversion service at host:port.
func NewOfficeClient(host string, port int) *OfficeClient {
	return &OfficeClient{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
}

// ConvertToPDF sends the document at inputPath to the conversion service and
// writes the returned PDF to outputPath.
func (c *OfficeClient) ConvertToPDF(ctx context.Context, inputPath, outputPath string) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inputPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(inputPath))
	if err != nil {
		return fmt.Errorf("building conversion request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("building conversion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert-to/pdf", &body)
	if err != nil {
		return fmt.Errorf("creating conversion request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Info("converting document to pdf", "input", inputPath, "output", outputPath)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return fmt.Errorf("%w: %v", ErrConverterUnavailable, err)
		}
		return fmt.Errorf("requesting conversion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("conversion service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("writing converted pdf: %w", err)
	}
	return nil
}
