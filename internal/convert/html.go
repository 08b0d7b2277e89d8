package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// HTMLRenderer drives wkhtmltopdf to render a set of page URLs into a single
// PDF. It exists for content types whose canonical form is a set of rendered
// web pages rather than a downloadable document body.
type HTMLRenderer struct {
	bin string
}

// NewHTMLRenderer resolves wkhtmltopdf on PATH. A missing binary is a startup
// error for deployments that enable rendered-document types.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	bin, err := exec.LookPath("wkhtmltopdf")
	if err != nil {
		return nil, fmt.Errorf("wkhtmltopdf not found on PATH: %w", err)
	}
	slog.Info("using wkhtmltopdf", "path", bin)
	return &HTMLRenderer{bin: bin}, nil
}

// RenderPDF renders the given URLs, in order, into the PDF at outputPath.
// Authentication with the remote server is carried by a cookie pair when set.
func (h *HTMLRenderer) RenderPDF(ctx context.Context, urls []string, cookieName, cookieValue, outputPath string) error {
	if len(urls) == 0 {
		return fmt.Errorf("no page urls to render")
	}

	var args []string
	if cookieName != "" {
		args = append(args, "--cookie", cookieName, cookieValue)
	}
	args = append(args, urls...)
	args = append(args, outputPath)

	cmd := exec.CommandContext(ctx, h.bin, args...)
	slog.Info("rendering pages to pdf", "pages", len(urls), "output", outputPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("wkhtmltopdf failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
