// Package textextract pulls plain text out of content bodies so the term
// extractor has something to chew on. Extraction is best effort: formats we
// cannot read yield an error and the caller decides whether tagging is
// optional for that item.
package textextract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ForFile extracts the textual content of the file at path. The mimetype
// picks the extraction strategy; parameters after a ";" are ignored.
func ForFile(path, mimetype string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(mimetype))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case mt == "text/plain":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return string(data), nil
	case mt == "text/html" || mt == "application/xhtml+xml":
		return fromHTML(path)
	case mt == "application/pdf":
		return fromPDF(path)
	default:
		res, err := docconv.ConvertPath(path)
		if err != nil {
			return "", fmt.Errorf("converting %s (%s): %w", path, mt, err)
		}
		return res.Body, nil
	}
}

// fromHTML walks the parse tree and collects text nodes, skipping script and
// style elements whose contents are not prose.
func fromHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", fmt.Errorf("parsing html in %s: %w", path, err)
	}

	var buf bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(buf.String()), nil
}

func fromPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	body, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text from %s: %w", path, err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading pdf text from %s: %w", path, err)
	}
	return string(data), nil
}
