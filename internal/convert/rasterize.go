package convert

import (
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer renders PDF pages to JPEG files. The zero value uses a sensible
// JPEG quality.
type Rasterizer struct {
	// Quality is the JPEG encode quality; <= 0 means 90.
	Quality int
}

// RasterizePages writes one JPEG per page of the PDF at pdfPath using the
// naming convention outputPrefix + pageNumber + ".jpg" (pages are numbered
// from 1). maxPages < 0 renders all pages; any other value renders exactly
// the first page. Returns the number of pages written; a document that yields
// no pages returns 0 without error.
func (r Rasterizer) RasterizePages(pdfPath, outputPrefix string, maxPages int) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("opening pdf %s: %w", pdfPath, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		slog.Warn("pdf produced no pages", "pdf", pdfPath)
		return 0, nil
	}
	pages := total
	if maxPages >= 0 {
		pages = 1
	}

	quality := r.Quality
	if quality <= 0 {
		quality = 90
	}

	for i := 0; i < pages; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return 0, fmt.Errorf("rendering page %d of %s: %w", i+1, pdfPath, err)
		}
		outPath := fmt.Sprintf("%s%d.jpg", outputPrefix, i+1)
		out, err := os.Create(outPath)
		if err != nil {
			return 0, fmt.Errorf("creating %s: %w", outPath, err)
		}
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: quality})
		out.Close()
		if err != nil {
			return 0, fmt.Errorf("encoding %s: %w", outPath, err)
		}
	}
	slog.Debug("rasterized pdf pages", "pdf", pdfPath, "pages", pages)
	return pages, nil
}
