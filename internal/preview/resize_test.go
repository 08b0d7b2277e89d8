package preview

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTestImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating test image: %v", err)
	}
	defer f.Close()

	switch filepath.Ext(path) {
	case ".png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, nil)
	}
	if err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
}

func decodeSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return cfg.Width, cfg.Height
}

func TestResizeFitsBoundingBox(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jpg")
	out := filepath.Join(dir, "out.jpg")
	writeTestImage(t, in, 400, 300)

	var r Renderer
	if err := r.Resize(in, out, 180, 225); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	w, h := decodeSize(t, out)
	if w > 180 || h > 225 {
		t.Errorf("output %dx%d exceeds 180x225 box", w, h)
	}
	if w != 180 {
		t.Errorf("width = %d, want 180 (width-bound image)", w)
	}
}

func TestResizePreservesAspectRatio(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		w, h     int
		maxW     int
		maxH     int
	}{
		{"landscape derived height", 1400, 700, 700, 0},
		{"portrait fixed box", 600, 1200, 180, 225},
		{"square", 1000, 1000, 700, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := filepath.Join(dir, tt.name+".jpg")
			out := filepath.Join(dir, tt.name+"-out.jpg")
			writeTestImage(t, in, tt.w, tt.h)

			var r Renderer
			if err := r.Resize(in, out, tt.maxW, tt.maxH); err != nil {
				t.Fatalf("Resize: %v", err)
			}

			ow, oh := decodeSize(t, out)
			wantRatio := float64(tt.w) / float64(tt.h)
			gotRatio := float64(ow) / float64(oh)
			// Aspect ratio must survive within one pixel of rounding.
			tolerance := wantRatio - float64(ow)/(float64(oh)+1)
			if tolerance < 0 {
				tolerance = -tolerance
			}
			if math.Abs(gotRatio-wantRatio) > tolerance+0.02 {
				t.Errorf("aspect ratio %f, want %f (output %dx%d)", gotRatio, wantRatio, ow, oh)
			}
		})
	}
}

func TestResizeNoUpscale(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "small.jpg")
	out := filepath.Join(dir, "small-out.jpg")
	writeTestImage(t, in, 100, 80)

	var r Renderer
	if err := r.Resize(in, out, 700, 0); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	w, h := decodeSize(t, out)
	if w != 100 || h != 80 {
		t.Errorf("small image rescaled to %dx%d, want original 100x80", w, h)
	}
}

func TestResizeKeepsFormatFamily(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	writeTestImage(t, in, 400, 400)

	var r Renderer
	if err := r.Resize(in, out, 100, 100); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if format != "png" {
		t.Errorf("output format = %q, want png", format)
	}
}
