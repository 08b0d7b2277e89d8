// Package preview renders preview thumbnails from raster images.
package preview

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const jpegQuality = 85

// Renderer resizes raster images to fit within a bounding box while
// preserving the input aspect ratio. The zero value is ready to use.
type Renderer struct{}

// Resize reads the image at inputPath and writes a scaled copy to outputPath.
// maxHeight <= 0 derives the height bound from maxWidth and the original
// aspect ratio. Images already within the box are written unscaled.
// Downscaling halves the image repeatedly with bilinear interpolation rather
// than jumping to the target in one pass, which avoids aliasing on large
// reductions. The output keeps the input's format family.
func (Renderer) Resize(inputPath, outputPath string, maxWidth, maxHeight int) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening image %s: %w", inputPath, err)
	}
	img, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding image %s: %w", inputPath, err)
	}

	bounds := img.Bounds()
	width := float64(bounds.Dx())
	height := float64(bounds.Dy())

	if maxHeight <= 0 {
		maxHeight = int(height / (width / float64(maxWidth)))
		if maxHeight < 1 {
			maxHeight = 1
		}
	}

	// The dimension that overflows its bound the most is the binding
	// constraint; scale by the smaller candidate factor.
	imageRatio := width / height
	boxRatio := float64(maxWidth) / float64(maxHeight)
	var scale float64
	if imageRatio > boxRatio {
		scale = float64(maxWidth) / width
	} else {
		scale = float64(maxHeight) / height
	}

	scaled := img
	if scale < 1 {
		targetWidth := int(width * scale)
		targetHeight := int(height * scale)
		if targetWidth < 1 {
			targetWidth = 1
		}
		if targetHeight < 1 {
			targetHeight = 1
		}
		scaled = downscale(img, targetWidth, targetHeight)
	}

	return writeImage(scaled, format, outputPath)
}

// downscale halves the image until the target dimensions are reached,
// clamping the last step to the exact target.
func downscale(img image.Image, targetWidth, targetHeight int) image.Image {
	src := img
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()

	for w > targetWidth || h > targetHeight {
		w /= 2
		if w < targetWidth {
			w = targetWidth
		}
		h /= 2
		if h < targetHeight {
			h = targetHeight
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		src = dst
	}
	return src
}

func writeImage(img image.Image, format, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	defer out.Close()

	switch format {
	case "png":
		err = png.Encode(out, img)
	case "gif":
		err = gif.Encode(out, img, nil)
	default:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", outputPath, err)
	}
	return nil
}
