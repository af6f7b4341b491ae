// Package image loads and prepares benchmark images for feature extraction:
// decode, max-side resize, query ROI cropping and tensor conversion.
package image

import (
	"fmt"
	stdimage "image"
	"image/draw"
	"math"
	"os"

	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// ROI is a query region of interest in pixel coordinates, (Xmin, Ymin) top
// left and (Xmax, Ymax) bottom right exclusive.
type ROI struct {
	Xmin float32 `json:"xmin"`
	Ymin float32 `json:"ymin"`
	Xmax float32 `json:"xmax"`
	Ymax float32 `json:"ymax"`
}

// Load decodes the image file at path. JPEG and PNG are supported.
func Load(path string) (stdimage.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("open image %s", path), err)
	}
	defer f.Close()

	img, _, err := stdimage.Decode(f)
	if err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("decode image %s", path), err)
	}
	return img, nil
}

// ResizeRatio computes the scale factor that brings the longest image side to
// the target S. S == -1 keeps the original size. S == -2 caps the longest
// side at 1024 and never upscales.
func ResizeRatio(s, width, height int) float64 {
	maxSide := width
	if height > width {
		maxSide = height
	}
	if maxSide <= 0 {
		return 1.0
	}
	switch {
	case s == -2:
		if maxSide > 1024 {
			return 1024.0 / float64(maxSide)
		}
		return 1.0
	case s <= 0:
		return 1.0
	default:
		return float64(s) / float64(maxSide)
	}
}

// Resize scales img by the ratio for target side S using bilinear
// interpolation and returns the result together with the applied ratio. A
// ratio of exactly 1 returns the input unchanged.
func Resize(img stdimage.Image, s int) (stdimage.Image, float64) {
	b := img.Bounds()
	ratio := ResizeRatio(s, b.Dx(), b.Dy())
	if ratio == 1.0 {
		return img, 1.0
	}

	w := int(math.Round(float64(b.Dx()) * ratio))
	h := int(math.Round(float64(b.Dy()) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, ratio
}

// CropROI extracts the query region from a resized image. The ROI is given
// in original-image coordinates and is scaled by the resize ratio before
// cropping; the region is clamped to the image bounds.
func CropROI(img stdimage.Image, roi ROI, ratio float64) (stdimage.Image, error) {
	x0 := int(math.Round(float64(roi.Xmin) * ratio))
	y0 := int(math.Round(float64(roi.Ymin) * ratio))
	x1 := int(math.Round(float64(roi.Xmax) * ratio))
	y1 := int(math.Round(float64(roi.Ymax) * ratio))

	rect := stdimage.Rect(x0, y0, x1, y1).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"roi (%v, ratio %.4f) selects an empty region", roi, ratio))
	}

	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}
