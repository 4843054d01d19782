package transform

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// aspectTolerance is the aspect-ratio difference below which SmartCrop only resizes.
const aspectTolerance = 0.01

// SmartCrop center-crops img to the tw:th aspect ratio and resizes the result to
// exactly tw x th.
func SmartCrop(img image.Image, tw, th int) *image.NRGBA {
	b := img.Bounds()
	ow, oh := b.Dx(), b.Dy()
	if tw <= 0 || th <= 0 || ow <= 0 || oh <= 0 {
		return imaging.Clone(img)
	}

	targetRatio := float64(tw) / float64(th)
	sourceRatio := float64(ow) / float64(oh)

	if math.Abs(targetRatio-sourceRatio) < aspectTolerance {
		return imaging.Resize(img, tw, th, imaging.Lanczos)
	}

	cw, ch := ow, oh
	if sourceRatio > targetRatio {
		cw = max(int(float64(oh)*targetRatio), 1)
	} else {
		ch = max(int(float64(ow)/targetRatio), 1)
	}

	return imaging.Resize(imaging.CropCenter(img, cw, ch), tw, th, imaging.Lanczos)
}
