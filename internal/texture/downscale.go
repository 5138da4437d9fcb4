package texture

import (
	"image"

	"golang.org/x/image/draw"
)

// Downscale shrinks img so neither side exceeds maxSize, keeping the aspect
// ratio. Images already within bounds, or maxSize <= 0, are returned as is.
// Color is filtered premultiplied so transparent texels do not bleed dark
// fringes into their neighbours.
func Downscale(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return img
	}
	if w >= h {
		h = max(1, h*maxSize/w)
		w = maxSize
	} else {
		w = max(1, w*maxSize/h)
		h = maxSize
	}
	rect := image.Rect(0, 0, w, h)

	if isGray(img) {
		dst := image.NewGray(rect)
		draw.CatmullRom.Scale(dst, rect, img, b, draw.Src, nil)
		return dst
	}

	// image.RGBA is premultiplied; the converter handles the alpha math.
	premul := image.NewRGBA(rect)
	draw.CatmullRom.Scale(premul, rect, img, b, draw.Src, nil)

	dst := image.NewNRGBA(rect)
	draw.Draw(dst, rect, premul, image.Point{}, draw.Src)
	return dst
}
