package texture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Albedo is a tightly packed 8-bit texture with 3 (RGB) or 4 (RGBA)
// channels per pixel, row-major, origin top-left.
type Albedo struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// ToAlbedo converts a decoded image. Single-channel images are replicated
// into three channels; fully opaque images drop alpha.
func ToAlbedo(img image.Image) *Albedo {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if isGray(img) {
		a := &Albedo{Width: w, Height: h, Channels: 3, Pix: make([]byte, 0, w*h*3)}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				g := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				a.Pix = append(a.Pix, g, g, g)
			}
		}
		return a
	}

	n := toNRGBA(img)
	if opaque(n) {
		a := &Albedo{Width: w, Height: h, Channels: 3, Pix: make([]byte, 0, w*h*3)}
		for y := 0; y < h; y++ {
			row := n.Pix[y*n.Stride : y*n.Stride+w*4]
			for i := 0; i < len(row); i += 4 {
				a.Pix = append(a.Pix, row[i], row[i+1], row[i+2])
			}
		}
		return a
	}

	a := &Albedo{Width: w, Height: h, Channels: 4, Pix: make([]byte, 0, w*h*4)}
	for y := 0; y < h; y++ {
		a.Pix = append(a.Pix, n.Pix[y*n.Stride:y*n.Stride+w*4]...)
	}
	return a
}

// FromImage builds an albedo with a fixed channel count, for images that
// were already repaired once (e.g. decoded back from a record stream).
func FromImage(img image.Image, channels int) (*Albedo, error) {
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("texture: unsupported channel count %d", channels)
	}
	n := toNRGBA(img)
	w, h := n.Rect.Dx(), n.Rect.Dy()
	a := &Albedo{Width: w, Height: h, Channels: channels, Pix: make([]byte, 0, w*h*channels)}
	for y := 0; y < h; y++ {
		row := n.Pix[y*n.Stride : y*n.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			a.Pix = append(a.Pix, row[i:i+channels]...)
		}
	}
	return a, nil
}

// Image expands the albedo into an NRGBA image.
func (a *Albedo) Image() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, a.Width, a.Height))
	for i, j := 0, 0; i+a.Channels <= len(a.Pix) && j < len(dst.Pix); i, j = i+a.Channels, j+4 {
		dst.Pix[j] = a.Pix[i]
		dst.Pix[j+1] = a.Pix[i+1]
		dst.Pix[j+2] = a.Pix[i+2]
		if a.Channels == 4 {
			dst.Pix[j+3] = a.Pix[i+3]
		} else {
			dst.Pix[j+3] = 255
		}
	}
	return dst
}

func isGray(img image.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return true
	}
	return false
}

func opaque(n *image.NRGBA) bool {
	w := n.Rect.Dx()
	for y := 0; y < n.Rect.Dy(); y++ {
		row := n.Pix[y*n.Stride : y*n.Stride+w*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] != 255 {
				return false
			}
		}
	}
	return true
}

// toNRGBA converts any image to a zero-origin NRGBA image.
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
