package texture

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ftrvxmtrx/tga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "tex.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestGrayscaleRepair(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range gray.Pix {
		gray.Pix[i] = 200
	}
	img, err := Load(writePNG(t, gray))
	require.NoError(t, err)

	a := ToAlbedo(img)
	assert.Equal(t, 4, a.Width)
	assert.Equal(t, 4, a.Height)
	assert.Equal(t, 3, a.Channels)
	require.Len(t, a.Pix, 4*4*3)
	for _, v := range a.Pix {
		assert.Equal(t, byte(200), v)
	}
}

func TestAlbedoChannels(t *testing.T) {
	opaqueImg := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	opaqueImg.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	opaqueImg.Set(1, 0, color.NRGBA{0, 0, 255, 255})
	a := ToAlbedo(opaqueImg)
	assert.Equal(t, 3, a.Channels)
	assert.Equal(t, []byte{255, 0, 0, 0, 0, 255}, a.Pix)

	clear := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	clear.Set(0, 0, color.NRGBA{10, 20, 30, 128})
	a = ToAlbedo(clear)
	assert.Equal(t, 4, a.Channels)
	assert.Equal(t, []byte{10, 20, 30, 128}, a.Pix)

	back := a.Image()
	assert.Equal(t, color.NRGBA{10, 20, 30, 128}, back.NRGBAAt(0, 0))
}

func TestFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{1, 2, 3, 255})

	a, err := FromImage(img, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, a.Pix)

	_, err = FromImage(img, 1)
	assert.Error(t, err)
}

func TestDecodeFormats(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := 0; i < len(src.Pix); i += 4 {
		copy(src.Pix[i:], []byte{200, 40, 10, 255})
	}

	tests := []struct {
		name   string
		encode func(io.Writer, image.Image) error
		exact  bool
	}{
		{"albedo.png", png.Encode, true},
		{"albedo.jpg", func(w io.Writer, m image.Image) error { return jpeg.Encode(w, m, &jpeg.Options{Quality: 100}) }, false},
		{"albedo.gif", func(w io.Writer, m image.Image) error {
			p := image.NewPaletted(m.Bounds(), color.Palette{color.NRGBA{200, 40, 10, 255}})
			return gif.Encode(w, p, nil)
		}, true},
		{"albedo.bmp", bmp.Encode, true},
		{"albedo.tiff", func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) }, true},
		{"albedo.tga", tga.Encode, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tt.encode(&buf, src))

			img, err := Decode(buf.Bytes(), tt.name)
			require.NoError(t, err)
			assert.Equal(t, src.Bounds(), img.Bounds())

			got := color.NRGBAModel.Convert(img.At(1, 1)).(color.NRGBA)
			if tt.exact {
				assert.Equal(t, color.NRGBA{200, 40, 10, 255}, got)
			} else {
				assert.InDelta(t, 200, int(got.R), 12)
				assert.InDelta(t, 40, int(got.G), 12)
				assert.InDelta(t, 10, int(got.B), 12)
			}
		})
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3, 4, 5, 6, 7, 8}, "noise.png")
	assert.ErrorContains(t, err, "unknown image format")
}

func TestDecodeRejectsNonImage(t *testing.T) {
	_, err := Decode([]byte("%PDF-1.4\n"), "doc.png")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestDownscale(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 64, 32))
	out := Downscale(src, 16)
	assert.Equal(t, image.Rect(0, 0, 16, 8), out.Bounds())

	assert.Same(t, src, Downscale(src, 0))
	assert.Same(t, src, Downscale(src, 64))

	gray := image.NewGray(image.Rect(0, 0, 8, 32))
	out = Downscale(gray, 4)
	assert.Equal(t, image.Rect(0, 0, 1, 4), out.Bounds())
	_, isGray := out.(*image.Gray)
	assert.True(t, isGray)
}

func TestCache(t *testing.T) {
	path := writePNG(t, image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	c := NewCache(4)

	first, err := c.Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), first.Bounds())

	second, err := c.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = c.Load(path + ".missing")
	assert.Error(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestCacheDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 64, 32))))
	c := NewCache(16)

	img, err := c.Decode(buf.Bytes(), "embedded")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
	assert.Zero(t, c.Len())

	_, err = c.Decode([]byte("not an image"), "embedded")
	assert.Error(t, err)
}
