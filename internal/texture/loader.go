// Package texture decodes material images and repairs them into the albedo
// layout the record stream carries.
package texture

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

type decodeFunc func(r *bytes.Reader) (image.Image, error)

// decoders maps a sniffed filetype extension to its decoder. The formats
// are dispatched explicitly rather than through image.Decode: tga registers
// an empty magic string and would claim every input.
var decoders = map[string]decodeFunc{
	"png":  func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
	"jpg":  func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) },
	"gif":  func(r *bytes.Reader) (image.Image, error) { return gif.Decode(r) },
	"bmp":  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
	"tif":  func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) },
	"webp": func(r *bytes.Reader) (image.Image, error) { return webp.Decode(r) },
}

// Load reads and decodes an image file. The decoded image keeps its native
// color model so grayscale sources can be told apart later.
func Load(path string) (image.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("texture: read %s: %w", path, err)
	}
	return Decode(raw, path)
}

// Decode decodes raw image bytes. The format comes from the content; name
// is used for messages and picks TGA, which has no magic number.
func Decode(raw []byte, name string) (image.Image, error) {
	kind, _ := filetype.Match(raw)
	if dec, ok := decoders[kind.Extension]; ok {
		img, err := dec(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("texture: decode %s: %w", name, err)
		}
		return img, nil
	}
	if kind == filetype.Unknown && strings.EqualFold(filepath.Ext(name), ".tga") {
		img, err := tga.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("texture: decode %s: %w", name, err)
		}
		return img, nil
	}
	if kind == filetype.Unknown {
		return nil, fmt.Errorf("texture: decode %s: unknown image format", name)
	}
	return nil, fmt.Errorf("texture: decode %s: unsupported format %s", name, kind.MIME.Value)
}
