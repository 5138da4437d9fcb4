package meshio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"urdf-scene-logger/internal/texture"
)

// Mesh formats registered with filetype so content sniffing can override a
// misleading extension.
var (
	typeGLB     = filetype.NewType("glb", "model/gltf-binary")
	typeCOLLADA = filetype.NewType("dae", "model/vnd.collada+xml")
)

func init() {
	filetype.AddMatcher(typeGLB, func(buf []byte) bool {
		return len(buf) >= 12 && bytes.HasPrefix(buf, []byte("glTF"))
	})
	filetype.AddMatcher(typeCOLLADA, func(buf []byte) bool {
		head := buf[:min(len(buf), 1024)]
		return bytes.Contains(head, []byte("<COLLADA"))
	})
}

// Format names a supported mesh file format.
type Format string

const (
	FormatSTL     Format = "stl"
	FormatOBJ     Format = "obj"
	FormatCOLLADA Format = "dae"
	FormatGLTF    Format = "gltf"
	FormatGLB     Format = "glb"
)

// DetectFormat sniffs the content first and falls back to the extension.
func DetectFormat(path string, head []byte) (Format, error) {
	switch {
	case filetype.IsType(head, typeGLB):
		return FormatGLB, nil
	case filetype.IsType(head, typeCOLLADA):
		return FormatCOLLADA, nil
	}
	if kind, _ := filetype.Match(head); kind != filetype.Unknown {
		if !isTextual(kind) {
			return "", fmt.Errorf("meshio: %s: unsupported content type %s", path, kind.MIME.Value)
		}
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".stl":
		return FormatSTL, nil
	case ".obj":
		return FormatOBJ, nil
	case ".dae":
		return FormatCOLLADA, nil
	case ".gltf":
		return FormatGLTF, nil
	case ".glb":
		return FormatGLB, nil
	default:
		return "", fmt.Errorf("meshio: %s: unsupported mesh format %q", path, ext)
	}
}

// isTextual reports content types that may still be a text mesh format;
// filetype only recognizes binary signatures, so anything it labels as an
// image, archive or document is not a mesh.
func isTextual(kind types.Type) bool {
	return strings.HasPrefix(kind.MIME.Value, "text/") || kind.MIME.Subtype == "xml"
}

// orDefault returns textures, or an unbounded cache when it is nil.
func orDefault(textures texture.Source) texture.Source {
	if textures == nil {
		return texture.NewCache(0)
	}
	return textures
}

// Load decodes the mesh file at path. Textures referenced or embedded by
// the file are read through textures, which may be nil.
func Load(path string, textures texture.Source) (*Asset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("meshio: read %s: %w", path, err)
	}
	format, err := DetectFormat(path, raw[:min(len(raw), 8192)])
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	switch format {
	case FormatSTL:
		m, err := DecodeSTL(raw, name)
		if err != nil {
			return nil, err
		}
		return &Asset{Mesh: m}, nil
	case FormatOBJ:
		return DecodeOBJ(raw, name, dir, textures)
	case FormatCOLLADA:
		return DecodeCOLLADA(raw, name, dir, textures)
	default:
		return DecodeGLTF(path, textures)
	}
}
