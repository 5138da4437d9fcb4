// Package meshio decodes mesh asset files (STL, OBJ, COLLADA, glTF/GLB)
// and tessellates URDF primitive shapes.
package meshio

import (
	"image"

	"urdf-scene-logger/internal/mathutil"
)

// Asset is the result of decoding one file: exactly one of Mesh or Scene
// is set.
type Asset struct {
	Mesh  *Mesh
	Scene *Scene

	// Warnings lists recoverable problems met while decoding, such as a
	// texture referenced by a material library that could not be read.
	Warnings []string
}

// Mesh is an indexed triangle mesh. UVs follow the OpenGL convention
// (v grows upward).
type Mesh struct {
	Name      string
	Positions [][3]float32
	Indices   [][3]uint32
	Normals   [][3]float32 // optional, one per position
	UVs       [][2]float32 // optional, one per position
	Colors    [][4]uint8   // optional, one per position
	Material  *Material    // optional, carried by the asset itself
}

// Material is the shading information an asset file embeds.
type Material struct {
	Name string
	// BaseColor is a PBR base color factor (RGBA, 0..1).
	BaseColor *[4]float64
	// Diffuse is a classic diffuse color (RGBA, 0..1).
	Diffuse *[4]float64
	// Albedo is the decoded base color or diffuse texture.
	Albedo image.Image
	// TexturePath is where Albedo was read from, if it came from a file.
	TexturePath string
}

// HasTextureVisual reports whether the mesh brings its own texture-style
// shading: an embedded material or texture coordinates.
func (m *Mesh) HasTextureVisual() bool {
	return m.Material != nil || len(m.UVs) > 0
}

// Node is one element of a scene hierarchy. Transform maps the node's
// local frame into its parent's.
type Node struct {
	Name      string
	Transform mathutil.Mat4
	Meshes    []*Mesh
	Children  []*Node
}

// Scene is a forest of nodes.
type Scene struct {
	Roots []*Node
}

// MeshCount returns the number of mesh instances reachable from the roots.
func (s *Scene) MeshCount() int {
	n := 0
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, node := range nodes {
			n += len(node.Meshes)
			walk(node.Children)
		}
	}
	walk(s.Roots)
	return n
}
