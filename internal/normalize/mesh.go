package normalize

import (
	"image"

	"urdf-scene-logger/internal/mathutil"
	"urdf-scene-logger/internal/meshio"
	"urdf-scene-logger/internal/texture"
)

// DefaultColor is the vertex color of meshes without any material source.
var DefaultColor = [4]uint8{102, 102, 102, 255}

// Mesh is the normalized output: after FromMesh exactly one of Colors or
// Albedo is set. UVs use the renderer convention (v grows downward).
type Mesh struct {
	Positions [][3]float32
	Indices   [][3]uint32
	Normals   [][3]float32
	UVs       [][2]float32
	Colors    [][4]uint8
	Albedo    *texture.Albedo
}

// Override is shading imposed from outside the asset, typically by the
// robot description. At most one field is expected to be set; Albedo wins.
type Override struct {
	Color  *[4]float64
	Albedo image.Image
}

// Empty returns a mesh with no geometry, used as a placeholder for shapes
// that cannot be represented.
func Empty() *Mesh {
	return &Mesh{}
}

// FromMesh converts a decoded mesh. Shading is taken from the first
// available source: override texture, override color, embedded texture,
// embedded base color, embedded diffuse color, per-vertex colors, and
// finally DefaultColor.
func FromMesh(m *meshio.Mesh, override *Override) *Mesh {
	out := &Mesh{
		Positions: append([][3]float32(nil), m.Positions...),
		Indices:   append([][3]uint32(nil), m.Indices...),
	}

	if len(m.Normals) == len(m.Positions) && len(m.Normals) > 0 {
		out.Normals = append([][3]float32(nil), m.Normals...)
	} else {
		out.Normals = VertexNormals(m.Positions, m.Indices)
	}

	if len(m.UVs) == len(m.Positions) && len(m.UVs) > 0 {
		out.UVs = FlipV(m.UVs)
	}

	n := len(m.Positions)
	mat := m.Material
	switch {
	case override != nil && override.Albedo != nil:
		out.Albedo = texture.ToAlbedo(override.Albedo)
	case override != nil && override.Color != nil:
		out.Colors = uniform(n, colorBytes(*override.Color))
	case mat != nil && mat.Albedo != nil:
		out.Albedo = texture.ToAlbedo(mat.Albedo)
	case mat != nil && mat.BaseColor != nil:
		out.Colors = uniform(n, colorBytes(*mat.BaseColor))
	case mat != nil && mat.Diffuse != nil:
		out.Colors = uniform(n, colorBytes(*mat.Diffuse))
	case len(m.Colors) == n && n > 0:
		out.Colors = append([][4]uint8(nil), m.Colors...)
	default:
		out.Colors = uniform(n, DefaultColor)
	}
	return out
}

// FlipV converts texture coordinates between the OpenGL (v up) and the
// image-row (v down) conventions.
func FlipV(uvs [][2]float32) [][2]float32 {
	out := make([][2]float32, len(uvs))
	for i, uv := range uvs {
		out[i] = [2]float32{uv[0], 1 - uv[1]}
	}
	return out
}

// VertexNormals computes area-weighted vertex normals. Vertices not used by
// any non-degenerate triangle get +Z.
func VertexNormals(positions [][3]float32, indices [][3]uint32) [][3]float32 {
	acc := make([]mathutil.Vec3, len(positions))
	for _, tri := range indices {
		if int(tri[0]) >= len(positions) || int(tri[1]) >= len(positions) || int(tri[2]) >= len(positions) {
			continue
		}
		a := mathutil.Vec3From32(positions[tri[0]])
		b := mathutil.Vec3From32(positions[tri[1]])
		c := mathutil.Vec3From32(positions[tri[2]])
		// The cross product length is twice the triangle area.
		fn := b.Sub(a).Cross(c.Sub(a))
		for _, i := range tri {
			acc[i] = acc[i].Add(fn)
		}
	}
	out := make([][3]float32, len(positions))
	for i, v := range acc {
		n := v.Normalize()
		if n == (mathutil.Vec3{}) {
			n = mathutil.Vec3{0, 0, 1}
		}
		out[i] = n.To32()
	}
	return out
}

func uniform(n int, c [4]uint8) [][4]uint8 {
	out := make([][4]uint8, n)
	for i := range out {
		out[i] = c
	}
	return out
}

// colorBytes maps an RGBA color in 0..1 to 8-bit channels.
func colorBytes(c [4]float64) [4]uint8 {
	var out [4]uint8
	for i, v := range c {
		switch {
		case v <= 0:
			out[i] = 0
		case v >= 1:
			out[i] = 255
		default:
			out[i] = uint8(v*255 + 0.5)
		}
	}
	return out
}
