package meshio

import (
	"math"

	"urdf-scene-logger/internal/mathutil"
)

const (
	// CylinderSections is the number of segments around a cylinder.
	CylinderSections = 32
	// IcosphereSubdivisions is the refinement level for spheres.
	IcosphereSubdivisions = 3
)

// Box returns an axis-aligned box centered on the origin: 8 shared
// vertices and 12 outward-facing triangles.
func Box(size mathutil.Vec3) *Mesh {
	hx, hy, hz := float32(size[0]/2), float32(size[1]/2), float32(size[2]/2)
	return &Mesh{
		Name: "box",
		Positions: [][3]float32{
			{-hx, -hy, -hz}, {hx, -hy, -hz}, {hx, hy, -hz}, {-hx, hy, -hz},
			{-hx, -hy, hz}, {hx, -hy, hz}, {hx, hy, hz}, {-hx, hy, hz},
		},
		Indices: [][3]uint32{
			{0, 2, 1}, {0, 3, 2}, // -z
			{4, 5, 6}, {4, 6, 7}, // +z
			{0, 1, 5}, {0, 5, 4}, // -y
			{3, 6, 2}, {3, 7, 6}, // +y
			{0, 4, 7}, {0, 7, 3}, // -x
			{1, 2, 6}, {1, 6, 5}, // +x
		},
	}
}

// Cylinder returns a capped cylinder along Z centered on the origin.
func Cylinder(radius, length float64) *Mesh {
	n := CylinderSections
	h := float32(length / 2)
	m := &Mesh{Name: "cylinder", Positions: make([][3]float32, 0, 2*n+2)}

	for _, z := range []float32{-h, h} {
		for i := 0; i < n; i++ {
			a := 2 * math.Pi * float64(i) / float64(n)
			m.Positions = append(m.Positions, [3]float32{
				float32(radius * math.Cos(a)),
				float32(radius * math.Sin(a)),
				z,
			})
		}
	}
	bottom, top := uint32(2*n), uint32(2*n+1)
	m.Positions = append(m.Positions, [3]float32{0, 0, -h}, [3]float32{0, 0, h})

	for i := 0; i < n; i++ {
		b0, b1 := uint32(i), uint32((i+1)%n)
		t0, t1 := b0+uint32(n), b1+uint32(n)
		// Two side triangles, then the bottom (-z) and top (+z) caps.
		m.Indices = append(m.Indices,
			[3]uint32{b0, b1, t1}, [3]uint32{b0, t1, t0},
			[3]uint32{bottom, b1, b0},
			[3]uint32{top, t0, t1},
		)
	}
	return m
}

// Icosphere returns a sphere built by subdividing an icosahedron
// IcosphereSubdivisions times: 642 vertices and 1280 triangles.
func Icosphere(radius float64) *Mesh {
	t := (1 + math.Sqrt(5)) / 2
	verts := []mathutil.Vec3{
		{-1, t, 0}, {1, t, 0}, {-1, -t, 0}, {1, -t, 0},
		{0, -1, t}, {0, 1, t}, {0, -1, -t}, {0, 1, -t},
		{t, 0, -1}, {t, 0, 1}, {-t, 0, -1}, {-t, 0, 1},
	}
	for i := range verts {
		verts[i] = verts[i].Normalize()
	}
	faces := [][3]uint32{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}

	for s := 0; s < IcosphereSubdivisions; s++ {
		mid := map[[2]uint32]uint32{}
		midpoint := func(a, b uint32) uint32 {
			k := [2]uint32{min(a, b), max(a, b)}
			if i, ok := mid[k]; ok {
				return i
			}
			i := uint32(len(verts))
			verts = append(verts, verts[a].Add(verts[b]).Normalize())
			mid[k] = i
			return i
		}
		next := make([][3]uint32, 0, len(faces)*4)
		for _, f := range faces {
			ab := midpoint(f[0], f[1])
			bc := midpoint(f[1], f[2])
			ca := midpoint(f[2], f[0])
			next = append(next,
				[3]uint32{f[0], ab, ca},
				[3]uint32{f[1], bc, ab},
				[3]uint32{f[2], ca, bc},
				[3]uint32{ab, bc, ca},
			)
		}
		faces = next
	}

	m := &Mesh{Name: "sphere", Indices: faces, Positions: make([][3]float32, len(verts))}
	m.Normals = make([][3]float32, len(verts))
	for i, v := range verts {
		m.Normals[i] = v.To32()
		m.Positions[i] = v.Scale(radius).To32()
	}
	return m
}
