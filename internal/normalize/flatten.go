// Package normalize converts decoded assets into the single mesh form the
// record stream carries.
package normalize

import (
	"fmt"

	"urdf-scene-logger/internal/mathutil"
	"urdf-scene-logger/internal/meshio"
)

// MaxDepth bounds scene recursion.
const MaxDepth = 64

// Flatten returns the meshes of an asset in depth-first node order, with
// every scene transform baked into positions and normals. A plain mesh is
// returned unchanged as the only element.
func Flatten(a *meshio.Asset) ([]*meshio.Mesh, error) {
	switch {
	case a == nil:
		return nil, fmt.Errorf("normalize: flatten: nil asset")
	case a.Mesh != nil:
		return []*meshio.Mesh{a.Mesh}, nil
	case a.Scene == nil:
		return nil, nil
	}

	var out []*meshio.Mesh
	var walk func(nodes []*meshio.Node, parent mathutil.Mat4, depth int) error
	walk = func(nodes []*meshio.Node, parent mathutil.Mat4, depth int) error {
		if len(nodes) == 0 {
			return nil
		}
		if depth >= MaxDepth {
			return fmt.Errorf("normalize: flatten: scene deeper than %d nodes", MaxDepth)
		}
		for _, n := range nodes {
			world := mathutil.Mat4Mul(parent, n.Transform)
			for _, m := range n.Meshes {
				out = append(out, Bake(m, world))
			}
			if err := walk(n.Children, world, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(a.Scene.Roots, mathutil.Mat4Identity(), 0); err != nil {
		return nil, err
	}
	return out, nil
}

// Bake returns a copy of m with xf applied. Normals use the inverse
// transpose; a mirroring transform also flips triangle winding so faces
// keep pointing outward.
func Bake(m *meshio.Mesh, xf mathutil.Mat4) *meshio.Mesh {
	out := *m
	if xf.IsIdentity() {
		return &out
	}

	out.Positions = make([][3]float32, len(m.Positions))
	for i, p := range m.Positions {
		out.Positions[i] = xf.MulPoint(mathutil.Vec3From32(p)).To32()
	}

	linear := xf.Linear()
	if len(m.Normals) > 0 {
		nm := linear.NormalMatrix()
		out.Normals = make([][3]float32, len(m.Normals))
		for i, n := range m.Normals {
			out.Normals[i] = nm.MulVec3(mathutil.Vec3From32(n)).Normalize().To32()
		}
	}

	if linear.Det() < 0 {
		out.Indices = make([][3]uint32, len(m.Indices))
		for i, tri := range m.Indices {
			out.Indices[i] = [3]uint32{tri[0], tri[2], tri[1]}
		}
	}
	return &out
}
