package urdf

import "urdf-scene-logger/internal/mathutil"

// Document is a parsed robot description. It is immutable after Parse.
type Document struct {
	Name      string
	Links     []*Link
	Joints    []*Joint
	Materials []*Material

	links       map[string]*Link
	parentJoint map[string]*Joint // child link name → joint
}

// Link is a named node of the kinematic tree.
type Link struct {
	Name    string
	Visuals []*Visual
}

// Joint connects Parent to Child. Origin is the static offset at rest.
type Joint struct {
	Name   string
	Type   string
	Parent string
	Child  string
	Origin *Origin
}

// Visual is one renderable element of a link.
type Visual struct {
	Name     string
	Origin   *Origin
	Geometry Geometry
	Material *Material
}

// Origin is a translation plus fixed-axis roll/pitch/yaw. Nil fields were
// absent from the document.
type Origin struct {
	XYZ *mathutil.Vec3
	RPY *mathutil.Vec3
}

// Material is either declared globally under <robot> or inline in a visual.
// A material with neither Color nor Texture refers to the global table by Name.
type Material struct {
	Name    string
	Color   *[4]float64 // RGBA in 0..1
	Texture *Texture
}

// IsReference reports whether m only names a globally declared material.
func (m *Material) IsReference() bool {
	return m.Color == nil && m.Texture == nil
}

// Texture references an image file.
type Texture struct {
	Filename string
}

// Geometry is the closed set of visual shapes: Mesh, Box, Cylinder, Sphere
// and Unsupported.
type Geometry interface {
	geometryType() string
}

// Mesh references an external asset file.
type Mesh struct {
	Filename string
	Scale    *mathutil.Vec3
}

// Box is an axis-aligned box centered on the visual origin.
type Box struct {
	Size mathutil.Vec3
}

// Cylinder is aligned with the Z axis and centered on the visual origin.
type Cylinder struct {
	Radius float64
	Length float64
}

// Sphere is centered on the visual origin.
type Sphere struct {
	Radius float64
}

// Unsupported stands for any geometry element outside the known set,
// including a missing one.
type Unsupported struct {
	Type string
}

func (Mesh) geometryType() string { return "mesh" }
func (Box) geometryType() string { return "box" }
func (Cylinder) geometryType() string { return "cylinder" }
func (Sphere) geometryType() string { return "sphere" }
func (g Unsupported) geometryType() string { return g.Type }

// GeometryType returns the element name the geometry was parsed from.
func GeometryType(g Geometry) string {
	if g == nil {
		return "none"
	}
	return g.geometryType()
}
