package urdf

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"urdf-scene-logger/internal/mathutil"
)

// xmlRobot matches the <robot> element of a URDF document.
type xmlRobot struct {
	Name      string        `xml:"name,attr"`
	Materials []xmlMaterial `xml:"material"`
	Links     []xmlLink     `xml:"link"`
	Joints    []xmlJoint    `xml:"joint"`
}

type xmlMaterial struct {
	Name    string      `xml:"name,attr"`
	Color   *xmlColor   `xml:"color"`
	Texture *xmlTexture `xml:"texture"`
}

type xmlColor struct {
	RGBA string `xml:"rgba,attr"`
}

type xmlTexture struct {
	Filename string `xml:"filename,attr"`
}

type xmlLink struct {
	Name    string      `xml:"name,attr"`
	Visuals []xmlVisual `xml:"visual"`
}

type xmlVisual struct {
	Name     string       `xml:"name,attr"`
	Origin   *xmlOrigin   `xml:"origin"`
	Geometry *xmlGeometry `xml:"geometry"`
	Material *xmlMaterial `xml:"material"`
}

type xmlOrigin struct {
	XYZ *string `xml:"xyz,attr"`
	RPY *string `xml:"rpy,attr"`
}

type xmlGeometry struct {
	Shapes []xmlShape `xml:",any"`
}

type xmlShape struct {
	XMLName  xml.Name
	Filename string `xml:"filename,attr"`
	Scale    string `xml:"scale,attr"`
	Size     string `xml:"size,attr"`
	Radius   string `xml:"radius,attr"`
	Length   string `xml:"length,attr"`
}

type xmlJoint struct {
	Name   string     `xml:"name,attr"`
	Type   string     `xml:"type,attr"`
	Parent xmlLinkRef `xml:"parent"`
	Child  xmlLinkRef `xml:"child"`
	Origin *xmlOrigin `xml:"origin"`
}

type xmlLinkRef struct {
	Link string `xml:"link,attr"`
}

// ParseFile reads a plain URDF file.
func ParseFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("urdf: read %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse decodes URDF XML. source names the document in error messages.
func Parse(raw []byte, source string) (*Document, error) {
	var robot xmlRobot
	if err := xml.Unmarshal(raw, &robot); err != nil {
		return nil, fmt.Errorf("urdf: parse %s: %w", source, err)
	}

	doc := &Document{
		Name:        robot.Name,
		links:       make(map[string]*Link, len(robot.Links)),
		parentJoint: make(map[string]*Joint, len(robot.Joints)),
	}

	for _, m := range robot.Materials {
		mat, err := convertMaterial(m)
		if err != nil {
			return nil, fmt.Errorf("urdf: parse %s: material %q: %w", source, m.Name, err)
		}
		doc.Materials = append(doc.Materials, mat)
	}

	for _, l := range robot.Links {
		if l.Name == "" {
			return nil, fmt.Errorf("urdf: parse %s: link without name", source)
		}
		if _, dup := doc.links[l.Name]; dup {
			return nil, fmt.Errorf("urdf: parse %s: duplicate link %q", source, l.Name)
		}
		link := &Link{Name: l.Name}
		for i, v := range l.Visuals {
			vis, err := convertVisual(v)
			if err != nil {
				return nil, fmt.Errorf("urdf: parse %s: link %q visual %d: %w", source, l.Name, i, err)
			}
			link.Visuals = append(link.Visuals, vis)
		}
		doc.Links = append(doc.Links, link)
		doc.links[l.Name] = link
	}

	for _, j := range robot.Joints {
		joint := &Joint{
			Name:   j.Name,
			Type:   j.Type,
			Parent: j.Parent.Link,
			Child:  j.Child.Link,
		}
		if j.Origin != nil {
			o, err := convertOrigin(*j.Origin)
			if err != nil {
				return nil, fmt.Errorf("urdf: parse %s: joint %q: %w", source, j.Name, err)
			}
			joint.Origin = o
		}
		if prev, ok := doc.parentJoint[joint.Child]; ok {
			return nil, fmt.Errorf("urdf: parse %s: link %q is the child of both %q and %q", source, joint.Child, prev.Name, joint.Name)
		}
		doc.Joints = append(doc.Joints, joint)
		doc.parentJoint[joint.Child] = joint
	}

	return doc, nil
}

func convertVisual(v xmlVisual) (*Visual, error) {
	vis := &Visual{Name: v.Name}
	if v.Origin != nil {
		o, err := convertOrigin(*v.Origin)
		if err != nil {
			return nil, err
		}
		vis.Origin = o
	}

	geom, err := convertGeometry(v.Geometry)
	if err != nil {
		return nil, err
	}
	vis.Geometry = geom

	if v.Material != nil {
		mat, err := convertMaterial(*v.Material)
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", v.Material.Name, err)
		}
		vis.Material = mat
	}
	return vis, nil
}

func convertGeometry(g *xmlGeometry) (Geometry, error) {
	if g == nil || len(g.Shapes) == 0 {
		return Unsupported{Type: "none"}, nil
	}

	// Only the first shape element is meaningful.
	s := g.Shapes[0]
	switch s.XMLName.Local {
	case "mesh":
		m := Mesh{Filename: s.Filename}
		if s.Scale != "" {
			scale, err := parseVec3(s.Scale)
			if err != nil {
				return nil, fmt.Errorf("mesh scale: %w", err)
			}
			m.Scale = &scale
		}
		return m, nil
	case "box":
		size, err := parseVec3(s.Size)
		if err != nil {
			return nil, fmt.Errorf("box size: %w", err)
		}
		return Box{Size: size}, nil
	case "cylinder":
		radius, err := parseFloat(s.Radius)
		if err != nil {
			return nil, fmt.Errorf("cylinder radius: %w", err)
		}
		length, err := parseFloat(s.Length)
		if err != nil {
			return nil, fmt.Errorf("cylinder length: %w", err)
		}
		return Cylinder{Radius: radius, Length: length}, nil
	case "sphere":
		radius, err := parseFloat(s.Radius)
		if err != nil {
			return nil, fmt.Errorf("sphere radius: %w", err)
		}
		return Sphere{Radius: radius}, nil
	default:
		return Unsupported{Type: s.XMLName.Local}, nil
	}
}

func convertOrigin(o xmlOrigin) (*Origin, error) {
	out := &Origin{}
	if o.XYZ != nil {
		v, err := parseVec3(*o.XYZ)
		if err != nil {
			return nil, fmt.Errorf("origin xyz: %w", err)
		}
		out.XYZ = &v
	}
	if o.RPY != nil {
		v, err := parseVec3(*o.RPY)
		if err != nil {
			return nil, fmt.Errorf("origin rpy: %w", err)
		}
		out.RPY = &v
	}
	return out, nil
}

func convertMaterial(m xmlMaterial) (*Material, error) {
	mat := &Material{Name: m.Name}
	if m.Color != nil {
		vals, err := parseFloats(m.Color.RGBA, 4)
		if err != nil {
			return nil, fmt.Errorf("color rgba: %w", err)
		}
		mat.Color = &[4]float64{vals[0], vals[1], vals[2], vals[3]}
	}
	if m.Texture != nil {
		mat.Texture = &Texture{Filename: m.Texture.Filename}
	}
	return mat, nil
}

func parseVec3(s string) (mathutil.Vec3, error) {
	vals, err := parseFloats(s, 3)
	if err != nil {
		return mathutil.Vec3{}, err
	}
	return mathutil.Vec3{vals[0], vals[1], vals[2]}, nil
}

func parseFloat(s string) (float64, error) {
	vals, err := parseFloats(s, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d numbers, got %q", n, s)
	}
	vals := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		vals[i] = v
	}
	return vals, nil
}
