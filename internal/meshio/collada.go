package meshio

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"urdf-scene-logger/internal/mathutil"
	"urdf-scene-logger/internal/texture"
)

// maxNodeDepth bounds scene nesting, including instance_node references
// that point back at an ancestor.
const maxNodeDepth = 64

type daeDocument struct {
	Images       []daeImage       `xml:"library_images>image"`
	Effects      []daeEffect      `xml:"library_effects>effect"`
	Materials    []daeMaterial    `xml:"library_materials>material"`
	Geometries   []daeGeometry    `xml:"library_geometries>geometry"`
	LibraryNodes []daeNode        `xml:"library_nodes>node"`
	VisualScenes []daeVisualScene `xml:"library_visual_scenes>visual_scene"`
	Scene        struct {
		Instance daeURL `xml:"instance_visual_scene"`
	} `xml:"scene"`
}

type daeURL struct {
	URL string `xml:"url,attr"`
}

type daeImage struct {
	ID       string `xml:"id,attr"`
	InitFrom struct {
		Path string `xml:",chardata"`
		Ref  string `xml:"ref"`
	} `xml:"init_from"`
}

type daeEffect struct {
	ID      string `xml:"id,attr"`
	Profile struct {
		Params    []daeNewParam `xml:"newparam"`
		Technique struct {
			Phong    *daeShading `xml:"phong"`
			Lambert  *daeShading `xml:"lambert"`
			Blinn    *daeShading `xml:"blinn"`
			Constant *daeShading `xml:"constant"`
		} `xml:"technique"`
	} `xml:"profile_COMMON"`
}

type daeNewParam struct {
	SID           string `xml:"sid,attr"`
	SurfaceInit   string `xml:"surface>init_from"`
	SamplerSource string `xml:"sampler2D>source"`
	SamplerImage  daeURL `xml:"sampler2D>instance_image"`
}

type daeShading struct {
	Diffuse  *daeColorOrTexture `xml:"diffuse"`
	Emission *daeColorOrTexture `xml:"emission"`
}

type daeColorOrTexture struct {
	Color   *string `xml:"color"`
	Texture *struct {
		Texture string `xml:"texture,attr"`
	} `xml:"texture"`
}

type daeMaterial struct {
	ID     string `xml:"id,attr"`
	Name   string `xml:"name,attr"`
	Effect daeURL `xml:"instance_effect"`
}

type daeGeometry struct {
	ID   string   `xml:"id,attr"`
	Name string   `xml:"name,attr"`
	Mesh *daeMesh `xml:"mesh"`
}

type daeMesh struct {
	Sources    []daeSource    `xml:"source"`
	Vertices   daeVertices    `xml:"vertices"`
	Triangles  []daePrimitive `xml:"triangles"`
	Polylists  []daePrimitive `xml:"polylist"`
	Polygons   []daePrimitive `xml:"polygons"`
	Tristrips  []daePrimitive `xml:"tristrips"`
	Trifans    []daePrimitive `xml:"trifans"`
	Lines      []daePrimitive `xml:"lines"`
	Linestrips []daePrimitive `xml:"linestrips"`
}

type daeSource struct {
	ID       string `xml:"id,attr"`
	Floats   string `xml:"float_array"`
	Accessor struct {
		Stride int `xml:"stride,attr"`
	} `xml:"technique_common>accessor"`
}

type daeVertices struct {
	ID     string     `xml:"id,attr"`
	Inputs []daeInput `xml:"input"`
}

type daeInput struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   int    `xml:"offset,attr"`
	Set      int    `xml:"set,attr"`
}

type daePrimitive struct {
	Count    int        `xml:"count,attr"`
	Material string     `xml:"material,attr"`
	Inputs   []daeInput `xml:"input"`
	VCount   string     `xml:"vcount"`
	// <triangles> and <polylist> carry one <p>; <polygons>, <tristrips>
	// and <trifans> carry one per polygon, strip or fan.
	P []string `xml:"p"`
	// Polygons with holes; only the outer ring is kept.
	PH []struct {
		P string `xml:"p"`
	} `xml:"ph"`
}

// daeTopology says how a primitive's corner lists form triangles.
type daeTopology int

const (
	topoTriangles daeTopology = iota
	topoPolylist
	topoPolygons
	topoStrips
	topoFans
)

type daeVisualScene struct {
	ID    string    `xml:"id,attr"`
	Nodes []daeNode `xml:"node"`
}

type daeNode struct {
	ID               string                `xml:"id,attr"`
	Name             string                `xml:"name,attr"`
	Children         []daeNode             `xml:"node"`
	InstanceGeometry []daeInstanceGeometry `xml:"instance_geometry"`
	InstanceNodes    []daeURL              `xml:"instance_node"`
	// Transform elements must be composed in document order, so they are
	// collected together with anything else unmatched and filtered later.
	Other []daeElement `xml:",any"`
}

type daeElement struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type daeInstanceGeometry struct {
	URL      string `xml:"url,attr"`
	Bindings []struct {
		Symbol string `xml:"symbol,attr"`
		Target string `xml:"target,attr"`
	} `xml:"bind_material>technique_common>instance_material"`
}

// daePart is one triangle primitive of a geometry with its material symbol.
type daePart struct {
	symbol string
	mesh   *Mesh
}

type daeDecoder struct {
	doc      daeDocument
	name     string
	dir      string
	textures texture.Source

	parts     map[string][]daePart
	materials map[string]*Material
	warnings  []string
}

// DecodeCOLLADA decodes the geometry, node hierarchy and common-profile
// materials of a COLLADA document. The result is always a scene.
func DecodeCOLLADA(raw []byte, name, dir string, textures texture.Source) (*Asset, error) {
	d := &daeDecoder{
		name:      name,
		dir:       dir,
		textures:  orDefault(textures),
		parts:     map[string][]daePart{},
		materials: map[string]*Material{},
	}
	if err := xml.Unmarshal(raw, &d.doc); err != nil {
		return nil, fmt.Errorf("meshio: decode %s: %w", name, err)
	}

	for _, g := range d.doc.Geometries {
		if g.Mesh == nil {
			continue
		}
		parts, err := d.buildGeometry(g)
		if err != nil {
			return nil, fmt.Errorf("meshio: decode %s: geometry %q: %w", name, g.ID, err)
		}
		d.parts[g.ID] = parts
	}

	scene := &Scene{}
	if vs := d.visualScene(); vs != nil {
		for _, n := range vs.Nodes {
			node, err := d.buildNode(n, 0)
			if err != nil {
				return nil, fmt.Errorf("meshio: decode %s: %w", name, err)
			}
			scene.Roots = append(scene.Roots, node)
		}
	} else {
		// No visual scene: every geometry at the origin.
		root := &Node{Name: name, Transform: mathutil.Mat4Identity()}
		for _, g := range d.doc.Geometries {
			for _, p := range d.parts[g.ID] {
				root.Meshes = append(root.Meshes, p.mesh)
			}
		}
		scene.Roots = append(scene.Roots, root)
	}
	return &Asset{Scene: scene, Warnings: d.warnings}, nil
}

func (d *daeDecoder) visualScene() *daeVisualScene {
	if len(d.doc.VisualScenes) == 0 {
		return nil
	}
	if id := strings.TrimPrefix(d.doc.Scene.Instance.URL, "#"); id != "" {
		for i := range d.doc.VisualScenes {
			if d.doc.VisualScenes[i].ID == id {
				return &d.doc.VisualScenes[i]
			}
		}
	}
	return &d.doc.VisualScenes[0]
}

func (d *daeDecoder) buildNode(n daeNode, depth int) (*Node, error) {
	if depth >= maxNodeDepth {
		return nil, fmt.Errorf("node %q nested deeper than %d", n.ID, maxNodeDepth)
	}
	name := n.Name
	if name == "" {
		name = n.ID
	}
	xf, err := nodeTransform(n.Other)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", name, err)
	}
	node := &Node{Name: name, Transform: xf}

	for _, inst := range n.InstanceGeometry {
		bound := map[string]string{}
		for _, b := range inst.Bindings {
			bound[b.Symbol] = strings.TrimPrefix(b.Target, "#")
		}
		for _, p := range d.parts[strings.TrimPrefix(inst.URL, "#")] {
			m := *p.mesh
			m.Material = d.material(bound[p.symbol])
			node.Meshes = append(node.Meshes, &m)
		}
	}

	for _, c := range n.Children {
		child, err := d.buildNode(c, depth+1)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	for _, ref := range n.InstanceNodes {
		id := strings.TrimPrefix(ref.URL, "#")
		for _, lib := range d.doc.LibraryNodes {
			if lib.ID != id {
				continue
			}
			child, err := d.buildNode(lib, depth+1)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}
	return node, nil
}

// nodeTransform composes the node's transform elements in order.
func nodeTransform(elems []daeElement) (mathutil.Mat4, error) {
	m := mathutil.Mat4Identity()
	for _, e := range elems {
		var step mathutil.Mat4
		switch e.XMLName.Local {
		case "matrix":
			v, err := parseNumbers(e.Value, 16)
			if err != nil {
				return m, fmt.Errorf("matrix: %w", err)
			}
			copy(step[:], v) // COLLADA matrices are row-major
		case "translate":
			v, err := parseNumbers(e.Value, 3)
			if err != nil {
				return m, fmt.Errorf("translate: %w", err)
			}
			step = mathutil.FromMat3Translation(mathutil.Mat3Identity(), mathutil.Vec3{v[0], v[1], v[2]})
		case "rotate":
			v, err := parseNumbers(e.Value, 4)
			if err != nil {
				return m, fmt.Errorf("rotate: %w", err)
			}
			r := mathutil.AxisAngle(mathutil.Vec3{v[0], v[1], v[2]}, mathutil.Deg2Rad(v[3]))
			step = mathutil.FromMat3Translation(r, mathutil.Vec3{})
		case "scale":
			v, err := parseNumbers(e.Value, 3)
			if err != nil {
				return m, fmt.Errorf("scale: %w", err)
			}
			step = mathutil.FromMat3Translation(mathutil.Mat3Diag(v[0], v[1], v[2]), mathutil.Vec3{})
		default:
			continue
		}
		m = mathutil.Mat4Mul(m, step)
	}
	return m, nil
}

func (d *daeDecoder) buildGeometry(g daeGeometry) ([]daePart, error) {
	sources := map[string]daeSource{}
	for _, s := range g.Mesh.Sources {
		sources[s.ID] = s
	}
	// Inputs of <vertices> are addressed through the VERTEX semantic.
	vertexInputs := g.Mesh.Vertices.Inputs

	if n := len(g.Mesh.Lines) + len(g.Mesh.Linestrips); n > 0 {
		d.warnings = append(d.warnings, fmt.Sprintf("geometry %q: %d line primitives skipped", g.ID, n))
	}

	var parts []daePart
	for _, group := range []struct {
		topo  daeTopology
		prims []daePrimitive
	}{
		{topoTriangles, g.Mesh.Triangles},
		{topoPolylist, g.Mesh.Polylists},
		{topoPolygons, g.Mesh.Polygons},
		{topoStrips, g.Mesh.Tristrips},
		{topoFans, g.Mesh.Trifans},
	} {
		for _, p := range group.prims {
			if len(p.PH) > 0 {
				d.warnings = append(d.warnings, fmt.Sprintf("geometry %q: holes of %d polygons ignored", g.ID, len(p.PH)))
				for _, ph := range p.PH {
					p.P = append(p.P, ph.P)
				}
			}
			m, err := buildPrimitive(p, group.topo, sources, vertexInputs)
			if err != nil {
				return nil, err
			}
			m.Name = g.Name
			if m.Name == "" {
				m.Name = g.ID
			}
			parts = append(parts, daePart{symbol: p.Material, mesh: m})
		}
	}
	return parts, nil
}

type daeStream struct {
	offset int
	values []float64
	stride int
}

func (s *daeStream) at(i int) ([]float64, bool) {
	if s == nil || i < 0 || (i+1)*s.stride > len(s.values) {
		return nil, false
	}
	return s.values[i*s.stride : (i+1)*s.stride], true
}

func buildPrimitive(p daePrimitive, topo daeTopology, sources map[string]daeSource, vertexInputs []daeInput) (*Mesh, error) {
	var pos, nrm, uv, col *daeStream
	stride := 0
	bind := func(in daeInput, offset int) error {
		src, ok := sources[strings.TrimPrefix(in.Source, "#")]
		if !ok {
			return fmt.Errorf("input %s: unknown source %q", in.Semantic, in.Source)
		}
		vals, err := parseNumbers(src.Floats, -1)
		if err != nil {
			return fmt.Errorf("source %q: %w", src.ID, err)
		}
		st := src.Accessor.Stride
		if st <= 0 {
			st = 1
		}
		s := &daeStream{offset: offset, values: vals, stride: st}
		switch in.Semantic {
		case "POSITION":
			pos = s
		case "NORMAL":
			nrm = s
		case "TEXCOORD":
			if uv == nil || in.Set == 0 {
				uv = s
			}
		case "COLOR":
			col = s
		}
		return nil
	}
	for _, in := range p.Inputs {
		stride = max(stride, in.Offset+1)
		if in.Semantic == "VERTEX" {
			for _, vin := range vertexInputs {
				if err := bind(vin, in.Offset); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := bind(in, in.Offset); err != nil {
			return nil, err
		}
	}
	if pos == nil {
		return nil, fmt.Errorf("primitive without POSITION input")
	}

	lists := make([][]int, len(p.P))
	for i, raw := range p.P {
		idx, err := parseInts(raw)
		if err != nil {
			return nil, fmt.Errorf("p: %w", err)
		}
		lists[i] = idx
	}

	m := &Mesh{}
	type key [4]int
	seen := map[key]uint32{}
	corner := func(idx []int, c int) (uint32, error) {
		base := c * stride
		if base+stride > len(idx) {
			return 0, fmt.Errorf("index list too short")
		}
		get := func(s *daeStream) int {
			if s == nil {
				return -1
			}
			return idx[base+s.offset]
		}
		k := key{get(pos), get(nrm), get(uv), get(col)}
		if i, ok := seen[k]; ok {
			return i, nil
		}
		xyz, ok := pos.at(k[0])
		if !ok || len(xyz) < 3 {
			return 0, fmt.Errorf("position index %d out of range", k[0])
		}
		i := uint32(len(m.Positions))
		seen[k] = i
		m.Positions = append(m.Positions, [3]float32{float32(xyz[0]), float32(xyz[1]), float32(xyz[2])})
		if n, ok := nrm.at(k[1]); ok && len(n) >= 3 {
			m.Normals = append(m.Normals, [3]float32{float32(n[0]), float32(n[1]), float32(n[2])})
		}
		if t, ok := uv.at(k[2]); ok && len(t) >= 2 {
			m.UVs = append(m.UVs, [2]float32{float32(t[0]), float32(t[1])})
		}
		if c, ok := col.at(k[3]); ok && len(c) >= 3 {
			a := 1.0
			if len(c) >= 4 {
				a = c[3]
			}
			m.Colors = append(m.Colors, [4]uint8{unit8(c[0]), unit8(c[1]), unit8(c[2]), unit8(a)})
		}
		return i, nil
	}

	// corners resolves n corners of idx starting at corner first.
	corners := func(idx []int, first, n int) ([]uint32, error) {
		out := make([]uint32, n)
		for j := range out {
			var err error
			if out[j], err = corner(idx, first+j); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	fan := func(poly []uint32) {
		for j := 1; j+1 < len(poly); j++ {
			m.Indices = append(m.Indices, [3]uint32{poly[0], poly[j], poly[j+1]})
		}
	}

	switch topo {
	case topoTriangles, topoPolylist:
		var idx []int
		if len(lists) > 0 {
			idx = lists[0]
		}
		var counts []int
		if topo == topoPolylist {
			var err error
			if counts, err = parseInts(p.VCount); err != nil {
				return nil, fmt.Errorf("vcount: %w", err)
			}
		} else {
			counts = make([]int, len(idx)/stride/3)
			for i := range counts {
				counts[i] = 3
			}
		}
		next := 0
		for _, n := range counts {
			if n < 0 {
				return nil, fmt.Errorf("vcount: negative count %d", n)
			}
			poly, err := corners(idx, next, n)
			if err != nil {
				return nil, err
			}
			fan(poly)
			next += n
		}
	case topoPolygons, topoFans:
		for _, idx := range lists {
			poly, err := corners(idx, 0, len(idx)/stride)
			if err != nil {
				return nil, err
			}
			fan(poly)
		}
	case topoStrips:
		for _, idx := range lists {
			strip, err := corners(idx, 0, len(idx)/stride)
			if err != nil {
				return nil, err
			}
			// Every other triangle is flipped to keep a consistent winding.
			for j := 0; j+2 < len(strip); j++ {
				if j%2 == 0 {
					m.Indices = append(m.Indices, [3]uint32{strip[j], strip[j+1], strip[j+2]})
				} else {
					m.Indices = append(m.Indices, [3]uint32{strip[j+1], strip[j], strip[j+2]})
				}
			}
		}
	}

	if len(m.Normals) != len(m.Positions) {
		m.Normals = nil
	}
	if len(m.UVs) != len(m.Positions) {
		m.UVs = nil
	}
	if len(m.Colors) != len(m.Positions) {
		m.Colors = nil
	}
	return m, nil
}

// material resolves a material id through its effect to the diffuse
// color or texture. Unknown ids yield nil.
func (d *daeDecoder) material(id string) *Material {
	if id == "" {
		return nil
	}
	if m, ok := d.materials[id]; ok {
		return m
	}
	var mat *daeMaterial
	for i := range d.doc.Materials {
		if d.doc.Materials[i].ID == id {
			mat = &d.doc.Materials[i]
			break
		}
	}
	if mat == nil {
		d.materials[id] = nil
		return nil
	}

	out := &Material{Name: mat.Name}
	if out.Name == "" {
		out.Name = mat.ID
	}
	effectID := strings.TrimPrefix(mat.Effect.URL, "#")
	for _, e := range d.doc.Effects {
		if e.ID == effectID {
			d.applyEffect(out, e)
			break
		}
	}
	d.materials[id] = out
	return out
}

func (d *daeDecoder) applyEffect(out *Material, e daeEffect) {
	t := e.Profile.Technique
	var sh *daeShading
	for _, s := range []*daeShading{t.Phong, t.Lambert, t.Blinn, t.Constant} {
		if s != nil {
			sh = s
			break
		}
	}
	if sh == nil {
		return
	}
	ct := sh.Diffuse
	if ct == nil {
		ct = sh.Emission
	}
	if ct == nil {
		return
	}
	if ct.Color != nil {
		if v, err := parseNumbers(*ct.Color, 4); err == nil {
			out.Diffuse = &[4]float64{v[0], v[1], v[2], v[3]}
		}
	}
	if ct.Texture != nil {
		imageID := d.samplerImage(e, ct.Texture.Texture)
		if path, ok := d.imagePath(imageID); ok {
			out.TexturePath = path
			img, err := d.textures.Load(path)
			if err != nil {
				d.warnings = append(d.warnings, fmt.Sprintf("material %s: %v", out.Name, err))
				return
			}
			out.Albedo = img
		}
	}
}

// samplerImage follows sampler2D → surface → image for COLLADA 1.4 and
// sampler2D → instance_image for 1.5. Exporters that reference an image id
// directly are handled by falling through.
func (d *daeDecoder) samplerImage(e daeEffect, sid string) string {
	params := map[string]daeNewParam{}
	for _, p := range e.Profile.Params {
		params[p.SID] = p
	}
	p, ok := params[sid]
	if !ok {
		return sid
	}
	if u := p.SamplerImage.URL; u != "" {
		return strings.TrimPrefix(u, "#")
	}
	if s, ok := params[p.SamplerSource]; ok && s.SurfaceInit != "" {
		return s.SurfaceInit
	}
	return sid
}

func (d *daeDecoder) imagePath(id string) (string, bool) {
	for _, img := range d.doc.Images {
		if img.ID != id {
			continue
		}
		ref := strings.TrimSpace(img.InitFrom.Ref)
		if ref == "" {
			ref = strings.TrimSpace(img.InitFrom.Path)
		}
		if ref == "" {
			return "", false
		}
		ref = strings.TrimPrefix(ref, "file://")
		if unescaped, err := url.PathUnescape(ref); err == nil {
			ref = unescaped
		}
		if !filepath.IsAbs(ref) {
			ref = filepath.Join(d.dir, filepath.FromSlash(ref))
		}
		return ref, true
	}
	return "", false
}

// parseNumbers parses whitespace separated floats; want < 0 accepts any
// count.
func parseNumbers(s string, want int) ([]float64, error) {
	fields := strings.Fields(s)
	if want >= 0 && len(fields) != want {
		return nil, fmt.Errorf("expected %d numbers, got %d", want, len(fields))
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad index %q", f)
		}
		out[i] = v
	}
	return out, nil
}
