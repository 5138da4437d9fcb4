package meshio

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"urdf-scene-logger/internal/mathutil"
	"urdf-scene-logger/internal/texture"
)

type gltfDecoder struct {
	doc      *gltf.Document
	name     string
	dir      string
	textures texture.Source

	materials map[uint32]*Material
	images    map[uint32]image.Image
	warnings  []string
}

// DecodeGLTF opens a .gltf or .glb file, including its external buffers,
// and converts the default scene.
func DecodeGLTF(path string, textures texture.Source) (*Asset, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("meshio: decode %s: %w", path, err)
	}
	d := &gltfDecoder{
		doc:       doc,
		name:      filepath.Base(path),
		dir:       filepath.Dir(path),
		textures:  orDefault(textures),
		materials: map[uint32]*Material{},
		images:    map[uint32]image.Image{},
	}
	scene, err := d.scene()
	if err != nil {
		return nil, fmt.Errorf("meshio: decode %s: %w", path, err)
	}
	return &Asset{Scene: scene, Warnings: d.warnings}, nil
}

func (d *gltfDecoder) scene() (*Scene, error) {
	var roots []uint32
	switch {
	case d.doc.Scene != nil && int(*d.doc.Scene) < len(d.doc.Scenes):
		roots = d.doc.Scenes[*d.doc.Scene].Nodes
	case len(d.doc.Scenes) > 0:
		roots = d.doc.Scenes[0].Nodes
	default:
		// No scene: every node nobody lists as a child is a root.
		child := make([]bool, len(d.doc.Nodes))
		for _, n := range d.doc.Nodes {
			for _, c := range n.Children {
				if int(c) < len(child) {
					child[c] = true
				}
			}
		}
		for i := range d.doc.Nodes {
			if !child[i] {
				roots = append(roots, uint32(i))
			}
		}
	}

	s := &Scene{}
	for _, idx := range roots {
		n, err := d.node(idx, 0)
		if err != nil {
			return nil, err
		}
		s.Roots = append(s.Roots, n)
	}
	return s, nil
}

func (d *gltfDecoder) node(idx uint32, depth int) (*Node, error) {
	if depth >= maxNodeDepth {
		return nil, fmt.Errorf("node %d nested deeper than %d", idx, maxNodeDepth)
	}
	if int(idx) >= len(d.doc.Nodes) {
		return nil, fmt.Errorf("node index %d out of range", idx)
	}
	src := d.doc.Nodes[idx]
	n := &Node{Name: src.Name, Transform: gltfTransform(src)}
	if n.Name == "" {
		n.Name = fmt.Sprintf("node_%d", idx)
	}

	if src.Mesh != nil {
		meshes, err := d.mesh(*src.Mesh)
		if err != nil {
			return nil, err
		}
		n.Meshes = meshes
	}
	for _, c := range src.Children {
		child, err := d.node(c, depth+1)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// gltfTransform prefers an explicit matrix and otherwise composes TRS.
func gltfTransform(n *gltf.Node) mathutil.Mat4 {
	var cols [16]float64
	for i, v := range n.MatrixOrDefault() {
		cols[i] = float64(v)
	}
	if m := mathutil.FromColumnMajor(cols); !m.IsIdentity() {
		return m
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	return mathutil.FromTRS(
		mathutil.Vec3From32(t),
		mathutil.Quat{float64(r[0]), float64(r[1]), float64(r[2]), float64(r[3])},
		mathutil.Vec3From32(s),
	)
}

func (d *gltfDecoder) mesh(idx uint32) ([]*Mesh, error) {
	if int(idx) >= len(d.doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", idx)
	}
	src := d.doc.Meshes[idx]
	var out []*Mesh
	for pi, p := range src.Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			d.warnings = append(d.warnings, fmt.Sprintf("mesh %q primitive %d: mode %v skipped", src.Name, pi, p.Mode))
			continue
		}
		m, err := d.primitive(p)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", src.Name, pi, err)
		}
		m.Name = src.Name
		out = append(out, m)
	}
	return out, nil
}

func (d *gltfDecoder) primitive(p *gltf.Primitive) (*Mesh, error) {
	posIdx, ok := p.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("no POSITION attribute")
	}
	acr, err := d.accessor(posIdx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	positions, err := modeler.ReadPosition(d.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	m := &Mesh{Positions: positions}

	if i, ok := p.Attributes[gltf.NORMAL]; ok {
		if acr, err = d.accessor(i); err != nil {
			return nil, fmt.Errorf("normals: %w", err)
		}
		if m.Normals, err = modeler.ReadNormal(d.doc, acr, nil); err != nil {
			return nil, fmt.Errorf("read normals: %w", err)
		}
	}
	if i, ok := p.Attributes[gltf.TEXCOORD_0]; ok {
		if acr, err = d.accessor(i); err != nil {
			return nil, fmt.Errorf("texcoords: %w", err)
		}
		uvs, err := modeler.ReadTextureCoord(d.doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("read texcoords: %w", err)
		}
		// glTF stores v downward; decoded meshes use the OpenGL convention.
		for j := range uvs {
			uvs[j][1] = 1 - uvs[j][1]
		}
		m.UVs = uvs
	}
	if i, ok := p.Attributes[gltf.COLOR_0]; ok {
		if acr, err = d.accessor(i); err != nil {
			return nil, fmt.Errorf("colors: %w", err)
		}
		if m.Colors, err = modeler.ReadColor(d.doc, acr, nil); err != nil {
			return nil, fmt.Errorf("read colors: %w", err)
		}
	}

	var flat []uint32
	if p.Indices != nil {
		if acr, err = d.accessor(*p.Indices); err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
		if flat, err = modeler.ReadIndices(d.doc, acr, nil); err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
	} else {
		flat = make([]uint32, len(positions))
		for i := range flat {
			flat[i] = uint32(i)
		}
	}
	for i := 0; i+2 < len(flat); i += 3 {
		tri := [3]uint32{flat[i], flat[i+1], flat[i+2]}
		for _, v := range tri {
			if int(v) >= len(positions) {
				return nil, fmt.Errorf("index %d out of range for %d positions", v, len(positions))
			}
		}
		m.Indices = append(m.Indices, tri)
	}

	if p.Material != nil {
		m.Material = d.material(*p.Material)
	}
	return m, nil
}

// accessor resolves idx and checks every view it reads from, since the
// modeler readers index buffer views and slice buffers unchecked.
func (d *gltfDecoder) accessor(idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(d.doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", idx)
	}
	acr := d.doc.Accessors[idx]
	if acr.BufferView != nil {
		view, err := d.bufferView(*acr.BufferView)
		if err != nil {
			return nil, fmt.Errorf("accessor %d: %w", idx, err)
		}
		if acr.Count > 0 {
			elem := uint64(gltf.SizeOfElement(acr.ComponentType, acr.Type))
			stride := uint64(view.ByteStride)
			if stride == 0 {
				stride = elem
			}
			end := uint64(acr.ByteOffset) + stride*uint64(acr.Count-1) + elem
			if end > uint64(view.ByteLength) {
				return nil, fmt.Errorf("accessor %d: %d bytes past a %d byte view", idx, end, view.ByteLength)
			}
		}
	}
	if sp := acr.Sparse; sp != nil {
		for _, v := range []uint32{sp.Indices.BufferView, sp.Values.BufferView, sp.Values.ByteOffset} {
			if int(v) >= len(d.doc.BufferViews) {
				return nil, fmt.Errorf("accessor %d: sparse buffer view %d out of range", idx, v)
			}
		}
	}
	return acr, nil
}

func (d *gltfDecoder) bufferView(idx uint32) (*gltf.BufferView, error) {
	if int(idx) >= len(d.doc.BufferViews) {
		return nil, fmt.Errorf("buffer view index %d out of range", idx)
	}
	view := d.doc.BufferViews[idx]
	if int(view.Buffer) >= len(d.doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", view.Buffer)
	}
	if end := uint64(view.ByteOffset) + uint64(view.ByteLength); end > uint64(len(d.doc.Buffers[view.Buffer].Data)) {
		return nil, fmt.Errorf("buffer view %d ends at byte %d past its buffer", idx, end)
	}
	return view, nil
}

func (d *gltfDecoder) material(idx uint32) *Material {
	if m, ok := d.materials[idx]; ok {
		return m
	}
	if int(idx) >= len(d.doc.Materials) {
		return nil
	}
	src := d.doc.Materials[idx]
	out := &Material{Name: src.Name}
	if pbr := src.PBRMetallicRoughness; pbr != nil {
		if f := pbr.BaseColorFactor; f != nil {
			out.BaseColor = &[4]float64{float64(f[0]), float64(f[1]), float64(f[2]), float64(f[3])}
		}
		if tex := pbr.BaseColorTexture; tex != nil {
			out.Albedo = d.texture(tex.Index, out)
		}
	}
	d.materials[idx] = out
	return out
}

func (d *gltfDecoder) texture(idx uint32, mat *Material) image.Image {
	if int(idx) >= len(d.doc.Textures) || d.doc.Textures[idx].Source == nil {
		return nil
	}
	src := *d.doc.Textures[idx].Source
	if img, ok := d.images[src]; ok {
		return img
	}
	img, err := d.image(src, mat)
	if err != nil {
		d.warnings = append(d.warnings, fmt.Sprintf("material %s: %v", mat.Name, err))
	}
	d.images[src] = img
	return img
}

func (d *gltfDecoder) image(idx uint32, mat *Material) (image.Image, error) {
	if int(idx) >= len(d.doc.Images) {
		return nil, fmt.Errorf("image index %d out of range", idx)
	}
	src := d.doc.Images[idx]
	name := src.Name
	if name == "" {
		name = fmt.Sprintf("image_%d", idx)
	}
	switch {
	case src.BufferView != nil:
		view, err := d.bufferView(*src.BufferView)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", name, err)
		}
		raw, err := modeler.ReadBufferView(d.doc, view)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", name, err)
		}
		return d.textures.Decode(raw, name)
	case src.IsEmbeddedResource():
		raw, err := src.MarshalData()
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", name, err)
		}
		return d.textures.Decode(raw, name)
	case src.URI != "":
		path := filepath.Join(d.dir, filepath.FromSlash(strings.TrimPrefix(src.URI, "./")))
		mat.TexturePath = path
		return d.textures.Load(path)
	}
	return nil, fmt.Errorf("image %s has no data", name)
}
