package meshio

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"urdf-scene-logger/internal/mathutil"
	"urdf-scene-logger/internal/texture"
)

// objKey identifies one corner: position, texcoord and normal indices
// (-1 when absent).
type objKey struct{ v, vt, vn int }

type objGroup struct {
	material string
	mesh     *Mesh
	index    map[objKey]uint32
}

type objDecoder struct {
	name     string
	dir      string
	textures texture.Source

	positions [][3]float32
	colors    [][4]uint8
	texcoords [][2]float32
	normals   [][3]float32

	materials map[string]*Material
	groups    []*objGroup
	current   *objGroup
	warnings  []string
}

// DecodeOBJ decodes a Wavefront OBJ file. Material libraries and their
// textures are read relative to dir, textures through textures. Faces using
// different materials become separate meshes of a single-node scene.
func DecodeOBJ(raw []byte, name, dir string, textures texture.Source) (*Asset, error) {
	d := &objDecoder{name: name, dir: dir, textures: orDefault(textures), materials: map[string]*Material{}}

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		if err := d.statement(fields); err != nil {
			return nil, fmt.Errorf("meshio: decode %s: line %d: %w", name, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("meshio: decode %s: %w", name, err)
	}
	return d.asset(), nil
}

func (d *objDecoder) statement(fields []string) error {
	args := fields[1:]
	switch fields[0] {
	case "v":
		vals, err := floats(args, 3)
		if err != nil {
			return err
		}
		d.positions = append(d.positions, [3]float32{vals[0], vals[1], vals[2]})
		if len(args) >= 6 {
			rgb, err := floats(args[3:], 3)
			if err != nil {
				return err
			}
			for len(d.colors) < len(d.positions)-1 {
				d.colors = append(d.colors, [4]uint8{255, 255, 255, 255})
			}
			d.colors = append(d.colors, [4]uint8{unit8(float64(rgb[0])), unit8(float64(rgb[1])), unit8(float64(rgb[2])), 255})
		}
	case "vt":
		vals, err := floats(args, 1)
		if err != nil {
			return err
		}
		uv := [2]float32{vals[0], 0}
		if len(vals) > 1 {
			uv[1] = vals[1]
		}
		d.texcoords = append(d.texcoords, uv)
	case "vn":
		vals, err := floats(args, 3)
		if err != nil {
			return err
		}
		d.normals = append(d.normals, [3]float32{vals[0], vals[1], vals[2]})
	case "f":
		return d.face(args)
	case "usemtl":
		if len(args) > 0 {
			d.use(strings.Join(args, " "))
		}
	case "mtllib":
		for _, lib := range args {
			d.loadMTL(lib)
		}
	}
	return nil
}

func (d *objDecoder) use(material string) {
	for _, g := range d.groups {
		if g.material == material {
			d.current = g
			return
		}
	}
	g := &objGroup{
		material: material,
		mesh:     &Mesh{Name: material},
		index:    map[objKey]uint32{},
	}
	d.groups = append(d.groups, g)
	d.current = g
}

func (d *objDecoder) face(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("face with %d corners", len(args))
	}
	if d.current == nil {
		d.use("")
	}
	corners := make([]uint32, len(args))
	for i, a := range args {
		k, err := d.parseCorner(a)
		if err != nil {
			return err
		}
		corners[i] = d.corner(k)
	}
	m := d.current.mesh
	for i := 1; i+1 < len(corners); i++ {
		m.Indices = append(m.Indices, [3]uint32{corners[0], corners[i], corners[i+1]})
	}
	return nil
}

func (d *objDecoder) parseCorner(s string) (objKey, error) {
	parts := strings.Split(s, "/")
	k := objKey{-1, -1, -1}
	refs := []*int{&k.v, &k.vt, &k.vn}
	counts := []int{len(d.positions), len(d.texcoords), len(d.normals)}
	for i, p := range parts {
		if i > 2 {
			break
		}
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return k, fmt.Errorf("bad face index %q", s)
		}
		if n < 0 {
			n += counts[i]
		} else {
			n--
		}
		if n < 0 || n >= counts[i] {
			return k, fmt.Errorf("face index %q out of range", s)
		}
		*refs[i] = n
	}
	if k.v < 0 {
		return k, fmt.Errorf("face corner %q without position", s)
	}
	return k, nil
}

func (d *objDecoder) corner(k objKey) uint32 {
	g := d.current
	if i, ok := g.index[k]; ok {
		return i
	}
	m := g.mesh
	i := uint32(len(m.Positions))
	g.index[k] = i
	m.Positions = append(m.Positions, d.positions[k.v])
	if k.v < len(d.colors) {
		m.Colors = append(m.Colors, d.colors[k.v])
	} else if len(d.colors) > 0 {
		m.Colors = append(m.Colors, [4]uint8{255, 255, 255, 255})
	}
	if k.vt >= 0 {
		m.UVs = append(m.UVs, d.texcoords[k.vt])
	} else if len(m.UVs) > 0 {
		m.UVs = append(m.UVs, [2]float32{})
	}
	if k.vn >= 0 {
		m.Normals = append(m.Normals, d.normals[k.vn])
	} else if len(m.Normals) > 0 {
		m.Normals = append(m.Normals, [3]float32{})
	}
	return i
}

func (d *objDecoder) asset() *Asset {
	var meshes []*Mesh
	for _, g := range d.groups {
		m := g.mesh
		if len(m.Indices) == 0 {
			continue
		}
		// Attributes only some corners carried are dropped rather than
		// left misaligned.
		if len(m.UVs) != len(m.Positions) {
			m.UVs = nil
		}
		if len(m.Normals) != len(m.Positions) {
			m.Normals = nil
		}
		if len(m.Colors) != len(m.Positions) {
			m.Colors = nil
		}
		m.Material = d.materials[g.material]
		if m.Name == "" {
			m.Name = d.name
		}
		meshes = append(meshes, m)
	}

	a := &Asset{Warnings: d.warnings}
	switch len(meshes) {
	case 0:
		a.Mesh = &Mesh{Name: d.name}
	case 1:
		a.Mesh = meshes[0]
	default:
		a.Scene = &Scene{Roots: []*Node{{Name: d.name, Transform: mathutil.Mat4Identity(), Meshes: meshes}}}
	}
	return a
}

// loadMTL reads a material library. A missing library only produces a
// warning; the meshes then fall back to other shading sources.
func (d *objDecoder) loadMTL(lib string) {
	path := lib
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.dir, lib)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		d.warnings = append(d.warnings, fmt.Sprintf("material library %s: %v", lib, err))
		return
	}

	var cur *Material
	alpha := 1.0
	flush := func() {
		if cur != nil && cur.Diffuse != nil {
			cur.Diffuse[3] = alpha
		}
	}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		args := fields[1:]
		switch fields[0] {
		case "newmtl":
			flush()
			cur = &Material{Name: strings.Join(args, " ")}
			alpha = 1
			d.materials[cur.Name] = cur
		case "Kd":
			if cur == nil {
				continue
			}
			if vals, err := floats(args, 3); err == nil {
				cur.Diffuse = &[4]float64{float64(vals[0]), float64(vals[1]), float64(vals[2]), 1}
			}
		case "d":
			if vals, err := floats(args, 1); err == nil {
				alpha = float64(vals[0])
			}
		case "Tr":
			if vals, err := floats(args, 1); err == nil {
				alpha = 1 - float64(vals[0])
			}
		case "map_Kd":
			if cur == nil || len(args) == 0 {
				continue
			}
			file := mtlMapFile(args)
			if file == "" {
				continue
			}
			if !filepath.IsAbs(file) {
				file = filepath.Join(filepath.Dir(path), file)
			}
			cur.TexturePath = file
			img, err := d.textures.Load(file)
			if err != nil {
				d.warnings = append(d.warnings, fmt.Sprintf("material %s: %v", cur.Name, err))
				continue
			}
			cur.Albedo = img
		}
	}
	flush()
}

// mtlMapArgs is the number of values each texture map option takes. The
// -o, -s and -t options take one to three numbers.
var mtlMapArgs = map[string]int{
	"-blendu": 1, "-blendv": 1, "-boost": 1, "-cc": 1, "-clamp": 1,
	"-mm": 2, "-texres": 1, "-bm": 1, "-imfchan": 1, "-type": 1,
	"-o": 3, "-s": 3, "-t": 3,
}

// mtlMapFile returns the file name of a map statement. Options come first;
// everything after them is the name, which may contain spaces.
func mtlMapFile(args []string) string {
	i := 0
	for i < len(args) {
		n, ok := mtlMapArgs[args[i]]
		if !ok {
			break
		}
		i++
		for j := 0; j < n && i < len(args); j++ {
			if n == 3 && j > 0 {
				if _, err := strconv.ParseFloat(args[i], 64); err != nil {
					break
				}
			}
			i++
		}
	}
	return strings.Join(args[i:], " ")
}

func floats(args []string, want int) ([]float32, error) {
	if len(args) < want {
		return nil, fmt.Errorf("expected %d numbers, got %d", want, len(args))
	}
	out := make([]float32, 0, len(args))
	for _, a := range args {
		f, err := strconv.ParseFloat(a, 32)
		if err != nil {
			if len(out) >= want {
				break
			}
			return nil, fmt.Errorf("bad number %q", a)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

func unit8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
