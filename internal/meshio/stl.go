package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// DecodeSTL decodes binary or ASCII STL. Coincident corners are welded so
// shared vertices get smooth normals.
func DecodeSTL(raw []byte, name string) (*Mesh, error) {
	if isBinarySTL(raw) {
		return decodeBinarySTL(raw, name)
	}
	if bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), []byte("solid")) {
		return decodeASCIISTL(raw, name)
	}
	return nil, fmt.Errorf("meshio: decode %s: not an STL file", name)
}

// isBinarySTL checks the triangle count against the file size. ASCII files
// start with "solid" too, so the header text alone is not enough. Some
// exporters pad binary files, so trailing bytes are accepted unless the
// content reads as ASCII STL.
func isBinarySTL(raw []byte) bool {
	if len(raw) < stlHeaderSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(raw[stlHeaderSize:])
	want := uint64(stlHeaderSize+4) + uint64(n)*stlTriangleSize
	switch size := uint64(len(raw)); {
	case size < want:
		return false
	case size == want:
		return true
	}
	ascii := bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), []byte("solid")) &&
		bytes.Contains(raw, []byte("facet"))
	return !ascii
}

type stlReader struct {
	data []byte
	off  int
}

func (r *stlReader) readU32() uint32 {
	if r.off+4 > len(r.data) {
		r.off = len(r.data)
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *stlReader) readF32() float32 {
	return math.Float32frombits(r.readU32())
}

func (r *stlReader) readVec3() [3]float32 {
	return [3]float32{r.readF32(), r.readF32(), r.readF32()}
}

func decodeBinarySTL(raw []byte, name string) (*Mesh, error) {
	r := &stlReader{data: raw, off: stlHeaderSize}
	count := int(r.readU32())

	w := newWelder(count * 3)
	for i := 0; i < count; i++ {
		r.readVec3() // facet normal, recomputed downstream
		a, b, c := r.readVec3(), r.readVec3(), r.readVec3()
		r.off += 2 // attribute byte count
		w.triangle(a, b, c)
	}
	if r.off > len(raw) {
		return nil, fmt.Errorf("meshio: decode %s: truncated STL", name)
	}
	return w.mesh(name), nil
}

func decodeASCIISTL(raw []byte, name string) (*Mesh, error) {
	w := newWelder(0)
	var corners [][3]float32

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("meshio: decode %s: line %d: malformed vertex", name, line)
			}
			var v [3]float32
			for i := 0; i < 3; i++ {
				f, err := strconv.ParseFloat(fields[i+1], 32)
				if err != nil {
					return nil, fmt.Errorf("meshio: decode %s: line %d: %w", name, line, err)
				}
				v[i] = float32(f)
			}
			corners = append(corners, v)
		case "endloop":
			// Polygons with more than three corners are fanned.
			for i := 1; i+1 < len(corners); i++ {
				w.triangle(corners[0], corners[i], corners[i+1])
			}
			corners = corners[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("meshio: decode %s: %w", name, err)
	}
	return w.mesh(name), nil
}

// welder merges bit-identical positions into shared vertices.
type welder struct {
	index     map[[3]float32]uint32
	positions [][3]float32
	indices   [][3]uint32
}

func newWelder(capacity int) *welder {
	return &welder{index: make(map[[3]float32]uint32, capacity)}
}

func (w *welder) vertex(p [3]float32) uint32 {
	if i, ok := w.index[p]; ok {
		return i
	}
	i := uint32(len(w.positions))
	w.index[p] = i
	w.positions = append(w.positions, p)
	return i
}

func (w *welder) triangle(a, b, c [3]float32) {
	ia, ib, ic := w.vertex(a), w.vertex(b), w.vertex(c)
	if ia == ib || ib == ic || ia == ic {
		return
	}
	w.indices = append(w.indices, [3]uint32{ia, ib, ic})
}

func (w *welder) mesh(name string) *Mesh {
	return &Mesh{Name: name, Positions: w.positions, Indices: w.indices}
}
