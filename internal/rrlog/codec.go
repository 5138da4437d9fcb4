package rrlog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/webp"

	"urdf-scene-logger/internal/texture"
)

// Magic starts every binary stream.
const Magic = "URLG"

// Version is the binary format version.
const Version uint16 = 1

const flagStatic = 1 << 0

const (
	hasTranslation = 1 << 0
	hasRotation    = 1 << 1
	hasScale       = 1 << 2
)

// ErrFormat reports malformed binary input.
var ErrFormat = errors.New("rrlog: malformed stream")

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }
func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) blob(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func encodeHeader(info StreamInfo) []byte {
	w := &writer{}
	w.buf = append(w.buf, Magic...)
	w.u16(Version)
	w.str(info.ApplicationID)
	w.str(info.RecordingID)
	return w.buf
}

// encodeRecord returns the frame payload of rec, without the length prefix.
func encodeRecord(rec *Record) ([]byte, error) {
	if rec.Data == nil {
		return nil, fmt.Errorf("rrlog: encode %s: record without data", rec.EntityPath)
	}
	w := &writer{}
	w.u8(uint8(rec.Data.Kind()))
	var flags uint8
	if rec.Static {
		flags |= flagStatic
	}
	w.u8(flags)
	w.str(rec.EntityPath)

	w.u16(uint16(len(rec.Timelines)))
	for _, t := range rec.Timelines {
		w.u8(uint8(t.Kind))
		w.str(t.Timeline)
		if t.Kind == TimeSeconds {
			w.f64(t.Seconds)
		} else {
			w.u64(uint64(t.Sequence))
		}
	}

	switch d := rec.Data.(type) {
	case Transform3D:
		encodeTransform(w, d)
	case *Transform3D:
		encodeTransform(w, *d)
	case Mesh3D:
		if err := encodeMesh(w, &d); err != nil {
			return nil, fmt.Errorf("rrlog: encode %s: %w", rec.EntityPath, err)
		}
	case *Mesh3D:
		if err := encodeMesh(w, d); err != nil {
			return nil, fmt.Errorf("rrlog: encode %s: %w", rec.EntityPath, err)
		}
	case TextLog:
		w.str(d.Text)
		w.str(d.Level)
	case ViewCoordinates:
		w.str(d.Coordinates)
	default:
		return nil, fmt.Errorf("rrlog: encode %s: unsupported archetype %T", rec.EntityPath, rec.Data)
	}
	return w.buf, nil
}

func encodeTransform(w *writer, t Transform3D) {
	var mask uint8
	if t.Translation != nil {
		mask |= hasTranslation
	}
	if t.Rotation != nil {
		mask |= hasRotation
	}
	if t.Scale != nil {
		mask |= hasScale
	}
	w.u8(mask)
	if t.Translation != nil {
		for _, v := range t.Translation {
			w.f64(v)
		}
	}
	if t.Rotation != nil {
		for _, v := range t.Rotation {
			w.f64(v)
		}
	}
	if t.Scale != nil {
		for _, v := range t.Scale {
			w.f64(v)
		}
	}
}

func encodeMesh(w *writer, m *Mesh3D) error {
	w.u32(uint32(len(m.Positions)))
	for _, p := range m.Positions {
		w.f32(p[0])
		w.f32(p[1])
		w.f32(p[2])
	}
	w.u32(uint32(len(m.Indices)))
	for _, tri := range m.Indices {
		w.u32(tri[0])
		w.u32(tri[1])
		w.u32(tri[2])
	}
	w.u32(uint32(len(m.Normals)))
	for _, n := range m.Normals {
		w.f32(n[0])
		w.f32(n[1])
		w.f32(n[2])
	}
	w.u32(uint32(len(m.UVs)))
	for _, uv := range m.UVs {
		w.f32(uv[0])
		w.f32(uv[1])
	}
	w.u32(uint32(len(m.Colors)))
	for _, c := range m.Colors {
		w.buf = append(w.buf, c[:]...)
	}

	if m.Albedo == nil {
		w.u8(0)
		return nil
	}
	var img bytes.Buffer
	if err := nativewebp.Encode(&img, m.Albedo.Image(), nil); err != nil {
		return fmt.Errorf("albedo: %w", err)
	}
	w.u8(1)
	w.u8(uint8(m.Albedo.Channels))
	w.blob(img.Bytes())
	return nil
}

// reader consumes a frame payload. The first short read latches err and
// every later read returns zero values.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated at offset %d", ErrFormat, r.off)
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }
func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }

func (r *reader) str() string {
	return string(r.take(int(r.u32())))
}

// count reads an element count and checks that elemSize*count bytes remain.
func (r *reader) count(elemSize int) int {
	n := int(r.u32())
	if r.err == nil && n*elemSize > len(r.data)-r.off {
		r.err = fmt.Errorf("%w: count %d exceeds payload", ErrFormat, n)
		return 0
	}
	return n
}

func decodeHeader(b []byte) (StreamInfo, error) {
	r := &reader{data: b}
	if string(r.take(len(Magic))) != Magic {
		return StreamInfo{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}
	if v := r.u16(); r.err == nil && v != Version {
		return StreamInfo{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, v)
	}
	info := StreamInfo{ApplicationID: r.str(), RecordingID: r.str()}
	return info, r.err
}

func decodeRecord(b []byte) (*Record, error) {
	r := &reader{data: b}
	kind := Kind(r.u8())
	flags := r.u8()
	rec := &Record{EntityPath: r.str(), Static: flags&flagStatic != 0}

	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		t := TimePoint{Kind: TimeKind(r.u8()), Timeline: r.str()}
		raw := r.u64()
		if t.Kind == TimeSeconds {
			t.Seconds = math.Float64frombits(raw)
		} else {
			t.Sequence = int64(raw)
		}
		rec.Timelines = append(rec.Timelines, t)
	}

	switch kind {
	case KindTransform3D:
		rec.Data = decodeTransform(r)
	case KindMesh3D:
		m, err := decodeMesh(r)
		if err != nil {
			return nil, err
		}
		rec.Data = m
	case KindTextLog:
		rec.Data = TextLog{Text: r.str(), Level: r.str()}
	case KindViewCoordinates:
		rec.Data = ViewCoordinates{Coordinates: r.str()}
	default:
		return nil, fmt.Errorf("%w: unknown record kind %d", ErrFormat, kind)
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes in %s record", ErrFormat, len(r.data)-r.off, kind)
	}
	return rec, nil
}

func decodeTransform(r *reader) Transform3D {
	var t Transform3D
	mask := r.u8()
	if mask&hasTranslation != 0 {
		t.Translation = &[3]float64{r.f64(), r.f64(), r.f64()}
	}
	if mask&hasRotation != 0 {
		t.Rotation = &[4]float64{r.f64(), r.f64(), r.f64(), r.f64()}
	}
	if mask&hasScale != 0 {
		t.Scale = &[3]float64{r.f64(), r.f64(), r.f64()}
	}
	return t
}

func decodeMesh(r *reader) (Mesh3D, error) {
	var m Mesh3D
	if n := r.count(12); n > 0 {
		m.Positions = make([][3]float32, n)
		for i := range m.Positions {
			m.Positions[i] = [3]float32{r.f32(), r.f32(), r.f32()}
		}
	}
	if n := r.count(12); n > 0 {
		m.Indices = make([][3]uint32, n)
		for i := range m.Indices {
			m.Indices[i] = [3]uint32{r.u32(), r.u32(), r.u32()}
		}
	}
	if n := r.count(12); n > 0 {
		m.Normals = make([][3]float32, n)
		for i := range m.Normals {
			m.Normals[i] = [3]float32{r.f32(), r.f32(), r.f32()}
		}
	}
	if n := r.count(8); n > 0 {
		m.UVs = make([][2]float32, n)
		for i := range m.UVs {
			m.UVs[i] = [2]float32{r.f32(), r.f32()}
		}
	}
	if n := r.count(4); n > 0 {
		m.Colors = make([][4]uint8, n)
		for i := range m.Colors {
			copy(m.Colors[i][:], r.take(4))
		}
	}

	if r.u8() == 1 {
		channels := int(r.u8())
		raw := r.take(int(r.u32()))
		if r.err != nil {
			return m, r.err
		}
		img, err := webp.Decode(bytes.NewReader(raw))
		if err != nil {
			return m, fmt.Errorf("%w: albedo: %v", ErrFormat, err)
		}
		if m.Albedo, err = texture.FromImage(img, channels); err != nil {
			return m, fmt.Errorf("%w: albedo: %v", ErrFormat, err)
		}
	}
	return m, r.err
}
