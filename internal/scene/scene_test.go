package scene

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urdf-scene-logger/internal/material"
	"urdf-scene-logger/internal/mathutil"
	"urdf-scene-logger/internal/meshio"
	"urdf-scene-logger/internal/report"
	"urdf-scene-logger/internal/rrlog"
	"urdf-scene-logger/internal/texture"
	"urdf-scene-logger/internal/urdf"
)

const boxArm = `<robot name="r">
  <link name="base"/>
  <link name="arm">
    <visual><geometry><box size="1 2 3"/></geometry></visual>
  </link>
  <joint name="base_to_arm" type="fixed">
    <parent link="base"/><child link="arm"/>
    <origin xyz="0 0 1"/>
  </joint>
</robot>`

func parse(t *testing.T, doc string) *urdf.Document {
	t.Helper()
	d, err := urdf.Parse([]byte(doc), "test.urdf")
	require.NoError(t, err)
	return d
}

func walk(t *testing.T, doc *urdf.Document, opts Options) (*rrlog.Recorder, error) {
	t.Helper()
	w, err := NewWalker(doc, opts)
	require.NoError(t, err)
	rec := &rrlog.Recorder{}
	err = w.Log(rrlog.NewStream(rec, false))
	return rec, err
}

func paths(rec *rrlog.Recorder) []string {
	out := make([]string, len(rec.Records))
	for i, r := range rec.Records {
		out[i] = r.EntityPath
	}
	return out
}

func TestBoxVisual(t *testing.T) {
	rec, err := walk(t, parse(t, boxArm), Options{})
	require.NoError(t, err)
	require.Len(t, rec.Records, 2)

	xf, ok := rec.Records[0].Data.(rrlog.Transform3D)
	require.True(t, ok)
	assert.Equal(t, "base/arm", rec.Records[0].EntityPath)
	assert.Equal(t, &[3]float64{0, 0, 1}, xf.Translation)
	assert.Equal(t, &[4]float64{0, 0, 0, 1}, xf.Rotation)

	mesh, ok := rec.Records[1].Data.(rrlog.Mesh3D)
	require.True(t, ok)
	assert.Equal(t, "base/arm/visual_0", rec.Records[1].EntityPath)
	assert.Len(t, mesh.Positions, 8)
	assert.Len(t, mesh.Indices, 12)
	assert.Len(t, mesh.Colors, 8)
	assert.Nil(t, mesh.Albedo)
}

func TestMissingMaterial(t *testing.T) {
	doc := parse(t, `<robot>
  <link name="base">
    <visual><geometry><sphere radius="1"/></geometry><material name="red"/></visual>
  </link>
</robot>`)
	rep := &report.Report{}
	rec, err := walk(t, doc, Options{Report: rep})
	require.Error(t, err)
	assert.ErrorIs(t, err, material.ErrUnknownMaterial)
	assert.Empty(t, rec.Records)

	results := rep.Results()
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "red")
}

func TestUnsupportedGeometryContinues(t *testing.T) {
	doc := parse(t, `<robot>
  <link name="arm">
    <visual><origin xyz="1 0 0"/><geometry><capsule radius="1" length="2"/></geometry></visual>
    <visual><geometry><sphere radius="1"/></geometry></visual>
  </link>
</robot>`)
	rec, err := walk(t, doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"arm/visual_0", "", "arm/visual_0", "arm/visual_1"}, paths(rec))

	diag, ok := rec.Records[1].Data.(rrlog.TextLog)
	require.True(t, ok)
	assert.Equal(t, rrlog.LevelWarn, diag.Level)
	assert.Equal(t, "Unsupported geometry type: capsule", diag.Text)

	empty, ok := rec.Records[2].Data.(rrlog.Mesh3D)
	require.True(t, ok)
	assert.Empty(t, empty.Positions)

	sphere, ok := rec.Records[3].Data.(rrlog.Mesh3D)
	require.True(t, ok)
	assert.Len(t, sphere.Positions, 642)
}

func TestPrefixAndViewCoordinates(t *testing.T) {
	rec, err := walk(t, parse(t, boxArm), Options{Prefix: "robot", ViewCoordinates: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"robot", "robot/base/arm", "robot/base/arm/visual_0"}, paths(rec))
	assert.Equal(t, rrlog.ViewCoordinates{Coordinates: rrlog.RightHandZUp}, rec.Records[0].Data)
}

func TestLinkPaths(t *testing.T) {
	doc := parse(t, `<robot>
  <link name="a"/><link name="b"/><link name="c"/>
  <joint name="ab"><parent link="a"/><child link="b"/></joint>
  <joint name="bc"><parent link="b"/><child link="c"/></joint>
</robot>`)
	w, err := NewWalker(doc, Options{})
	require.NoError(t, err)
	assert.Equal(t, "a", w.Root())

	p, err := w.LinkPath("a")
	require.NoError(t, err)
	assert.Equal(t, "a", p)

	p, err = w.LinkPath("c")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", p)

	p, err = w.JointPath(doc.Joints[1])
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", p, "a joint shares its child link's path")
}

func TestNewWalkerRejectsForest(t *testing.T) {
	doc := parse(t, `<robot><link name="a"/><link name="b"/></robot>`)
	_, err := NewWalker(doc, Options{})
	assert.ErrorIs(t, err, urdf.ErrMultipleRoots)
}

func TestIdempotent(t *testing.T) {
	doc := parse(t, boxArm)
	encode := func() []byte {
		var buf bytes.Buffer
		w, err := NewWalker(doc, Options{})
		require.NoError(t, err)
		s := rrlog.NewStream(rrlog.NewEncoder(&buf, rrlog.StreamInfo{ApplicationID: "a", RecordingID: "r"}), false)
		s.SetTimeSequence("frame", 3)
		require.NoError(t, w.Log(s))
		require.NoError(t, s.Close())
		return buf.Bytes()
	}
	assert.Equal(t, encode(), encode())
}

func triangleAsset() *meshio.Asset {
	return &meshio.Asset{Mesh: &meshio.Mesh{
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Indices:   [][3]uint32{{0, 1, 2}},
	}}
}

func TestMeshVisualScaleAndMaterial(t *testing.T) {
	dir := t.TempDir()
	doc := parse(t, `<robot>
  <material name="red"><color rgba="1 0 0 1"/></material>
  <link name="base">
    <visual>
      <geometry><mesh filename="part.stl" scale="2 2 2"/></geometry>
      <material name="red"/>
    </visual>
  </link>
</robot>`)

	var loaded []string
	load := func(path string) (*meshio.Asset, error) {
		loaded = append(loaded, path)
		return triangleAsset(), nil
	}
	rep := &report.Report{}
	rec, err := walk(t, doc, Options{BaseDir: dir, LoadMesh: load, Report: rep})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "part.stl")}, loaded)

	require.Len(t, rec.Records, 2)
	xf := rec.Records[0].Data.(rrlog.Transform3D)
	assert.Equal(t, &[3]float64{2, 2, 2}, xf.Scale)
	assert.Nil(t, xf.Translation)

	mesh := rec.Records[1].Data.(rrlog.Mesh3D)
	assert.Equal(t, [][4]uint8{{255, 0, 0, 255}, {255, 0, 0, 255}, {255, 0, 0, 255}}, mesh.Colors)

	results := rep.Results()
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "mesh", results[0].Geometry)
	assert.Equal(t, 1, results[0].Meshes)
}

func TestSceneAssetSubPaths(t *testing.T) {
	doc := parse(t, `<robot>
  <link name="base"><visual><geometry><mesh filename="/abs/part.dae"/></geometry></visual></link>
</robot>`)
	tri := triangleAsset().Mesh
	load := func(string) (*meshio.Asset, error) {
		return &meshio.Asset{Scene: &meshio.Scene{Roots: []*meshio.Node{{
			Transform: mathutil.Mat4Identity(),
			Meshes:    []*meshio.Mesh{tri, tri},
		}}}}, nil
	}
	rec, err := walk(t, doc, Options{LoadMesh: load})
	require.NoError(t, err)
	assert.Equal(t, []string{"base/visual_0/0", "base/visual_0/1"}, paths(rec))
}

func TestKeepGoing(t *testing.T) {
	doc := parse(t, `<robot>
  <link name="base">
    <visual><geometry><mesh filename="missing.stl"/></geometry></visual>
    <visual><geometry><box size="1 1 1"/></geometry></visual>
  </link>
</robot>`)
	load := func(path string) (*meshio.Asset, error) {
		return nil, os.ErrNotExist
	}

	rec, err := walk(t, doc, Options{LoadMesh: load})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, rec.Records)

	rep := &report.Report{}
	rec, err = walk(t, doc, Options{LoadMesh: load, KeepGoing: true, Report: rep})
	assert.ErrorIs(t, err, ErrVisualsFailed)
	require.Len(t, rec.Records, 2)
	assert.Equal(t, "", rec.Records[0].EntityPath)
	assert.Equal(t, rrlog.LevelError, rec.Records[0].Data.(rrlog.TextLog).Level)
	assert.Equal(t, "base/visual_1", rec.Records[1].EntityPath)

	ok, failed := rep.Counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

type failingSink struct{ rrlog.Recorder }

func (f *failingSink) WriteRecord(*rrlog.Record) error { return errors.New("broken pipe") }

func TestKeepGoingStopsOnSinkFailure(t *testing.T) {
	w, err := NewWalker(parse(t, `<robot><link name="a"><visual><geometry><box size="1 1 1"/></geometry></visual></link></robot>`), Options{KeepGoing: true})
	require.NoError(t, err)
	err = w.Log(rrlog.NewStream(&failingSink{}, false))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVisualsFailed)
}

func TestPrefetchMatchesLazyLoad(t *testing.T) {
	doc := parse(t, `<robot>
  <link name="base">
    <visual><geometry><mesh filename="/m/a.stl"/></geometry></visual>
    <visual><geometry><mesh filename="/m/a.stl"/></geometry></visual>
    <visual><geometry><mesh filename="/m/b.stl"/></geometry></visual>
  </link>
</robot>`)
	load := func(string) (*meshio.Asset, error) { return triangleAsset(), nil }

	lazy, err := walk(t, doc, Options{LoadMesh: load})
	require.NoError(t, err)
	eager, err := walk(t, doc, Options{LoadMesh: load, Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, paths(lazy), paths(eager))
	assert.Equal(t, lazy.Records, eager.Records)
}

func TestOriginTransform(t *testing.T) {
	assert.Nil(t, OriginTransform(nil))
	assert.Nil(t, OriginTransform(&urdf.Origin{}))

	onlyRPY := OriginTransform(&urdf.Origin{RPY: &mathutil.Vec3{0, 0, 0}})
	require.NotNil(t, onlyRPY)
	assert.Equal(t, &[3]float64{0, 0, 0}, onlyRPY.Translation)
	assert.Equal(t, &[4]float64{0, 0, 0, 1}, onlyRPY.Rotation)

	onlyXYZ := OriginTransform(&urdf.Origin{XYZ: &mathutil.Vec3{1, 2, 3}})
	require.NotNil(t, onlyXYZ)
	assert.Equal(t, &[3]float64{1, 2, 3}, onlyXYZ.Translation)
	assert.Equal(t, &[4]float64{0, 0, 0, 1}, onlyXYZ.Rotation)
	assert.Nil(t, onlyXYZ.Scale)
}

func TestWithScale(t *testing.T) {
	assert.Nil(t, WithScale(nil, nil))

	s := WithScale(nil, &mathutil.Vec3{1, 2, 3})
	assert.Equal(t, &rrlog.Transform3D{Scale: &[3]float64{1, 2, 3}}, s)

	base := OriginTransform(&urdf.Origin{XYZ: &mathutil.Vec3{1, 0, 0}})
	scaled := WithScale(base, &mathutil.Vec3{2, 2, 2})
	assert.Equal(t, base.Translation, scaled.Translation)
	assert.Equal(t, &[3]float64{2, 2, 2}, scaled.Scale)
	assert.Nil(t, base.Scale, "input is not modified")
}

func TestTextureMaterial(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	img.Set(1, 0, color.NRGBA{0, 0, 255, 255})
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, img))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tex.png"), encoded.Bytes(), 0o644))

	doc := parse(t, `<robot>
  <link name="base">
    <visual>
      <geometry><box size="1 1 1"/></geometry>
      <material name="painted"><texture filename="tex.png"/></material>
    </visual>
  </link>
</robot>`)
	textures := texture.NewCache(0)
	rec, err := walk(t, doc, Options{BaseDir: dir, Textures: textures})
	require.NoError(t, err)
	require.Len(t, rec.Records, 1)

	mesh, ok := rec.Records[0].Data.(rrlog.Mesh3D)
	require.True(t, ok)
	assert.Nil(t, mesh.Colors)
	require.NotNil(t, mesh.Albedo)
	assert.Equal(t, 2, mesh.Albedo.Width)
	assert.Equal(t, 1, mesh.Albedo.Height)
	assert.Equal(t, 3, mesh.Albedo.Channels)
	assert.Equal(t, []byte{255, 0, 0, 0, 0, 255}, mesh.Albedo.Pix)
	assert.Equal(t, 1, textures.Len())
}
