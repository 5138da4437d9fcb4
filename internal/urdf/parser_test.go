package urdf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urdf-scene-logger/internal/mathutil"
)

const armURDF = `<?xml version="1.0"?>
<robot name="arm">
  <material name="blue"><color rgba="0 0 1 1"/></material>
  <material name="wood"><texture filename="package://arm/wood.png"/></material>
  <link name="base">
    <visual>
      <origin xyz="0 0 0.1"/>
      <geometry><cylinder radius="0.2" length="0.1"/></geometry>
      <material name="blue"/>
    </visual>
    <collision><geometry><box size="1 1 1"/></geometry></collision>
  </link>
  <link name="upper">
    <visual name="shell">
      <origin xyz="0 0 0.5" rpy="0 1.5707 0"/>
      <geometry><mesh filename="package://arm/upper.stl" scale="0.001 0.001 0.001"/></geometry>
      <material name="red"><color rgba="1 0 0 1"/></material>
    </visual>
    <visual>
      <geometry><sphere radius="0.05"/></geometry>
    </visual>
  </link>
  <link name="tool">
    <visual><geometry><capsule radius="0.1" length="0.2"/></geometry></visual>
    <visual><origin rpy="0 0 1"/></visual>
  </link>
  <joint name="shoulder" type="revolute">
    <parent link="base"/><child link="upper"/>
    <origin xyz="0 0 0.2" rpy="0 0 0"/>
  </joint>
  <joint name="wrist" type="fixed">
    <parent link="upper"/><child link="tool"/>
  </joint>
  <gazebo reference="base"/>
</robot>`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(armURDF), "arm.urdf")
	require.NoError(t, err)

	assert.Equal(t, "arm", doc.Name)
	require.Len(t, doc.Links, 3)
	require.Len(t, doc.Joints, 2)
	require.Len(t, doc.Materials, 2)

	assert.Equal(t, &[4]float64{0, 0, 1, 1}, doc.Materials[0].Color)
	assert.Equal(t, "package://arm/wood.png", doc.Materials[1].Texture.Filename)

	base := doc.Links[0]
	require.Len(t, base.Visuals, 1)
	assert.Equal(t, Cylinder{Radius: 0.2, Length: 0.1}, base.Visuals[0].Geometry)
	assert.True(t, base.Visuals[0].Material.IsReference())
	assert.Equal(t, &mathutil.Vec3{0, 0, 0.1}, base.Visuals[0].Origin.XYZ)
	assert.Nil(t, base.Visuals[0].Origin.RPY)

	upper := doc.Links[1]
	require.Len(t, upper.Visuals, 2)
	assert.Equal(t, "shell", upper.Visuals[0].Name)
	mesh, ok := upper.Visuals[0].Geometry.(Mesh)
	require.True(t, ok)
	assert.Equal(t, "package://arm/upper.stl", mesh.Filename)
	assert.Equal(t, &mathutil.Vec3{0.001, 0.001, 0.001}, mesh.Scale)
	assert.False(t, upper.Visuals[0].Material.IsReference())
	assert.Equal(t, Sphere{Radius: 0.05}, upper.Visuals[1].Geometry)

	tool := doc.Links[2]
	assert.Equal(t, Unsupported{Type: "capsule"}, tool.Visuals[0].Geometry)
	assert.Equal(t, Unsupported{Type: "none"}, tool.Visuals[1].Geometry)
	assert.Equal(t, "none", GeometryType(tool.Visuals[1].Geometry))

	shoulder := doc.Joints[0]
	assert.Equal(t, "base", shoulder.Parent)
	assert.Equal(t, "upper", shoulder.Child)
	assert.Equal(t, "revolute", shoulder.Type)
	require.NotNil(t, shoulder.Origin)
	assert.Nil(t, doc.Joints[1].Origin)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"not xml", "<robot"},
		{"bad box", `<robot><link name="a"><visual><geometry><box size="1 1"/></geometry></visual></link></robot>`},
		{"bad color", `<robot><material name="m"><color rgba="1 x 0 1"/></material></robot>`},
		{"duplicate link", `<robot><link name="a"/><link name="a"/></robot>`},
		{"two parents", `<robot><link name="a"/><link name="b"/><link name="c"/>
			<joint name="j1"><parent link="a"/><child link="c"/></joint>
			<joint name="j2"><parent link="b"/><child link="c"/></joint></robot>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.xml), "bad.urdf")
			assert.Error(t, err)
		})
	}
}

func TestRootAndChain(t *testing.T) {
	doc, err := Parse([]byte(armURDF), "arm.urdf")
	require.NoError(t, err)

	root, err := doc.Root()
	require.NoError(t, err)
	assert.Equal(t, "base", root)

	chain, err := doc.Chain(root, "tool")
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "shoulder", "upper", "wrist", "tool"}, chain)

	links, err := doc.LinkChain(root, "tool")
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "upper", "tool"}, links)

	links, err = doc.LinkChain(root, "base")
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, links)

	_, err = doc.Chain(root, "missing")
	assert.Error(t, err)
}

func TestRootErrors(t *testing.T) {
	doc, err := Parse([]byte(`<robot><link name="a"/><link name="b"/></robot>`), "two.urdf")
	require.NoError(t, err)
	_, err = doc.Root()
	assert.ErrorIs(t, err, ErrMultipleRoots)

	doc, err = Parse([]byte(`<robot><link name="a"/><link name="b"/>
		<joint name="ab"><parent link="a"/><child link="b"/></joint>
		<joint name="ba"><parent link="b"/><child link="a"/></joint></robot>`), "cycle.urdf")
	require.NoError(t, err)
	_, err = doc.Root()
	assert.ErrorIs(t, err, ErrNoRoot)
	_, err = doc.Chain("root", "a")
	assert.ErrorIs(t, err, ErrCycle)
}

type fakePreprocessor struct {
	out  []byte
	err  error
	seen string
}

func (f *fakePreprocessor) Expand(path string) ([]byte, error) {
	f.seen = path
	return f.out, f.err
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "arm.urdf")
	require.NoError(t, os.WriteFile(plain, []byte(armURDF), 0o644))

	pre := &fakePreprocessor{out: []byte(armURDF)}
	doc, err := Load(plain, pre)
	require.NoError(t, err)
	assert.Len(t, doc.Links, 3)
	assert.Empty(t, pre.seen, "plain documents skip the preprocessor")

	macro := filepath.Join(dir, "arm.urdf.xacro")
	doc, err = Load(macro, pre)
	require.NoError(t, err)
	assert.Equal(t, macro, pre.seen)
	assert.Equal(t, "arm", doc.Name)

	pre.err = errors.New("boom")
	_, err = Load(macro, pre)
	assert.Error(t, err)

	_, err = Load(macro, nil)
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("robot.urdf"))
	assert.True(t, Supported("robot.URDF"))
	assert.True(t, Supported("robot.urdf.xacro"))
	assert.True(t, Supported("robot.xacro"))
	assert.False(t, Supported("robot.sdf"))
	assert.False(t, Supported("robot.urdf.bak"))
}
