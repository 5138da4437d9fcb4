package material

import (
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urdf-scene-logger/internal/meshio"
	"urdf-scene-logger/internal/urdf"
)

type stubPaths struct{}

func (stubPaths) ResolveRelative(ref, baseDir string) (string, error) {
	if ref == "package://ghost/t.png" {
		return "", errors.New("not found")
	}
	return filepath.Join(baseDir, ref), nil
}

type stubTextures struct {
	loaded []string
}

func (s *stubTextures) Load(path string) (image.Image, error) {
	s.loaded = append(s.loaded, path)
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func (s *stubTextures) Decode(raw []byte, name string) (image.Image, error) {
	return s.Load(name)
}

func TestLookupUnknown(t *testing.T) {
	table := NewTable([]*urdf.Material{{Name: "blue", Color: &[4]float64{0, 0, 1, 1}}})

	m, err := table.Lookup("blue")
	require.NoError(t, err)
	assert.Equal(t, "blue", m.Name)

	_, err = Resolve(&urdf.Material{Name: "red"}, table)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMaterial)
	var unknown *UnknownMaterialError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "red", unknown.Name)
}

func TestResolve(t *testing.T) {
	blue := &urdf.Material{Name: "blue", Color: &[4]float64{0, 0, 1, 1}}
	table := NewTable([]*urdf.Material{blue})

	got, err := Resolve(nil, table)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = Resolve(&urdf.Material{Name: "blue"}, table)
	require.NoError(t, err)
	assert.Same(t, blue, got)

	inline := &urdf.Material{Name: "blue", Color: &[4]float64{1, 1, 1, 1}}
	got, err = Resolve(inline, table)
	require.NoError(t, err)
	assert.Same(t, inline, got, "inline definitions win over the table")
}

func TestOverride(t *testing.T) {
	textures := &stubTextures{}
	r := &Resolver{Paths: stubPaths{}, Textures: textures, BaseDir: "/robot"}
	plain := &meshio.Mesh{Positions: [][3]float32{{0, 0, 0}}}

	o, err := r.Override(nil, plain)
	require.NoError(t, err)
	assert.Nil(t, o)

	o, err = r.Override(&urdf.Material{Color: &[4]float64{1, 0, 0, 1}}, plain)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, &[4]float64{1, 0, 0, 1}, o.Color)
	assert.Nil(t, o.Albedo)

	both := &urdf.Material{Color: &[4]float64{1, 0, 0, 1}, Texture: &urdf.Texture{Filename: "tex/a.png"}}
	o, err = r.Override(both, plain)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.NotNil(t, o.Albedo)
	assert.Nil(t, o.Color)
	assert.Equal(t, []string{filepath.Join("/robot", "tex/a.png")}, textures.loaded)

	textured := &meshio.Mesh{Positions: [][3]float32{{0, 0, 0}}, UVs: [][2]float32{{0, 0}}}
	o, err = r.Override(both, textured)
	require.NoError(t, err)
	assert.Nil(t, o, "meshes with their own texture visual keep it")

	_, err = r.Override(&urdf.Material{Name: "x", Texture: &urdf.Texture{Filename: "package://ghost/t.png"}}, plain)
	assert.Error(t, err)
}
