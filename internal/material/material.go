// Package material applies robot-description materials to decoded meshes.
package material

import (
	"errors"
	"fmt"

	"urdf-scene-logger/internal/meshio"
	"urdf-scene-logger/internal/normalize"
	"urdf-scene-logger/internal/texture"
	"urdf-scene-logger/internal/urdf"
)

// ErrUnknownMaterial matches every *UnknownMaterialError.
var ErrUnknownMaterial = errors.New("material: unknown material")

// UnknownMaterialError reports a visual that names a material missing from
// the global table.
type UnknownMaterialError struct {
	Name string
}

func (e *UnknownMaterialError) Error() string {
	return fmt.Sprintf("material: unknown material %q", e.Name)
}

func (e *UnknownMaterialError) Is(target error) bool {
	return target == ErrUnknownMaterial
}

// Table indexes the globally declared materials by name. A later
// declaration of the same name replaces an earlier one.
type Table struct {
	byName map[string]*urdf.Material
}

// NewTable builds the table from the document's global materials.
func NewTable(materials []*urdf.Material) *Table {
	t := &Table{byName: make(map[string]*urdf.Material, len(materials))}
	for _, m := range materials {
		t.byName[m.Name] = m
	}
	return t
}

// Lookup returns the named material.
func (t *Table) Lookup(name string) (*urdf.Material, error) {
	if m, ok := t.byName[name]; ok {
		return m, nil
	}
	return nil, &UnknownMaterialError{Name: name}
}

// Resolve returns the material a visual uses: nil when it has none, the
// global entry when it only names one, and ref itself otherwise.
func Resolve(ref *urdf.Material, t *Table) (*urdf.Material, error) {
	if ref == nil {
		return nil, nil
	}
	if !ref.IsReference() {
		return ref, nil
	}
	return t.Lookup(ref.Name)
}

// PathResolver maps a texture reference to a file path. Relative literal
// paths are taken relative to baseDir.
type PathResolver interface {
	ResolveRelative(ref, baseDir string) (string, error)
}

// Resolver turns a visual's material into shading for one mesh.
type Resolver struct {
	Table    *Table
	Paths    PathResolver
	Textures texture.Source
	// BaseDir is the directory of the robot description.
	BaseDir string
}

// Override returns the shading mat imposes on mesh, or nil when the mesh
// keeps its own. Meshes carrying an embedded material or texture
// coordinates are never overridden. A texture takes precedence over a
// color.
func (r *Resolver) Override(mat *urdf.Material, mesh *meshio.Mesh) (*normalize.Override, error) {
	if mat == nil || mesh.HasTextureVisual() {
		return nil, nil
	}
	if mat.Texture != nil && mat.Texture.Filename != "" {
		path, err := r.Paths.ResolveRelative(mat.Texture.Filename, r.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("material: texture of %q: %w", mat.Name, err)
		}
		img, err := r.Textures.Load(path)
		if err != nil {
			return nil, fmt.Errorf("material: texture of %q: %w", mat.Name, err)
		}
		return &normalize.Override{Albedo: img}, nil
	}
	if mat.Color != nil {
		c := *mat.Color
		return &normalize.Override{Color: &c}, nil
	}
	return nil, nil
}
