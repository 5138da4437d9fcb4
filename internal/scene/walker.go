package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"urdf-scene-logger/internal/material"
	"urdf-scene-logger/internal/meshio"
	"urdf-scene-logger/internal/normalize"
	"urdf-scene-logger/internal/pkgpath"
	"urdf-scene-logger/internal/report"
	"urdf-scene-logger/internal/rrlog"
	"urdf-scene-logger/internal/texture"
	"urdf-scene-logger/internal/urdf"
)

// DiagnosticPath is where diagnostics are logged. It is never prefixed.
const DiagnosticPath = ""

// ErrVisualsFailed is returned by Log in keep-going mode when at least one
// visual was skipped.
var ErrVisualsFailed = errors.New("scene: some visuals failed")

// PathResolver maps asset references to file paths; relative literal
// references are taken relative to baseDir.
type PathResolver interface {
	ResolveRelative(ref, baseDir string) (string, error)
}

// Options configure a Walker.
type Options struct {
	// Prefix namespaces every entity path except DiagnosticPath.
	Prefix string
	// BaseDir is the directory of the robot description.
	BaseDir  string
	Resolver PathResolver
	Textures texture.Source
	// LoadMesh decodes mesh files; defaults to meshio.Load reading
	// textures through Textures.
	LoadMesh func(path string) (*meshio.Asset, error)
	// Workers decode mesh files ahead of the walk. Zero or one loads them
	// lazily in walk order.
	Workers int
	// KeepGoing skips failing visuals instead of aborting.
	KeepGoing bool
	// ViewCoordinates logs the Z-up convention at the prefix root first.
	ViewCoordinates bool
	Report          *report.Report
	Logger          *slog.Logger
}

// Walker logs a document's joints and visuals.
type Walker struct {
	doc       *urdf.Document
	root      string
	opts      Options
	materials *material.Resolver
	log       *slog.Logger
	assets    map[string]loadResult
}

// NewWalker validates that doc has a single root and prepares the walk.
func NewWalker(doc *urdf.Document, opts Options) (*Walker, error) {
	root, err := doc.Root()
	if err != nil {
		return nil, err
	}
	if opts.Resolver == nil {
		opts.Resolver = pkgpath.New(nil, nil, nil)
	}
	if opts.Textures == nil {
		opts.Textures = texture.NewCache(0)
	}
	if opts.LoadMesh == nil {
		textures := opts.Textures
		opts.LoadMesh = func(path string) (*meshio.Asset, error) {
			return meshio.Load(path, textures)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Walker{
		doc:  doc,
		root: root,
		opts: opts,
		materials: &material.Resolver{
			Table:    material.NewTable(doc.Materials),
			Paths:    opts.Resolver,
			Textures: opts.Textures,
			BaseDir:  opts.BaseDir,
		},
		log: opts.Logger,
	}, nil
}

// Root returns the root link name.
func (w *Walker) Root() string {
	return w.root
}

// LinkPath returns the entity path of a link: the link names from the root
// down to it, joined by "/" and prefixed.
func (w *Walker) LinkPath(name string) (string, error) {
	links, err := w.doc.LinkChain(w.root, name)
	if err != nil {
		return "", err
	}
	return w.prefixed(strings.Join(links, "/")), nil
}

// JointPath returns the entity path of a joint, which is its child link's.
func (w *Walker) JointPath(j *urdf.Joint) (string, error) {
	return w.LinkPath(j.Child)
}

func (w *Walker) prefixed(path string) string {
	if w.opts.Prefix == "" {
		return path
	}
	if path == "" {
		return w.opts.Prefix
	}
	return w.opts.Prefix + "/" + path
}

// Log writes every joint transform, then the visuals of every link, in
// document order.
func (w *Walker) Log(s *rrlog.Stream) error {
	if w.opts.Workers > 1 {
		w.assets = w.prefetch()
	}

	if w.opts.ViewCoordinates {
		if err := s.Log(w.prefixed(""), rrlog.ViewCoordinates{Coordinates: rrlog.RightHandZUp}); err != nil {
			return err
		}
	}

	for _, j := range w.doc.Joints {
		if err := w.logJoint(s, j); err != nil {
			return err
		}
	}

	failed := 0
	for _, l := range w.doc.Links {
		path, err := w.LinkPath(l.Name)
		if err != nil {
			return err
		}
		for i, v := range l.Visuals {
			err := w.logVisual(s, l, path, i, v)
			if err == nil {
				continue
			}
			var sinkErr *sinkError
			if !w.opts.KeepGoing || errors.As(err, &sinkErr) {
				return err
			}
			failed++
			w.log.Error("visual skipped", "link", l.Name, "visual", i, "err", err)
			msg := fmt.Sprintf("Skipped %s/visual_%d: %v", path, i, err)
			if err := s.Log(DiagnosticPath, rrlog.TextLog{Text: msg, Level: rrlog.LevelError}); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d skipped", ErrVisualsFailed, failed)
	}
	return nil
}

func (w *Walker) logJoint(s *rrlog.Stream, j *urdf.Joint) error {
	t := OriginTransform(j.Origin)
	if t == nil {
		return nil
	}
	path, err := w.JointPath(j)
	if err != nil {
		return fmt.Errorf("scene: joint %q: %w", j.Name, err)
	}
	return s.Log(path, *t)
}

// sinkError marks failures of the output itself, which keep-going mode must
// not swallow.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

func (w *Walker) emit(s *rrlog.Stream, path string, data rrlog.Archetype) error {
	if err := s.Log(path, data); err != nil {
		return &sinkError{err: err}
	}
	return nil
}

// logVisual writes the transform and mesh records of one visual. Nothing is
// written for the visual until its material and geometry have resolved.
func (w *Walker) logVisual(s *rrlog.Stream, l *urdf.Link, linkPath string, i int, v *urdf.Visual) error {
	base := fmt.Sprintf("%s/visual_%d", linkPath, i)
	res := report.Result{Link: l.Name, Visual: i, EntityPath: base, Geometry: urdf.GeometryType(v.Geometry)}
	err := w.visual(s, base, v, &res)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	if w.opts.Report != nil {
		w.opts.Report.Add(res)
	}
	return err
}

func (w *Walker) visual(s *rrlog.Stream, base string, v *urdf.Visual, res *report.Result) error {
	mat, err := material.Resolve(v.Material, w.materials.Table)
	if err != nil {
		return fmt.Errorf("scene: %s: %w", base, err)
	}
	xf := OriginTransform(v.Origin)

	var (
		meshes []*meshio.Mesh
		split  bool // sub-meshes of a scene get their own paths
	)
	switch g := v.Geometry.(type) {
	case urdf.Mesh:
		path, err := w.opts.Resolver.ResolveRelative(g.Filename, w.opts.BaseDir)
		if err != nil {
			return fmt.Errorf("scene: %s: %w", base, err)
		}
		res.Source = path
		asset, err := w.loadMesh(path)
		if err != nil {
			return fmt.Errorf("scene: %s: %w", base, err)
		}
		for _, warning := range asset.Warnings {
			w.log.Warn("mesh asset", "path", path, "warning", warning)
		}
		if meshes, err = normalize.Flatten(asset); err != nil {
			return fmt.Errorf("scene: %s: %w", base, err)
		}
		split = asset.Scene != nil
		xf = WithScale(xf, g.Scale)
	case urdf.Box:
		meshes = []*meshio.Mesh{meshio.Box(g.Size)}
	case urdf.Cylinder:
		meshes = []*meshio.Mesh{meshio.Cylinder(g.Radius, g.Length)}
	case urdf.Sphere:
		meshes = []*meshio.Mesh{meshio.Icosphere(g.Radius)}
	default:
		return w.unsupported(s, base, xf, urdf.GeometryType(v.Geometry), res)
	}

	normalized := make([]*normalize.Mesh, len(meshes))
	for j, m := range meshes {
		override, err := w.materials.Override(mat, m)
		if err != nil {
			return fmt.Errorf("scene: %s: %w", base, err)
		}
		normalized[j] = normalize.FromMesh(m, override)
	}

	if xf != nil {
		if err := w.emit(s, base, *xf); err != nil {
			return err
		}
	}
	for j, m := range normalized {
		path := base
		if split {
			path = fmt.Sprintf("%s/%d", base, j)
		}
		if err := w.emit(s, path, toRecord(m)); err != nil {
			return err
		}
	}
	res.Meshes = len(normalized)
	return nil
}

func (w *Walker) unsupported(s *rrlog.Stream, base string, xf *rrlog.Transform3D, kind string, res *report.Result) error {
	w.log.Warn("unsupported geometry", "path", base, "type", kind)
	if xf != nil {
		if err := w.emit(s, base, *xf); err != nil {
			return err
		}
	}
	msg := rrlog.TextLog{Text: "Unsupported geometry type: " + kind, Level: rrlog.LevelWarn}
	if err := w.emit(s, DiagnosticPath, msg); err != nil {
		return err
	}
	if err := w.emit(s, base, toRecord(normalize.Empty())); err != nil {
		return err
	}
	res.Meshes = 1
	return nil
}

func toRecord(m *normalize.Mesh) rrlog.Mesh3D {
	return rrlog.Mesh3D{
		Positions: m.Positions,
		Indices:   m.Indices,
		Normals:   m.Normals,
		UVs:       m.UVs,
		Colors:    m.Colors,
		Albedo:    m.Albedo,
	}
}
