// Command inspect prints a summary of a record stream written by
// urdf-loader, read from a file or stdin.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"

	"urdf-scene-logger/internal/rrlog"
)

type summary struct {
	byKind  map[rrlog.Kind]int
	verts   int
	tris    int
	albedos int
}

func main() {
	albedoDir := flag.String("albedo-dir", "", "Write every albedo texture as <n>.webp into this directory")
	quiet := flag.Bool("q", false, "Only print the totals")
	flag.Parse()

	in := io.Reader(os.Stdin)
	name := "<stdin>"
	if flag.NArg() > 0 {
		name = flag.Arg(0)
		f, err := os.Open(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	if *albedoDir != "" {
		if err := os.MkdirAll(*albedoDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := inspect(os.Stdout, in, name, *albedoDir, *quiet); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func inspect(w io.Writer, r io.Reader, name, albedoDir string, quiet bool) error {
	dec := rrlog.NewDecoder(r)
	info, err := dec.Header()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: application=%q recording=%q\n", name, info.ApplicationID, info.RecordingID)

	sum := summary{byKind: make(map[rrlog.Kind]int)}
	for n := 0; ; n++ {
		rec, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		sum.byKind[rec.Data.Kind()]++
		if !quiet {
			fmt.Fprintf(w, "[%d] %-15s %q%s\n", n, rec.Data.Kind(), rec.EntityPath, timelines(rec))
		}

		switch d := rec.Data.(type) {
		case rrlog.Transform3D:
			if !quiet {
				describeTransform(w, d)
			}
		case rrlog.Mesh3D:
			sum.verts += len(d.Positions)
			sum.tris += len(d.Indices)
			if !quiet {
				describeMesh(w, d)
			}
			if d.Albedo != nil {
				if albedoDir != "" {
					path := filepath.Join(albedoDir, fmt.Sprintf("%d.webp", sum.albedos))
					if err := writeAlbedo(path, d); err != nil {
						return err
					}
				}
				sum.albedos++
			}
		case rrlog.TextLog:
			if !quiet {
				fmt.Fprintf(w, "    %s: %s\n", d.Level, d.Text)
			}
		case rrlog.ViewCoordinates:
			if !quiet {
				fmt.Fprintf(w, "    %s\n", d.Coordinates)
			}
		}
	}

	fmt.Fprintln(w, "------------------------------------------------------------")
	for _, k := range []rrlog.Kind{rrlog.KindTransform3D, rrlog.KindMesh3D, rrlog.KindTextLog, rrlog.KindViewCoordinates} {
		fmt.Fprintf(w, "%-15s %d\n", k, sum.byKind[k])
	}
	fmt.Fprintf(w, "Vertices: %d, Triangles: %d, Albedo textures: %d\n", sum.verts, sum.tris, sum.albedos)
	return nil
}

func timelines(rec *rrlog.Record) string {
	if rec.Static {
		return " static"
	}
	var parts []string
	for _, t := range rec.Timelines {
		if t.Kind == rrlog.TimeSeconds {
			parts = append(parts, fmt.Sprintf("%s=%gs", t.Timeline, t.Seconds))
		} else {
			parts = append(parts, fmt.Sprintf("%s=#%d", t.Timeline, t.Sequence))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " @ " + strings.Join(parts, " ")
}

func describeTransform(w io.Writer, t rrlog.Transform3D) {
	if t.Translation != nil {
		fmt.Fprintf(w, "    translation: %.4f %.4f %.4f\n", t.Translation[0], t.Translation[1], t.Translation[2])
	}
	if t.Rotation != nil {
		fmt.Fprintf(w, "    rotation (xyzw): %.4f %.4f %.4f %.4f\n", t.Rotation[0], t.Rotation[1], t.Rotation[2], t.Rotation[3])
	}
	if t.Scale != nil {
		fmt.Fprintf(w, "    scale: %.4f %.4f %.4f\n", t.Scale[0], t.Scale[1], t.Scale[2])
	}
}

func describeMesh(w io.Writer, m rrlog.Mesh3D) {
	fmt.Fprintf(w, "    verts=%d, tris=%d, normals=%d, uvs=%d, colors=%d\n",
		len(m.Positions), len(m.Indices), len(m.Normals), len(m.UVs), len(m.Colors))
	if len(m.Positions) > 0 {
		minX, minY, minZ := math.Inf(1), math.Inf(1), math.Inf(1)
		maxX, maxY, maxZ := math.Inf(-1), math.Inf(-1), math.Inf(-1)
		for _, v := range m.Positions {
			x, y, z := float64(v[0]), float64(v[1]), float64(v[2])
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
			minZ, maxZ = math.Min(minZ, z), math.Max(maxZ, z)
		}
		fmt.Fprintf(w, "    BBox: X[%.3f, %.3f] Y[%.3f, %.3f] Z[%.3f, %.3f]\n", minX, maxX, minY, maxY, minZ, maxZ)
	}
	if m.Albedo != nil {
		fmt.Fprintf(w, "    albedo: %dx%d, %d channels\n", m.Albedo.Width, m.Albedo.Height, m.Albedo.Channels)
	}
}

func writeAlbedo(path string, m rrlog.Mesh3D) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := nativewebp.Encode(f, m.Albedo.Image(), nil); err != nil {
		return fmt.Errorf("WebP encode %s: %w", path, err)
	}
	return f.Close()
}
