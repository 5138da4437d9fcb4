package scene

import (
	"sync"
	"sync/atomic"
	"time"

	"urdf-scene-logger/internal/meshio"
	"urdf-scene-logger/internal/urdf"
)

type loadResult struct {
	asset *meshio.Asset
	err   error
}

// meshPaths returns every resolvable mesh file of the document once, in
// document order. References that fail to resolve are left for the walk to
// report.
func (w *Walker) meshPaths() []string {
	seen := make(map[string]bool)
	var paths []string
	for _, l := range w.doc.Links {
		for _, v := range l.Visuals {
			m, ok := v.Geometry.(urdf.Mesh)
			if !ok {
				continue
			}
			path, err := w.opts.Resolver.ResolveRelative(m.Filename, w.opts.BaseDir)
			if err != nil || seen[path] {
				continue
			}
			seen[path] = true
			paths = append(paths, path)
		}
	}
	return paths
}

// prefetch decodes all mesh files using a worker pool. Records are still
// written in walk order afterwards.
func (w *Walker) prefetch() map[string]loadResult {
	paths := w.meshPaths()
	total := len(paths)
	results := make([]loadResult, total)
	var processed atomic.Int64

	start := time.Now()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := processed.Load()
				w.log.Debug("decoding meshes", "done", p, "total", total, "elapsed", time.Since(start).Round(time.Millisecond))
			}
		}
	}()

	jobs := make(chan int, w.opts.Workers*2)
	var wg sync.WaitGroup
	for range w.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				asset, err := w.opts.LoadMesh(paths[idx])
				results[idx] = loadResult{asset: asset, err: err}
				processed.Add(1)
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(done)

	out := make(map[string]loadResult, total)
	for i, path := range paths {
		out[path] = results[i]
	}
	w.log.Debug("meshes decoded", "count", total, "elapsed", time.Since(start).Round(time.Millisecond))
	return out
}

func (w *Walker) loadMesh(path string) (*meshio.Asset, error) {
	if r, ok := w.assets[path]; ok {
		return r.asset, r.err
	}
	return w.opts.LoadMesh(path)
}
