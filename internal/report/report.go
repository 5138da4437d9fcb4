// Package report collects per-visual outcomes of a run and writes them as a
// JSON manifest.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Result holds the outcome of logging one visual.
type Result struct {
	Link       string `json:"link"`
	Visual     int    `json:"visual"`
	EntityPath string `json:"entity_path"`
	Geometry   string `json:"geometry"`
	Source     string `json:"source,omitempty"`
	Meshes     int    `json:"meshes"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Report is safe for concurrent use.
type Report struct {
	Document      string
	ApplicationID string
	RecordingID   string

	mu      sync.Mutex
	results []Result
}

// Add appends one result.
func (r *Report) Add(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// Results returns a copy of the results in the order they were added.
func (r *Report) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

// Counts returns how many visuals succeeded and failed.
func (r *Report) Counts() (ok, failed int) {
	for _, res := range r.Results() {
		if res.Success {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

type manifest struct {
	Document      string   `json:"document"`
	ApplicationID string   `json:"application_id"`
	RecordingID   string   `json:"recording_id"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	Results       []Result `json:"results"`
}

// WriteManifest writes the report as indented JSON to path.
func WriteManifest(path string, r *Report) error {
	ok, failed := r.Counts()
	m := manifest{
		Document:      r.Document,
		ApplicationID: r.ApplicationID,
		RecordingID:   r.RecordingID,
		Succeeded:     ok,
		Failed:        failed,
		Results:       r.Results(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}
