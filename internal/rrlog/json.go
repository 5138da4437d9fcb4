package rrlog

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONEncoder writes one JSON object per line: the stream header first,
// then each record. It exists for debugging pipelines by eye.
type JSONEncoder struct {
	enc    *json.Encoder
	info   StreamInfo
	header bool
}

// NewJSONEncoder returns a sink writing JSON lines to w.
func NewJSONEncoder(w io.Writer, info StreamInfo) *JSONEncoder {
	return &JSONEncoder{enc: json.NewEncoder(w), info: info}
}

type jsonHeader struct {
	Format        string `json:"format"`
	Version       uint16 `json:"version"`
	ApplicationID string `json:"application_id"`
	RecordingID   string `json:"recording_id"`
}

type jsonTime struct {
	Timeline string   `json:"timeline"`
	Seconds  *float64 `json:"seconds,omitempty"`
	Sequence *int64   `json:"sequence,omitempty"`
}

type jsonAlbedo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Pix      []byte `json:"pix"`
}

type jsonMesh struct {
	Positions [][3]float32 `json:"positions"`
	Indices   [][3]uint32  `json:"indices"`
	Normals   [][3]float32 `json:"normals,omitempty"`
	UVs       [][2]float32 `json:"uvs,omitempty"`
	Colors    [][4]uint8   `json:"colors,omitempty"`
	Albedo    *jsonAlbedo  `json:"albedo,omitempty"`
}

type jsonRecord struct {
	EntityPath string     `json:"entity_path"`
	Static     bool       `json:"static,omitempty"`
	Timelines  []jsonTime `json:"timelines,omitempty"`
	Kind       string     `json:"kind"`
	Data       any        `json:"data"`
}

func (e *JSONEncoder) writeHeader() error {
	if e.header {
		return nil
	}
	e.header = true
	h := jsonHeader{Format: Magic, Version: Version, ApplicationID: e.info.ApplicationID, RecordingID: e.info.RecordingID}
	if err := e.enc.Encode(h); err != nil {
		return fmt.Errorf("rrlog: write header: %w", err)
	}
	return nil
}

// WriteRecord implements Sink.
func (e *JSONEncoder) WriteRecord(rec *Record) error {
	if err := e.writeHeader(); err != nil {
		return err
	}
	if rec.Data == nil {
		return fmt.Errorf("rrlog: encode %s: record without data", rec.EntityPath)
	}
	out := jsonRecord{EntityPath: rec.EntityPath, Static: rec.Static, Kind: rec.Data.Kind().String()}
	for _, t := range rec.Timelines {
		jt := jsonTime{Timeline: t.Timeline}
		if t.Kind == TimeSeconds {
			s := t.Seconds
			jt.Seconds = &s
		} else {
			n := t.Sequence
			jt.Sequence = &n
		}
		out.Timelines = append(out.Timelines, jt)
	}

	switch d := rec.Data.(type) {
	case Mesh3D:
		out.Data = toJSONMesh(&d)
	case *Mesh3D:
		out.Data = toJSONMesh(d)
	default:
		out.Data = d
	}
	if err := e.enc.Encode(out); err != nil {
		return fmt.Errorf("rrlog: write %s: %w", rec.EntityPath, err)
	}
	return nil
}

func toJSONMesh(m *Mesh3D) jsonMesh {
	out := jsonMesh{
		Positions: m.Positions,
		Indices:   m.Indices,
		Normals:   m.Normals,
		UVs:       m.UVs,
		Colors:    m.Colors,
	}
	if m.Albedo != nil {
		out.Albedo = &jsonAlbedo{Width: m.Albedo.Width, Height: m.Albedo.Height, Channels: m.Albedo.Channels, Pix: m.Albedo.Pix}
	}
	return out
}

// Close writes the header of an empty stream.
func (e *JSONEncoder) Close() error {
	return e.writeHeader()
}
