// Package rrlog models the scene records a loader emits and carries them to
// a visualization host over a byte stream or a websocket.
package rrlog

import "urdf-scene-logger/internal/texture"

// Kind identifies the archetype of a record on the wire.
type Kind uint8

const (
	KindTransform3D     Kind = 1
	KindMesh3D          Kind = 2
	KindTextLog         Kind = 3
	KindViewCoordinates Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindTransform3D:
		return "Transform3D"
	case KindMesh3D:
		return "Mesh3D"
	case KindTextLog:
		return "TextLog"
	case KindViewCoordinates:
		return "ViewCoordinates"
	}
	return "Unknown"
}

// Archetype is the payload of a record.
type Archetype interface {
	Kind() Kind
}

// Transform3D places an entity relative to its parent. Nil fields are
// absent; Rotation is a unit quaternion (x, y, z, w).
type Transform3D struct {
	Translation *[3]float64 `json:"translation,omitempty"`
	Rotation    *[4]float64 `json:"rotation,omitempty"`
	Scale       *[3]float64 `json:"scale,omitempty"`
}

// Mesh3D is a triangle mesh with either vertex colors or an albedo texture.
type Mesh3D struct {
	Positions [][3]float32
	Indices   [][3]uint32
	Normals   [][3]float32
	UVs       [][2]float32
	Colors    [][4]uint8
	Albedo    *texture.Albedo
}

// Log levels of TextLog records.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// TextLog is a diagnostic message.
type TextLog struct {
	Text  string `json:"text"`
	Level string `json:"level"`
}

// ViewCoordinates declares the axis convention of an entity subtree,
// e.g. "RIGHT_HAND_Z_UP".
type ViewCoordinates struct {
	Coordinates string `json:"coordinates"`
}

// RightHandZUp is the convention of robot descriptions.
const RightHandZUp = "RIGHT_HAND_Z_UP"

func (Transform3D) Kind() Kind { return KindTransform3D }
func (Mesh3D) Kind() Kind { return KindMesh3D }
func (TextLog) Kind() Kind { return KindTextLog }
func (ViewCoordinates) Kind() Kind { return KindViewCoordinates }

// TimeKind tells how a timeline value is measured.
type TimeKind uint8

const (
	TimeSeconds  TimeKind = 1
	TimeSequence TimeKind = 2
)

// TimePoint is a record's position on one timeline.
type TimePoint struct {
	Timeline string
	Kind     TimeKind
	Seconds  float64
	Sequence int64
}

// Record is one logged entity value.
type Record struct {
	EntityPath string
	// Static records hold for all times and carry no timeline stamps.
	Static    bool
	Timelines []TimePoint
	Data      Archetype
}

// StreamInfo identifies the recording a stream belongs to.
type StreamInfo struct {
	ApplicationID string
	RecordingID   string
}
