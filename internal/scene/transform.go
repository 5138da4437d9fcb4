// Package scene walks a robot description and logs its joints and visuals
// as scene records.
package scene

import (
	"urdf-scene-logger/internal/mathutil"
	"urdf-scene-logger/internal/rrlog"
	"urdf-scene-logger/internal/urdf"
)

// OriginTransform converts an origin to a transform record. It returns nil
// when the origin is absent or sets neither field; otherwise translation
// defaults to zero and rotation to identity, and both are filled in.
func OriginTransform(o *urdf.Origin) *rrlog.Transform3D {
	if o == nil || (o.XYZ == nil && o.RPY == nil) {
		return nil
	}
	t := [3]float64{}
	if o.XYZ != nil {
		t = *o.XYZ
	}
	q := mathutil.QuatIdentity()
	if o.RPY != nil {
		q = mathutil.EulerToQuat(o.RPY[0], o.RPY[1], o.RPY[2])
	}
	r := [4]float64(q)
	return &rrlog.Transform3D{Translation: &t, Rotation: &r}
}

// WithScale folds a mesh scale into t, creating a scale-only transform when
// t is nil. A nil scale leaves t untouched.
func WithScale(t *rrlog.Transform3D, scale *mathutil.Vec3) *rrlog.Transform3D {
	if scale == nil {
		return t
	}
	s := [3]float64(*scale)
	if t == nil {
		return &rrlog.Transform3D{Scale: &s}
	}
	out := *t
	out.Scale = &s
	return &out
}
