package mathutil

import "math"

// AxisAngle returns the rotation of angle radians about axis.
func AxisAngle(axis Vec3, angle float64) Mat3 {
	a := axis.Normalize()
	s := math.Sin(angle * 0.5)
	return QuatToMat3(Quat{a[0] * s, a[1] * s, a[2] * s, math.Cos(angle * 0.5)})
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(d float64) float64 {
	return d * math.Pi / 180
}
