package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tol = 1e-9

func assertMat3(t *testing.T, want, got Mat3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol, "element %d", i)
	}
}

func TestEulerToQuatMatchesFixedAxisOrder(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},
		{math.Pi / 2, 0, 0},
		{0.3, -0.7, 1.2},
		{-1.1, 0.4, -2.5},
	}
	for _, rpy := range cases {
		want := Mat3Mul(Mat3Mul(
			AxisAngle(Vec3{0, 0, 1}, rpy[2]),
			AxisAngle(Vec3{0, 1, 0}, rpy[1])),
			AxisAngle(Vec3{1, 0, 0}, rpy[0]))
		got := QuatToMat3(EulerToQuat(rpy[0], rpy[1], rpy[2]))
		assertMat3(t, want, got)
	}
}

func TestQuatNormalize(t *testing.T) {
	assert.Equal(t, QuatIdentity(), Quat{}.Normalize())
	q := Quat{0, 0, 2, 0}.Normalize()
	assert.InDelta(t, 1.0, q[2], tol)
}

func TestFromTRS(t *testing.T) {
	m := FromTRS(Vec3{1, 2, 3}, EulerToQuat(0, 0, math.Pi/2), Vec3{2, 2, 2})
	p := m.MulPoint(Vec3{1, 0, 0})
	assert.InDelta(t, 1.0, p[0], tol)
	assert.InDelta(t, 4.0, p[1], tol)
	assert.InDelta(t, 3.0, p[2], tol)
}

func TestFromColumnMajor(t *testing.T) {
	// translation lives in elements 12..14 of a column-major array
	c := [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 5, 6, 7, 1}
	m := FromColumnMajor(c)
	assert.Equal(t, Vec3{5, 6, 7}, m.MulPoint(Vec3{}))
	assertMat3(t, Mat3Identity(), m.Linear())
}

func TestNormalMatrixUndoesNonUniformScale(t *testing.T) {
	n := Mat3Diag(2, 1, 1).NormalMatrix()
	assertMat3(t, Mat3Diag(0.5, 1, 1), n)
}

func TestAxisAngle(t *testing.T) {
	quarterZ := Mat3{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	}
	assertMat3(t, quarterZ, AxisAngle(Vec3{0, 0, 3}, Deg2Rad(90)))

	// X then Y applied to the x unit vector lands on -z.
	r := Mat3Mul(AxisAngle(Vec3{0, 1, 0}, math.Pi/2), AxisAngle(Vec3{1, 0, 0}, math.Pi/2))
	v := r.MulVec3(Vec3{1, 0, 0})
	assert.InDelta(t, 0, v[0], tol)
	assert.InDelta(t, 0, v[1], tol)
	assert.InDelta(t, -1, v[2], tol)
}
