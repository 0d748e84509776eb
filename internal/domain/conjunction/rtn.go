package conjunction

import "github.com/okian/conjunct/internal/domain/orbit"

// Basis is the radial / transverse / normal frame of a reference orbit.
type Basis struct {
	R orbit.Vec3
	T orbit.Vec3
	N orbit.Vec3
}

// RTNBasis builds an orthonormal RTN basis from the reference position and
// velocity. Degenerate inputs fall back to fixed axes.
func RTNBasis(r, v orbit.Vec3) Basis {
	rh := r.Unit(orbit.Vec3{1, 0, 0})
	nh := r.Cross(v).Unit(orbit.Vec3{0, 0, 1})
	th := nh.Cross(rh).Unit(orbit.Vec3{0, 1, 0})
	nh = rh.Cross(th).Unit(nh)
	return Basis{R: rh, T: th, N: nh}
}

// Project expresses vec in the basis as (R, T, N) components.
func (b Basis) Project(vec orbit.Vec3) orbit.Vec3 {
	return orbit.Vec3{vec.Dot(b.R), vec.Dot(b.T), vec.Dot(b.N)}
}

// Matrix returns the rotation whose rows are the basis vectors, so that
// Matrix().Apply(v) == Project(v).
func (b Basis) Matrix() orbit.Matrix3 {
	return orbit.Matrix3{
		{b.R[0], b.R[1], b.R[2]},
		{b.T[0], b.T[1], b.T[2]},
		{b.N[0], b.N[1], b.N[2]},
	}
}

// RotateCovarianceToECI maps an RTN covariance into the inertial frame of
// the basis: C_eci = Bᵀ C_rtn B.
func (b Basis) RotateCovarianceToECI(rtn orbit.Matrix3) orbit.Matrix3 {
	m := b.Matrix()
	return m.Transpose().Mul(rtn).Mul(m)
}
