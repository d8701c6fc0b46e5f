package scene

import "math"

// Vec2 is a two component vector.
type Vec2 struct{ X, Y float64 }

// Vec3 is a three component vector.
type Vec3 struct{ X, Y, Z float64 }

// Add returns a+b.
func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }

// Scale returns a*s.
func (a Vec3) Scale(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }

// Dot returns the dot product.
func (a Vec3) Dot(b Vec3) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

// Len returns the Euclidean length.
func (a Vec3) Len() float64 { return math.Sqrt(a.Dot(a)) }

// Normalize returns a scaled to unit length. The zero vector is returned as is.
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return a
	}
	return a.Scale(1 / l)
}

// Matrix is an affine 3x4 transform stored as columns: three basis vectors
// followed by the translation.
type Matrix struct {
	Cols [4]Vec3
}

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{Cols: [4]Vec3{{X: 1}, {Y: 1}, {Z: 1}, {}}}
}

// Transform is a decomposed local transform. Rotation is Euler XYZ in degrees.
type Transform struct {
	Translation Vec3
	Rotation    Vec3
	Scale       Vec3
}

// IdentityTransform has unit scale and no rotation or translation.
func IdentityTransform() Transform {
	return Transform{Scale: Vec3{1, 1, 1}}
}

// Matrix composes translation * rotation * scale.
func (t Transform) Matrix() Matrix {
	rx, ry, rz := deg2rad(t.Rotation.X), deg2rad(t.Rotation.Y), deg2rad(t.Rotation.Z)
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)

	// R = Rz * Ry * Rx
	c0 := Vec3{cy * cz, cy * sz, -sy}
	c1 := Vec3{sx*sy*cz - cx*sz, sx*sy*sz + cx*cz, sx * cy}
	c2 := Vec3{cx*sy*cz + sx*sz, cx*sy*sz - sx*cz, cx * cy}

	return Matrix{Cols: [4]Vec3{
		c0.Scale(t.Scale.X),
		c1.Scale(t.Scale.Y),
		c2.Scale(t.Scale.Z),
		t.Translation,
	}}
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }

// Mul returns m*n (n applied first).
func (m Matrix) Mul(n Matrix) Matrix {
	var r Matrix
	for i := 0; i < 3; i++ {
		r.Cols[i] = m.TransformDirection(n.Cols[i])
	}
	r.Cols[3] = m.TransformPosition(n.Cols[3])
	return r
}

// TransformPosition applies the full affine transform to p.
func (m Matrix) TransformPosition(p Vec3) Vec3 {
	return m.TransformDirection(p).Add(m.Cols[3])
}

// TransformDirection applies only the linear part to v.
func (m Matrix) TransformDirection(v Vec3) Vec3 {
	return m.Cols[0].Scale(v.X).Add(m.Cols[1].Scale(v.Y)).Add(m.Cols[2].Scale(v.Z))
}

// TransformNormal applies the linear part to n and renormalizes. Callers
// that need exact results under non-uniform scale should pass the
// inverse-transpose instead of the node matrix.
func (m Matrix) TransformNormal(n Vec3) Vec3 {
	return m.TransformDirection(n).Normalize()
}
