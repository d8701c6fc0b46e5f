// Package meshdiff compares a loaded scene against oracle geometry.
package meshdiff

import (
	"fmt"
	"math"

	"meshfuzz/internal/oracle"
	"meshfuzz/internal/scene"
)

// DefaultEpsilon is the largest accepted absolute difference per scalar.
const DefaultEpsilon = 0.001

// Accumulator collects error magnitudes over every compared scalar.
type Accumulator struct {
	Num int
	Sum float64
	Max float64
}

// Add records one compared difference.
func (a *Accumulator) Add(err float64) {
	a.Num++
	a.Sum += err
	if err > a.Max {
		a.Max = err
	}
}

// Avg returns the mean error, or zero when nothing was compared.
func (a *Accumulator) Avg() float64 {
	if a.Num == 0 {
		return 0
	}
	return a.Sum / float64(a.Num)
}

// Merge folds b into a.
func (a *Accumulator) Merge(b Accumulator) {
	a.Num += b.Num
	a.Sum += b.Sum
	a.Max = math.Max(a.Max, b.Max)
}

func (a Accumulator) String() string {
	return fmt.Sprintf("%d values, avg %.3g, max %.3g", a.Num, a.Avg(), a.Max)
}

// Options configures Diff.
type Options struct {
	// Epsilon overrides DefaultEpsilon when positive.
	Epsilon float64
}

func (o Options) epsilon() float64 {
	if o.Epsilon > 0 {
		return o.Epsilon
	}
	return DefaultEpsilon
}

// MismatchError describes the first difference found.
type MismatchError struct {
	Mesh      string
	Face      int // -1 for mesh-level mismatches
	Corner    int
	Attribute string // "position", "normal", "uv", or a count name
	Component string
	Want, Got float64
}

func (e *MismatchError) Error() string {
	if e.Face < 0 {
		return fmt.Sprintf("mesh %q: %s: oracle %v, scene %v", e.Mesh, e.Attribute, e.Want, e.Got)
	}
	return fmt.Sprintf("mesh %q face %d corner %d: %s.%s: oracle %g, scene %g (|d|=%g)",
		e.Mesh, e.Face, e.Corner, e.Attribute, e.Component, e.Want, e.Got, math.Abs(e.Want-e.Got))
}

// Diff compares every oracle mesh against the same-named mesh of s and
// accumulates per-scalar errors into acc. The first mismatch is returned.
func Diff(s *scene.Scene, meshes []oracle.Mesh, acc *Accumulator, opts Options) error {
	eps := opts.epsilon()
	for i := range meshes {
		if err := diffMesh(s, &meshes[i], acc, eps); err != nil {
			return err
		}
	}
	return nil
}

func diffMesh(s *scene.Scene, om *oracle.Mesh, acc *Accumulator, eps float64) error {
	m := s.FindMesh(om.Name)
	if m == nil {
		return &MismatchError{Mesh: om.Name, Face: -1, Attribute: "mesh missing from scene"}
	}
	if len(om.Faces) != len(m.Faces) {
		return &MismatchError{Mesh: om.Name, Face: -1, Attribute: "face count",
			Want: float64(len(om.Faces)), Got: float64(len(m.Faces))}
	}
	if om.NumIndices != m.NumIndices {
		return &MismatchError{Mesh: om.Name, Face: -1, Attribute: "index count",
			Want: float64(om.NumIndices), Got: float64(m.NumIndices)}
	}
	hasUV := m.VertexUV.Exists()
	if hasUV && !om.UV.Exists() {
		return &MismatchError{Mesh: om.Name, Face: -1, Attribute: "scene has uvs, oracle does not"}
	}

	toRoot := m.ToRoot()
	for fi, of := range om.Faces {
		f := m.Faces[fi]
		if of.IndexBegin != f.IndexBegin {
			return &MismatchError{Mesh: om.Name, Face: fi, Attribute: "index begin",
				Want: float64(of.IndexBegin), Got: float64(f.IndexBegin)}
		}
		if of.NumIndices != f.NumIndices {
			return &MismatchError{Mesh: om.Name, Face: fi, Attribute: "corner count",
				Want: float64(of.NumIndices), Got: float64(f.NumIndices)}
		}
		for c := 0; c < int(f.NumIndices); c++ {
			ix := int(f.IndexBegin) + c
			c3 := compare3{mesh: om.Name, face: fi, corner: c, eps: eps, acc: acc}

			fp := toRoot.TransformPosition(m.VertexPosition.Get(ix))
			if err := c3.vec3("position", om.Position.Get(ix), fp); err != nil {
				return err
			}
			fn := toRoot.TransformNormal(m.VertexNormal.Get(ix))
			if err := c3.vec3("normal", om.Normal.Get(ix), fn); err != nil {
				return err
			}
			if hasUV {
				ou, fu := om.UV.Get(ix), m.VertexUV.Get(ix)
				if err := c3.scalar("uv", "x", ou.X, fu.X); err != nil {
					return err
				}
				if err := c3.scalar("uv", "y", ou.Y, fu.Y); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type compare3 struct {
	mesh   string
	face   int
	corner int
	eps    float64
	acc    *Accumulator
}

func (c compare3) scalar(attr, comp string, want, got float64) error {
	d := math.Abs(want - got)
	// NaN never passes
	if !(d < c.eps) {
		return &MismatchError{Mesh: c.mesh, Face: c.face, Corner: c.corner,
			Attribute: attr, Component: comp, Want: want, Got: got}
	}
	c.acc.Add(d)
	return nil
}

func (c compare3) vec3(attr string, want, got scene.Vec3) error {
	if err := c.scalar(attr, "x", want.X, got.X); err != nil {
		return err
	}
	if err := c.scalar(attr, "y", want.Y, got.Y); err != nil {
		return err
	}
	return c.scalar(attr, "z", want.Z, got.Z)
}
