package testkit

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"fortio.org/safecast"

	"meshfuzz/internal/scene"
)

// CheckScene runs the structural invariants on a loaded scene:
// 1) every string is valid UTF-8 without NUL bytes
// 2) node parent/child links agree in both directions
// 3) property tables are sorted by name, unique and searchable
// 4) every mesh is found by name, its faces tile the index range and
//    vertex attribute indices stay in range
// 5) per-face material indices refer to the mesh's materials
func CheckScene(s *scene.Scene) error {
	if s == nil {
		return fmt.Errorf("nil scene")
	}
	if err := checkString("metadata.creator", s.Metadata.Creator); err != nil {
		return err
	}
	for i, n := range s.Nodes {
		if err := checkNode(n); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
	}
	for i, m := range s.Meshes {
		if err := checkMesh(s, m); err != nil {
			return fmt.Errorf("mesh %d: %w", i, err)
		}
	}
	for i, mat := range s.Materials {
		if mat == nil {
			return fmt.Errorf("material %d: nil", i)
		}
		if err := checkString("material.name", mat.Name); err != nil {
			return fmt.Errorf("material %d: %w", i, err)
		}
		if err := checkProps(&mat.Props); err != nil {
			return fmt.Errorf("material %q: %w", mat.Name, err)
		}
	}
	return nil
}

func checkString(what, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s is not valid UTF-8: %q", what, s)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("%s contains NUL: %q", what, s)
	}
	return nil
}

func checkProps(p *scene.Props) error {
	for i := range p.Props {
		prop := &p.Props[i]
		if err := checkString("prop.name", prop.Name); err != nil {
			return err
		}
		if err := checkString("prop.value", prop.Value); err != nil {
			return err
		}
		// sorted and deduplicated
		if i > 0 && prop.Name <= p.Props[i-1].Name {
			return fmt.Errorf("props out of order: %q after %q", prop.Name, p.Props[i-1].Name)
		}
	}
	// Find relies on the order checked above
	for i := range p.Props {
		prop := &p.Props[i]
		if ref := p.Find(prop.Name); ref != prop {
			return fmt.Errorf("prop %q not found by name", prop.Name)
		}
	}
	return nil
}

func checkNode(n *scene.Node) error {
	if n == nil {
		return fmt.Errorf("nil node")
	}
	if err := checkString("node.name", n.Name); err != nil {
		return err
	}
	if err := checkProps(&n.Props); err != nil {
		return fmt.Errorf("node %q: %w", n.Name, err)
	}
	if p := n.Parent; p != nil {
		found := false
		for _, c := range p.Children {
			if c == n {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("node %q missing from children of %q", n.Name, p.Name)
		}
	}
	for _, c := range n.Children {
		if c == nil || c.Parent != n {
			return fmt.Errorf("child of %q does not point back to it", n.Name)
		}
	}
	return nil
}

func checkMesh(s *scene.Scene, m *scene.Mesh) error {
	if m == nil {
		return fmt.Errorf("nil mesh")
	}
	if err := checkString("mesh.name", m.Name); err != nil {
		return err
	}
	if found := s.FindMesh(m.Name); found == nil || found.Name != m.Name {
		return fmt.Errorf("mesh %q not found by name", m.Name)
	}
	if m.Node != nil && m.Node.Mesh != m {
		return fmt.Errorf("mesh %q: node %q points elsewhere", m.Name, m.Node.Name)
	}

	numIndices, err := safecast.Conv[uint32](m.NumIndices)
	if err != nil {
		return fmt.Errorf("mesh %q: index count: %w", m.Name, err)
	}
	if err := checkVertexIndices("position", m.VertexPosition.Exists(), m.VertexPosition.Indices, len(m.VertexPosition.Values), m.NumIndices); err != nil {
		return fmt.Errorf("mesh %q: %w", m.Name, err)
	}
	if err := checkVertexIndices("normal", m.VertexNormal.Exists(), m.VertexNormal.Indices, len(m.VertexNormal.Values), m.NumIndices); err != nil {
		return fmt.Errorf("mesh %q: %w", m.Name, err)
	}
	if err := checkVertexIndices("uv", m.VertexUV.Exists(), m.VertexUV.Indices, len(m.VertexUV.Values), m.NumIndices); err != nil {
		return fmt.Errorf("mesh %q: %w", m.Name, err)
	}
	if m.NumVertices != len(m.VertexPosition.Values) {
		return fmt.Errorf("mesh %q: num vertices %d != %d positions", m.Name, m.NumVertices, len(m.VertexPosition.Values))
	}

	var prevEnd uint32
	for i, f := range m.Faces {
		if f.IndexBegin != prevEnd {
			return fmt.Errorf("mesh %q: face %d begins at %d, want %d", m.Name, i, f.IndexBegin, prevEnd)
		}
		if f.NumIndices == 0 {
			return fmt.Errorf("mesh %q: face %d is empty", m.Name, i)
		}
		prevEnd = f.IndexBegin + f.NumIndices
		if prevEnd > numIndices {
			return fmt.Errorf("mesh %q: face %d ends at %d past %d indices", m.Name, i, prevEnd, numIndices)
		}
		for j := f.IndexBegin; j < prevEnd; j++ {
			if got := m.FindFace(j); got != i {
				return fmt.Errorf("mesh %q: corner %d resolves to face %d, want %d", m.Name, j, got, i)
			}
		}
	}

	if m.FaceMaterial != nil {
		if len(m.FaceMaterial) != len(m.Faces) {
			return fmt.Errorf("mesh %q: %d face materials for %d faces", m.Name, len(m.FaceMaterial), len(m.Faces))
		}
		for i, mat := range m.FaceMaterial {
			if mat < 0 || int(mat) >= len(m.Materials) {
				return fmt.Errorf("mesh %q: face %d material %d out of range", m.Name, i, mat)
			}
		}
	}
	return nil
}

func checkVertexIndices(attr string, exists bool, indices []int32, numValues, numIndices int) error {
	if !exists {
		if len(indices) != 0 {
			return fmt.Errorf("%s: indices without values", attr)
		}
		return nil
	}
	if len(indices) != numIndices {
		return fmt.Errorf("%s: %d indices, want %d", attr, len(indices), numIndices)
	}
	for i, ix := range indices {
		if ix < -1 || int(ix) >= numValues {
			return fmt.Errorf("%s: index %d at corner %d out of range [-1, %d)", attr, ix, i, numValues)
		}
	}
	return nil
}
