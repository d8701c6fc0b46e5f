package oracle

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"meshfuzz/internal/scene"
)

// Write dumps every mesh of s as a group, with positions and normals moved
// to root space. Missing attribute references resolve to a zero entry so
// the output always parses.
func Write(w io.Writer, s *scene.Scene) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n", s.Metadata.Creator)

	var numPos, numNrm, numUV int
	for _, m := range s.Meshes {
		toRoot := m.ToRoot()
		hasUV := m.VertexUV.Exists()

		posBase, nrmBase, uvBase := numPos, numNrm, numUV
		for _, v := range m.VertexPosition.Values {
			writeVec3(bw, "v", toRoot.TransformPosition(v))
		}
		numPos += len(m.VertexPosition.Values)
		for _, v := range m.VertexNormal.Values {
			writeVec3(bw, "vn", toRoot.TransformNormal(v))
		}
		numNrm += len(m.VertexNormal.Values)
		// zero entries referenced by -1 indices
		zeroNrm := numNrm + 1
		writeVec3(bw, "vn", scene.Vec3{})
		numNrm++
		zeroUV := 0
		if hasUV {
			for _, v := range m.VertexUV.Values {
				fmt.Fprintf(bw, "vt %s %s\n", fmtFloat(v.X), fmtFloat(v.Y))
			}
			numUV += len(m.VertexUV.Values)
			zeroUV = numUV + 1
			bw.WriteString("vt 0 0\n")
			numUV++
		}

		fmt.Fprintf(bw, "g %s\n", m.Name)
		for _, f := range m.Faces {
			bw.WriteString("f")
			for ix := f.IndexBegin; ix < f.IndexBegin+f.NumIndices; ix++ {
				p := posBase + int(m.VertexPosition.Indices[ix]) + 1
				n := zeroNrm
				if m.VertexNormal.Exists() {
					if ni := m.VertexNormal.Indices[ix]; ni >= 0 {
						n = nrmBase + int(ni) + 1
					}
				}
				if hasUV {
					u := zeroUV
					if ui := m.VertexUV.Indices[ix]; ui >= 0 {
						u = uvBase + int(ui) + 1
					}
					fmt.Fprintf(bw, " %d/%d/%d", p, u, n)
				} else {
					fmt.Fprintf(bw, " %d//%d", p, n)
				}
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writeVec3(w *bufio.Writer, key string, v scene.Vec3) {
	fmt.Fprintf(w, "%s %s %s %s\n", key, fmtFloat(v.X), fmtFloat(v.Y), fmtFloat(v.Z))
}

// BuildScene turns oracle meshes into a scene with one identity-transform
// node per mesh. Each mesh keeps only the attribute values it references,
// in first-use order. Texture coordinates appear only when the file had
// any; with them every mesh gets one shared default material.
func BuildScene(meshes []Mesh, creator string) *scene.Scene {
	s := &scene.Scene{Metadata: scene.Metadata{Creator: creator, UnitMeters: 1}}
	var mat *scene.Material
	for i, om := range meshes {
		node := &scene.Node{
			ID:     i,
			Name:   om.Name,
			Local:  scene.IdentityTransform(),
			ToRoot: scene.Identity(),
		}
		m := &scene.Mesh{
			Name:       om.Name,
			Node:       node,
			Faces:      append([]scene.Face(nil), om.Faces...),
			NumIndices: om.NumIndices,
		}
		node.Mesh = m
		m.VertexPosition = compactVec3(om.Position)
		m.VertexNormal = compactVec3(om.Normal)
		if om.UV.Exists() {
			m.VertexUV = compactVec2(om.UV)
			if mat == nil {
				mat = &scene.Material{Name: "Default"}
				s.Materials = append(s.Materials, mat)
			}
			m.Materials = []*scene.Material{mat}
			m.FaceMaterial = make([]int32, len(m.Faces))
		}
		m.NumVertices = len(m.VertexPosition.Values)
		s.Nodes = append(s.Nodes, node)
		s.Meshes = append(s.Meshes, m)
	}
	return s
}

func compactVec3(src scene.VertexVec3) scene.VertexVec3 {
	var out scene.VertexVec3
	remap := map[int32]int32{}
	out.Values = []scene.Vec3{}
	out.Indices = make([]int32, len(src.Indices))
	for i, ix := range src.Indices {
		if ix < 0 {
			out.Indices[i] = -1
			continue
		}
		n, ok := remap[ix]
		if !ok {
			n = int32(len(out.Values)) //nolint:gosec // bounded by len(src.Indices)
			remap[ix] = n
			out.Values = append(out.Values, src.Values[ix])
		}
		out.Indices[i] = n
	}
	return out
}

func compactVec2(src scene.VertexVec2) scene.VertexVec2 {
	var out scene.VertexVec2
	remap := map[int32]int32{}
	out.Values = []scene.Vec2{}
	out.Indices = make([]int32, len(src.Indices))
	for i, ix := range src.Indices {
		if ix < 0 {
			out.Indices[i] = -1
			continue
		}
		n, ok := remap[ix]
		if !ok {
			n = int32(len(out.Values)) //nolint:gosec // bounded by len(src.Indices)
			remap[ix] = n
			out.Values = append(out.Values, src.Values[ix])
		}
		out.Indices[i] = n
	}
	return out
}
