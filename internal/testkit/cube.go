package testkit

import (
	"fmt"
	"strings"

	"meshfuzz/internal/scene"
)

// Unit cube tables shared by the scene builder and the .obj text so both
// always describe the same geometry. Face corners are 1-based
// position/uv/normal triples.
var (
	cubePositions = []scene.Vec3{
		{X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: -1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1},
		{X: -1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1},
	}
	cubeNormals = []scene.Vec3{
		{Z: 1}, {Y: 1}, {Z: -1}, {Y: -1}, {X: 1}, {X: -1},
	}
	cubeUVs = []scene.Vec2{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1},
	}
	cubeFaces = [6][4][3]int32{
		{{1, 1, 1}, {2, 2, 1}, {4, 4, 1}, {3, 3, 1}},
		{{3, 1, 2}, {4, 2, 2}, {6, 4, 2}, {5, 3, 2}},
		{{5, 1, 3}, {6, 2, 3}, {8, 4, 3}, {7, 3, 3}},
		{{7, 1, 4}, {8, 2, 4}, {2, 4, 4}, {1, 3, 4}},
		{{2, 1, 5}, {8, 2, 5}, {6, 4, 5}, {4, 3, 5}},
		{{7, 1, 6}, {1, 2, 6}, {3, 4, 6}, {5, 3, 6}},
	}
)

// CubeOBJ returns the unit cube in the oracle text format as group "Cube".
// Without UVs faces use the p//n form.
func CubeOBJ(withUV bool) string {
	var b strings.Builder
	b.WriteString("# unit cube\no Cube\ng Cube\n")
	for _, p := range cubePositions {
		fmt.Fprintf(&b, "v %g %g %g\n", p.X, p.Y, p.Z)
	}
	if withUV {
		for _, t := range cubeUVs {
			fmt.Fprintf(&b, "vt %g %g\n", t.X, t.Y)
		}
	}
	for _, n := range cubeNormals {
		fmt.Fprintf(&b, "vn %g %g %g\n", n.X, n.Y, n.Z)
	}
	b.WriteString("s off\n")
	for _, f := range cubeFaces {
		b.WriteString("f")
		for _, c := range f {
			if withUV {
				fmt.Fprintf(&b, " %d/%d/%d", c[0], c[1], c[2])
			} else {
				fmt.Fprintf(&b, " %d//%d", c[0], c[2])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CubeScene builds the scene a correct loader produces for the unit cube:
// one node and one mesh called "Cube". With UVs the mesh also carries a
// single material assigned to every face.
func CubeScene(withUV bool) *scene.Scene {
	node := &scene.Node{
		ID:     0,
		Name:   "Cube",
		Local:  scene.IdentityTransform(),
		ToRoot: scene.Identity(),
		Props: scene.Props{Props: []scene.Prop{
			{Name: "Kind", Value: "mesh"},
			{Name: "Visible", Value: "true"},
		}},
	}
	mesh := &scene.Mesh{
		Name:        "Cube",
		Node:        node,
		NumIndices:  24,
		NumVertices: len(cubePositions),
	}
	node.Mesh = mesh

	mesh.VertexPosition.Values = append([]scene.Vec3(nil), cubePositions...)
	mesh.VertexNormal.Values = append([]scene.Vec3(nil), cubeNormals...)
	for i, f := range cubeFaces {
		mesh.Faces = append(mesh.Faces, scene.Face{IndexBegin: uint32(i * 4), NumIndices: 4})
		for _, c := range f {
			mesh.VertexPosition.Indices = append(mesh.VertexPosition.Indices, c[0]-1)
			mesh.VertexNormal.Indices = append(mesh.VertexNormal.Indices, c[2]-1)
			if withUV {
				mesh.VertexUV.Indices = append(mesh.VertexUV.Indices, c[1]-1)
			}
		}
	}

	s := &scene.Scene{
		Metadata: scene.Metadata{Version: 100, Creator: "meshfuzz testkit"},
		Nodes:    []*scene.Node{node},
		Meshes:   []*scene.Mesh{mesh},
	}
	if withUV {
		mesh.VertexUV.Values = append([]scene.Vec2(nil), cubeUVs...)
		mat := &scene.Material{Name: "Default", Props: scene.Props{Props: []scene.Prop{
			{Name: "DiffuseColor", Value: "0.8 0.8 0.8"},
		}}}
		mesh.Materials = []*scene.Material{mat}
		mesh.FaceMaterial = make([]int32, len(mesh.Faces))
		s.Materials = []*scene.Material{mat}
		s.Metadata.Version = 200
	}
	return s
}
