package testkit

import (
	"strings"
	"testing"

	"meshfuzz/internal/scene"
)

func TestCheckSceneAcceptsCube(t *testing.T) {
	for _, withUV := range []bool{false, true} {
		if err := CheckScene(CubeScene(withUV)); err != nil {
			t.Fatalf("withUV=%v: %v", withUV, err)
		}
	}
}

func TestCheckSceneRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *scene.Scene)
		want   string
	}{
		{"nul in creator", func(s *scene.Scene) { s.Metadata.Creator = "a\x00b" }, "NUL"},
		{"invalid utf8 name", func(s *scene.Scene) { s.Nodes[0].Name = "\xff"; s.Meshes[0].Name = "\xff" }, "UTF-8"},
		{"props unsorted", func(s *scene.Scene) {
			p := s.Nodes[0].Props.Props
			p[0], p[1] = p[1], p[0]
		}, "out of order"},
		{"props duplicate", func(s *scene.Scene) { s.Nodes[0].Props.Props[1].Name = "Kind" }, "out of order"},
		{"orphan child", func(s *scene.Scene) {
			child := &scene.Node{Name: "Child", Parent: s.Nodes[0]}
			s.Nodes = append(s.Nodes, child)
		}, "missing from children"},
		{"child without back link", func(s *scene.Scene) {
			s.Nodes[0].Children = []*scene.Node{{Name: "Stray"}}
		}, "does not point back"},
		{"face gap", func(s *scene.Scene) { s.Meshes[0].Faces[1].IndexBegin = 5 }, "begins at"},
		{"empty face", func(s *scene.Scene) {
			m := s.Meshes[0]
			m.Faces[5].NumIndices = 0
		}, "is empty"},
		{"face past end", func(s *scene.Scene) { s.Meshes[0].Faces[5].NumIndices = 5 }, "past"},
		{"position index range", func(s *scene.Scene) { s.Meshes[0].VertexPosition.Indices[3] = 8 }, "out of range"},
		{"normal index below -1", func(s *scene.Scene) { s.Meshes[0].VertexNormal.Indices[0] = -2 }, "out of range"},
		{"vertex count", func(s *scene.Scene) { s.Meshes[0].NumVertices = 7 }, "num vertices"},
		{"face material", func(s *scene.Scene) {
			m := s.Meshes[0]
			mat := &scene.Material{Name: "Default"}
			m.Materials = []*scene.Material{mat}
			s.Materials = []*scene.Material{mat}
			m.FaceMaterial = make([]int32, len(m.Faces))
			m.FaceMaterial[2] = 1
		}, "face 2 material 1 out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CubeScene(false)
			tt.mutate(s)
			err := CheckScene(s)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestCubeOBJShape(t *testing.T) {
	text := CubeOBJ(true)
	counts := map[string]int{}
	for _, line := range strings.Split(text, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			counts[f[0]]++
		}
	}
	if counts["v"] != 8 || counts["vn"] != 6 || counts["vt"] != 4 || counts["f"] != 6 {
		t.Fatalf("unexpected line counts: %v", counts)
	}
	if strings.Contains(CubeOBJ(false), "vt ") {
		t.Fatal("uv-less cube should not emit vt lines")
	}
}
