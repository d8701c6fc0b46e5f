package oracle

import (
	"bytes"
	"errors"
	"testing"

	"meshfuzz/internal/scene"
	"meshfuzz/internal/testkit"
)

func TestParseCube(t *testing.T) {
	for _, withUV := range []bool{false, true} {
		meshes, err := Parse([]byte(testkit.CubeOBJ(withUV)), Options{})
		if err != nil {
			t.Fatalf("withUV=%v: %v", withUV, err)
		}
		if len(meshes) != 1 {
			t.Fatalf("got %d meshes", len(meshes))
		}
		m := meshes[0]
		if m.Name != "Cube" || len(m.Faces) != 6 || m.NumIndices != 24 {
			t.Fatalf("mesh = %q faces=%d indices=%d", m.Name, len(m.Faces), m.NumIndices)
		}
		if len(m.Position.Values) != 8 || len(m.Normal.Values) != 6 {
			t.Fatalf("positions=%d normals=%d", len(m.Position.Values), len(m.Normal.Values))
		}
		if m.UV.Exists() != withUV {
			t.Fatalf("uv exists = %v", m.UV.Exists())
		}
		if len(m.Position.Indices) != m.NumIndices {
			t.Fatalf("index count mismatch: %d vs %d", len(m.Position.Indices), m.NumIndices)
		}
		for i, f := range m.Faces {
			if f.IndexBegin != uint32(i*4) || f.NumIndices != 4 {
				t.Fatalf("face %d = %+v", i, f)
			}
		}
		if got := m.Position.Get(2); got != (scene.Vec3{X: 1, Y: 1, Z: 1}) {
			t.Fatalf("corner 2 position = %v", got)
		}
	}
}

func TestParseGroups(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 1\n" +
		"g default\n" +
		"g Tri_Mesh\nf 1//1 2//1 3//1\n" +
		"g Cafe\u0301\nf 3//1 2//1 1//1\nf 1//1 2//1 3//1\n"
	meshes, err := Parse([]byte(src), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(meshes) != 2 {
		t.Fatalf("got %d meshes", len(meshes))
	}
	if meshes[0].Name != "Tri" {
		t.Errorf("separator not applied: %q", meshes[0].Name)
	}
	if meshes[1].Name != "Caf\u00e9" {
		t.Errorf("name not NFC: %q", meshes[1].Name)
	}
	// index runs restart for every group
	if meshes[1].Faces[1].IndexBegin != 3 || meshes[1].NumIndices != 6 {
		t.Errorf("second group faces = %+v", meshes[1].Faces)
	}

	whole, err := Parse([]byte(src), Options{NameSeparator: -1})
	if err != nil {
		t.Fatal(err)
	}
	if whole[0].Name != "Tri_Mesh" {
		t.Errorf("NameSeparator -1 truncated: %q", whole[0].Name)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"face before group", "v 0 0 0\nvn 0 0 1\nf 1//1 1//1 1//1\n", 3},
		{"zero index", "v 0 0 0\nvn 0 0 1\ng A\nf 0//1 1//1 1//1\n", 4},
		{"index beyond", "v 0 0 0\nvn 0 0 1\ng A\nf 1//1 2//1 1//1\n", 4},
		{"negative index", "v 0 0 0\nvn 0 0 1\ng A\nf -1//1 1//1 1//1\n", 4},
		{"bare positions", "v 0 0 0\ng A\nf 1 1 1\n", 3},
		{"p/u form", "v 0 0 0\nvt 0 0\ng A\nf 1/1 1/1 1/1\n", 4},
		{"short vertex", "v 0 0\n", 1},
		{"bad number", "vn 0 x 1\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), Options{})
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) || pe.Line != tt.line {
				t.Fatalf("error %v, want line %d", err, tt.line)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	for _, withUV := range []bool{false, true} {
		orig, err := Parse([]byte(testkit.CubeOBJ(withUV)), Options{})
		if err != nil {
			t.Fatal(err)
		}
		s := BuildScene(orig, "test")
		if err := testkit.CheckScene(s); err != nil {
			t.Fatalf("BuildScene produced an invalid scene: %v", err)
		}
		// move the node so Write has to apply the transform
		s.Nodes[0].ToRoot = scene.Transform{Translation: scene.Vec3{X: 10}, Scale: scene.Vec3{X: 1, Y: 1, Z: 1}}.Matrix()

		var buf bytes.Buffer
		if err := Write(&buf, s); err != nil {
			t.Fatal(err)
		}
		back, err := Parse(buf.Bytes(), Options{})
		if err != nil {
			t.Fatalf("re-parse: %v\n%s", err, buf.String())
		}
		if len(back) != 1 || back[0].NumIndices != orig[0].NumIndices {
			t.Fatalf("round trip lost geometry")
		}
		for ix := 0; ix < orig[0].NumIndices; ix++ {
			want := orig[0].Position.Get(ix).Add(scene.Vec3{X: 10})
			if got := back[0].Position.Get(ix); got != want {
				t.Fatalf("corner %d position %v, want %v", ix, got, want)
			}
			if got, want := back[0].Normal.Get(ix), orig[0].Normal.Get(ix); got != want {
				t.Fatalf("corner %d normal %v, want %v", ix, got, want)
			}
			if withUV {
				if got, want := back[0].UV.Get(ix), orig[0].UV.Get(ix); got != want {
					t.Fatalf("corner %d uv %v, want %v", ix, got, want)
				}
			}
		}
	}
}
