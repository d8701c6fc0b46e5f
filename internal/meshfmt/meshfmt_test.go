package meshfmt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"meshfuzz/internal/scene"
	"meshfuzz/internal/testkit"
)

func encodeCube(t *testing.T, version uint32, enc Encoding) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, testkit.CubeScene(true), version, enc); err != nil {
		t.Fatalf("Encode(%d, %v): %v", version, enc, err)
	}
	return buf.Bytes()
}

func forEachFormat(t *testing.T, fn func(t *testing.T, version uint32, enc Encoding)) {
	for _, v := range Versions {
		for _, enc := range Encodings {
			t.Run(fmt.Sprintf("%d_%v", v, enc), func(t *testing.T) {
				fn(t, v, enc)
			})
		}
	}
}

func TestRoundTrip(t *testing.T) {
	forEachFormat(t, func(t *testing.T, version uint32, enc Encoding) {
		data := encodeCube(t, version, enc)
		s, err := Load(data, scene.LoadOptions{})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if err := testkit.CheckScene(s); err != nil {
			t.Fatalf("CheckScene: %v", err)
		}
		if s.Metadata.Version != version || s.Metadata.ASCII != (enc == ASCII) {
			t.Fatalf("metadata = %+v", s.Metadata)
		}

		want := testkit.CubeScene(version >= Version200)
		got := s.FindMesh("Cube")
		if got == nil {
			t.Fatal("mesh Cube missing")
		}
		wm := want.Meshes[0]
		if diff := cmp.Diff(wm.Faces, got.Faces); diff != "" {
			t.Errorf("faces (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(wm.VertexPosition, got.VertexPosition); diff != "" {
			t.Errorf("positions (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(wm.VertexNormal, got.VertexNormal); diff != "" {
			t.Errorf("normals (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(wm.VertexUV, got.VertexUV); diff != "" {
			t.Errorf("uvs (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(wm.FaceMaterial, got.FaceMaterial); diff != "" {
			t.Errorf("face materials (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(want.Nodes[0].Props, s.Nodes[0].Props); diff != "" {
			t.Errorf("node props (-want +got):\n%s", diff)
		}
		if got.Node != s.Nodes[0] || s.Nodes[0].Mesh != got {
			t.Error("mesh and node are not linked")
		}
		if s.Metadata.TempAllocs == 0 || s.Metadata.ResultAllocs == 0 {
			t.Errorf("allocation stats not reported: %+v", s.Metadata)
		}
	})
}

func TestEveryTruncationFails(t *testing.T) {
	forEachFormat(t, func(t *testing.T, version uint32, enc Encoding) {
		data := encodeCube(t, version, enc)
		for i := 0; i < len(data); i++ {
			s, err := Load(data[:i], scene.LoadOptions{})
			if err == nil {
				t.Fatalf("truncated to %d of %d bytes loaded: %v", i, len(data), s != nil)
			}
			if _, ok := scene.AsError(err); !ok {
				t.Fatalf("truncated to %d: unstructured error %v", i, err)
			}
		}
	})
}

func TestTruncateToOneByteFailsAtHeader(t *testing.T) {
	data := encodeCube(t, Version200, Binary)
	_, err := Load(data[:1], scene.LoadOptions{})
	se, ok := scene.AsError(err)
	if !ok {
		t.Fatalf("expected structured error, got %v", err)
	}
	f, _ := se.Innermost()
	if name, _ := SiteFile(f.Site); name != "loader.go" || f.Description != "magic recognized" {
		t.Fatalf("innermost frame = %v (%s)", f, name)
	}
}

func TestAllocLimits(t *testing.T) {
	forEachFormat(t, func(t *testing.T, version uint32, enc Encoding) {
		data := encodeCube(t, version, enc)
		clean, err := Load(data, scene.LoadOptions{})
		if err != nil {
			t.Fatal(err)
		}
		limits := []struct {
			name  string
			count int
			opts  func(n int) scene.LoadOptions
		}{
			{"temp", clean.Metadata.TempAllocs, func(n int) scene.LoadOptions {
				return scene.LoadOptions{TempLimit: scene.LimitAllocs(n)}
			}},
			{"result", clean.Metadata.ResultAllocs, func(n int) scene.LoadOptions {
				return scene.LoadOptions{ResultLimit: scene.LimitAllocs(n)}
			}},
		}
		for _, l := range limits {
			for i := 0; i < l.count; i++ {
				_, err := Load(data, l.opts(i))
				se, ok := scene.AsError(err)
				if !ok {
					t.Fatalf("%s limit %d of %d: expected structured error, got %v", l.name, i, l.count, err)
				}
				if f, _ := se.Innermost(); f.Description != "allocs_left > 0" {
					t.Fatalf("%s limit %d: innermost %v", l.name, i, f)
				}
			}
			if _, err := Load(data, l.opts(l.count)); err != nil {
				t.Fatalf("%s limit %d (exact): %v", l.name, l.count, err)
			}
		}
	})
}

func TestPatchedCreatorByteFails(t *testing.T) {
	data := encodeCube(t, Version200, Binary)
	patched := append([]byte(nil), data...)
	patched[24] = 0xFF
	_, err := Load(patched, scene.LoadOptions{})
	se, ok := scene.AsError(err)
	if !ok {
		t.Fatalf("expected structured error, got %v", err)
	}
	f, _ := se.Innermost()
	if f.Description != "string is valid UTF-8" {
		t.Fatalf("innermost frame = %v", f)
	}
	// The same corruption must map to the same site every time.
	_, err2 := Load(patched, scene.LoadOptions{})
	se2, _ := scene.AsError(err2)
	if diff := cmp.Diff(se.Frames, se2.Frames); diff != "" {
		t.Fatalf("frames differ between runs:\n%s", diff)
	}
	if len(se.Frames) < 3 {
		t.Fatalf("expected callers to add frames, got %d", len(se.Frames))
	}
}

func TestRejects(t *testing.T) {
	ascii := string(encodeCube(t, Version100, ASCII))
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "magic recognized"},
		{"unknown magic", "PLY\n", "magic recognized"},
		{"bad version", strings.Replace(ascii, "MFX-ASCII 100", "MFX-ASCII 300", 1), "version == 100 || version == 200"},
		{"wrong key", strings.Replace(ascii, "Unit:", "Units:", 1), "line key matches"},
		{"trailing data", ascii + "x\n", "no trailing data"},
		{"bad float", strings.Replace(ascii, "Unit: 1", "Unit: one", 1), "float"},
		{"zero unit", strings.Replace(ascii, "Unit: 1", "Unit: 0", 1), "unit > 0"},
		{"parent forward", strings.Replace(ascii, `Node: "Cube", -1`, `Node: "Cube", 0`, 1), "parent < node_index"},
		{"props unsorted", strings.Replace(ascii, `P: "Kind"`, `P: "Zed"`, 1), "props sorted and unique"},
		{"position index", strings.Replace(ascii, "C: 0, 0", "C: 9, 0", 1), "position_index < num_positions"},
		{"huge count", strings.Replace(ascii, "Positions: 8", "Positions: 4000000000", 1), "count fits data"},
		{"extra value", strings.Replace(ascii, "F: 4", "F: 4, 4", 1), "line fully consumed"},
		{"nul string", strings.Replace(ascii, `Creator: "`, `Creator: "\x00`, 1), "string has no NUL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.data), scene.LoadOptions{})
			var se *scene.Error
			if !errors.As(err, &se) {
				t.Fatalf("expected *scene.Error, got %v", err)
			}
			if f, _ := se.Innermost(); f.Description != tt.want {
				t.Fatalf("innermost = %q, want %q\n%s", f.Description, tt.want, se.Stack())
			}
		})
	}
}

func TestLoadOptions(t *testing.T) {
	data := encodeCube(t, Version100, Binary)

	s, err := Load(data, scene.LoadOptions{TargetUnitMeters: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	p := s.Meshes[0].ToRoot().TransformPosition(scene.Vec3{X: 1, Y: 1, Z: 1})
	if p != (scene.Vec3{X: 100, Y: 100, Z: 100}) {
		t.Fatalf("unit scaling: got %v", p)
	}

	s, err = Load(data, scene.LoadOptions{ReverseWinding: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := testkit.CheckScene(s); err != nil {
		t.Fatal(err)
	}
	got := s.Meshes[0].VertexPosition.Indices[:4]
	if diff := cmp.Diff([]int32{0, 2, 3, 1}, got); diff != "" {
		t.Fatalf("reversed first face (-want +got):\n%s", diff)
	}

	s, err = Load(data, scene.LoadOptions{ConvertHandedness: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Meshes[0].VertexPosition.Indices[:4]; !cmp.Equal([]int32{0, 2, 3, 1}, got) {
		t.Fatalf("mirroring must flip winding, got %v", got)
	}

	s, err = Load(data, scene.LoadOptions{ConvertHandedness: true, ReverseWinding: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Meshes[0].VertexPosition.Indices[:4]; !cmp.Equal([]int32{0, 1, 3, 2}, got) {
		t.Fatalf("mirror plus reversal must keep file winding, got %v", got)
	}
	if z := s.Meshes[0].ToRoot().TransformPosition(scene.Vec3{Z: 1}).Z; z != -1 {
		t.Fatalf("handedness: z = %v", z)
	}
}

func TestShortFuncName(t *testing.T) {
	tests := map[string]string{
		"meshfuzz/internal/meshfmt.(*decoder).readNodes": "readNodes",
		"meshfuzz/internal/meshfmt.fail":                 "fail",
		"meshfuzz/internal/meshfmt.Loader.Load":          "Loader.Load",
	}
	for in, want := range tests {
		if got := shortFuncName(in); got != want {
			t.Errorf("shortFuncName(%q) = %q, want %q", in, got, want)
		}
	}
}
