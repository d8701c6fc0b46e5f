package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"meshfuzz/internal/meshfmt"
	"meshfuzz/internal/mutate"
	"meshfuzz/internal/oracle"
	"meshfuzz/internal/regress"
	"meshfuzz/internal/scene"
	"meshfuzz/internal/testkit"
)

// writeCube lays out a data root with the cube oracle and its fixtures.
func writeCube(t *testing.T, root string, versions ...uint32) {
	t.Helper()
	obj := testkit.CubeOBJ(true)
	if err := os.WriteFile(filepath.Join(root, "cube.obj"), []byte(obj), 0o600); err != nil {
		t.Fatal(err)
	}
	meshes, err := oracle.Parse([]byte(obj), oracle.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Generate(root, "cube", meshes, versions); err != nil {
		t.Fatal(err)
	}
}

func TestFileNames(t *testing.T) {
	name := FileName("two_parts", 200, meshfmt.ASCII)
	if name != "two_parts_200_ascii.mfx" {
		t.Fatalf("FileName = %q", name)
	}
	n, v, enc, ok := ParseFileName(name)
	if !ok || n != "two_parts" || v != 200 || enc != meshfmt.ASCII {
		t.Fatalf("ParseFileName = %q %d %v %v", n, v, enc, ok)
	}
	for _, bad := range []string{"cube.mfx", "cube_100_text.mfx", "cube_x_binary.mfx", "cube_100_binary.obj"} {
		if _, _, _, ok := ParseFileName(bad); ok {
			t.Errorf("ParseFileName(%q) accepted", bad)
		}
	}
}

func TestDiscoverAndSelect(t *testing.T) {
	root := t.TempDir()
	writeCube(t, root)
	sub := filepath.Join(root, "more")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"alpha_100_ascii.mfx", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(sub, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	cases, err := Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, c := range cases {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"alpha", "cube"}, names); diff != "" {
		t.Fatalf("cases (-want +got):\n%s", diff)
	}
	cube := cases[1]
	if cube.Rank != 1 || filepath.Base(cube.Oracle) != "cube.obj" || len(cube.Files) != 4 {
		t.Fatalf("cube = %+v", cube)
	}
	var order []string
	for _, f := range cube.Files {
		order = append(order, filepath.Base(f.Path))
	}
	want := []string{"cube_100_binary.mfx", "cube_100_ascii.mfx", "cube_200_binary.mfx", "cube_200_ascii.mfx"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}

	sel, err := Select(cases, "cu*")
	if err != nil || len(sel) != 1 || sel[0].Rank != 1 {
		t.Fatalf("Select = %+v, %v", sel, err)
	}
	if _, err := Select(cases, "["); err == nil {
		t.Fatal("bad pattern accepted")
	}
}

func TestReplayRunPasses(t *testing.T) {
	root := t.TempDir()
	writeCube(t, root)
	cases, err := Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	r := New(Options{Checks: regress.KnownChecks()})
	results, err := r.Run(context.Background(), cases, nil)
	if err != nil {
		t.Fatal(err)
	}
	res := results[0]
	if !res.Passed {
		t.Fatalf("failures: %+v\nlog:\n%s", res.Failures.Items(), res.Log.String())
	}
	if res.Files != 4 {
		t.Fatalf("files = %d", res.Files)
	}
	log := res.Log.String()
	for _, want := range []string{"Oracle cube.obj: 1 meshes", "cube_200_ascii.mfx", "Loaded in ", "Diff "} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
}

func TestDiscoveryRun(t *testing.T) {
	root := t.TempDir()
	writeCube(t, root, meshfmt.Version100)
	cases, err := Discover(root)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	stages := map[Stage]bool{}
	sink := sinkFunc(func(ev Event) {
		mu.Lock()
		stages[ev.Stage] = true
		mu.Unlock()
	})
	cache, err := regress.OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{
		Discover:  true,
		Encodings: []meshfmt.Encoding{meshfmt.Binary},
		Fuzz:      mutate.Options{Workers: 4, NoPatch: true},
		Cache:     cache,
		Library:   "test",
		Sink:      sink,
	}
	r := New(opts)
	results, err := r.Run(context.Background(), cases, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].Passed || results[0].Files != 1 || results[0].Trials == 0 {
		t.Fatalf("result = %+v\n%s", results[0], results[0].Log.String())
	}
	first := r.Registry().Checks()
	if len(first) == 0 {
		t.Fatal("no checks discovered")
	}
	for _, c := range first {
		if c.Case != "cube" || c.Version != 101 {
			t.Fatalf("check = %+v", c)
		}
	}
	if !stages[StageSweep] || !stages[StageLoad] {
		t.Errorf("stages seen: %v", stages)
	}

	// The second run is served from the cache and yields the same table.
	opts.Sink = nil
	again := New(opts)
	results, err = again.Run(context.Background(), cases, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Trials != 0 || !strings.Contains(results[0].Log.String(), "from cache") {
		t.Fatalf("cache not used:\n%s", results[0].Log.String())
	}
	if diff := cmp.Diff(first, again.Registry().Checks()); diff != "" {
		t.Fatalf("cached table (-want +got):\n%s", diff)
	}

	// Replaying the discovered table against the same fixtures passes.
	replay := New(Options{Checks: first, Encodings: []meshfmt.Encoding{meshfmt.Binary}})
	results, err = replay.Run(context.Background(), cases, nil)
	if err != nil || !results[0].Passed {
		t.Fatalf("replay: %v %+v", err, results[0].Failures.Items())
	}
	if results[0].Trials != len(first) {
		t.Fatalf("replayed %d of %d checks", results[0].Trials, len(first))
	}
}

// A loader that accepts one truncated length breaks a single trial; every
// other site found in the sweep still reaches the registry, but nothing is
// cached.
func TestDiscoveryKeepsSitesWhenTrialsBreak(t *testing.T) {
	root := t.TempDir()
	writeCube(t, root, meshfmt.Version100)
	cases, err := Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	full, err := os.ReadFile(filepath.Join(root, FileName("cube", meshfmt.Version100, meshfmt.Binary)))
	if err != nil {
		t.Fatal(err)
	}
	leaky := scene.LoaderFunc(func(data []byte, opts scene.LoadOptions) (*scene.Scene, error) {
		if len(data) == len(full)-1 {
			return meshfmt.Load(full, scene.LoadOptions{})
		}
		return meshfmt.Load(data, opts)
	})
	cache, err := regress.OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{
		Loader:    leaky,
		Discover:  true,
		Encodings: []meshfmt.Encoding{meshfmt.Binary},
		Fuzz:      mutate.Options{Workers: 4, NoPatch: true},
		Cache:     cache,
		Library:   "test",
	}
	r := New(opts)
	res, err := r.RunCase(context.Background(), cases[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed || res.Failures.Len() != 1 {
		t.Fatalf("passed=%v failures=%+v", res.Passed, res.Failures.Items())
	}
	if !strings.Contains(res.Failures.Items()[0].Message, "loaded under") {
		t.Fatalf("failure = %q", res.Failures.Items()[0].Message)
	}
	if r.Registry().Len() == 0 {
		t.Fatal("sites of the expected failures were dropped")
	}

	again := New(opts)
	res, err = again.RunCase(context.Background(), cases[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Trials == 0 || strings.Contains(res.Log.String(), "from cache") {
		t.Fatalf("partial table was cached:\n%s", res.Log.String())
	}
}

func TestCaseFailures(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		root := t.TempDir()
		writeCube(t, root, meshfmt.Version100)
		cases, err := Discover(root)
		if err != nil {
			t.Fatal(err)
		}
		res, err := New(Options{Versions: []uint32{200}}).RunCase(context.Background(), cases[0])
		if err != nil {
			t.Fatal(err)
		}
		if res.Passed || res.Failures.Items()[0].Message != "file not found" {
			t.Fatalf("result = %+v", res.Failures.Items())
		}
		if res.Failures.Items()[0].File != "runner.go" {
			t.Fatalf("failure location = %s", res.Failures.Items()[0].File)
		}
	})

	t.Run("diff mismatch", func(t *testing.T) {
		root := t.TempDir()
		writeCube(t, root, meshfmt.Version100)
		moved := strings.Replace(testkit.CubeOBJ(true), "v -1", "v -2", 1)
		if err := os.WriteFile(filepath.Join(root, "cube.obj"), []byte(moved), 0o600); err != nil {
			t.Fatal(err)
		}
		cases, err := Discover(root)
		if err != nil {
			t.Fatal(err)
		}
		res, err := New(Options{}).RunCase(context.Background(), cases[0])
		if err != nil {
			t.Fatal(err)
		}
		if res.Passed || !strings.Contains(res.Failures.Items()[0].Message, "position") {
			t.Fatalf("failures = %+v", res.Failures.Items())
		}
	})

	t.Run("broken oracle", func(t *testing.T) {
		root := t.TempDir()
		writeCube(t, root, meshfmt.Version100)
		if err := os.WriteFile(filepath.Join(root, "cube.obj"), []byte("f 1 2 3\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cases, err := Discover(root)
		if err != nil {
			t.Fatal(err)
		}
		res, err := New(Options{}).RunCase(context.Background(), cases[0])
		if err != nil || res.Passed {
			t.Fatalf("err=%v passed=%v", err, res.Passed)
		}
	})

	t.Run("loader panics", func(t *testing.T) {
		root := t.TempDir()
		writeCube(t, root, meshfmt.Version100)
		cases, err := Discover(root)
		if err != nil {
			t.Fatal(err)
		}
		loader := scene.LoaderFunc(func([]byte, scene.LoadOptions) (*scene.Scene, error) { panic("boom") })
		res, err := New(Options{Loader: loader}).RunCase(context.Background(), cases[0])
		if err != nil || res.Passed {
			t.Fatalf("err=%v passed=%v", err, res.Passed)
		}
		if len(res.Failures.Items()[0].Stack) == 0 {
			t.Fatal("panic stack missing")
		}
	})
}

type sinkFunc func(Event)

func (f sinkFunc) OnEvent(ev Event) { f(ev) }
