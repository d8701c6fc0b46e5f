package regress

import (
	"bytes"
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"meshfuzz/internal/meshfmt"
	"meshfuzz/internal/mutate"
	"meshfuzz/internal/scene"
	"meshfuzz/internal/testkit"
)

var recordOpts = cmp.AllowUnexported(scene.AllocLimit{})

func sampleRecords() []*Record {
	patch := func(off int, v byte) *mutate.BytePatch { return &mutate.BytePatch{Offset: off, Value: v} }
	return []*Record{
		{Site: 7, Case: "b", CaseRank: 1, Version: 101, Truncate: 3, Description: "x"},
		{Site: 7, Case: "a", CaseRank: 0, Version: 202, Truncate: 9, Description: "x"},
		{Site: 7, Case: "a", CaseRank: 0, Version: 201, TempLimit: scene.LimitAllocs(4), Description: "x"},
		{Site: 7, Case: "a", CaseRank: 0, Version: 201, ResultLimit: scene.LimitAllocs(1), Description: "x"},
		{Site: 7, Case: "a", CaseRank: 0, Version: 201, TempLimit: scene.LimitAllocs(2), Description: "x"},
		{Site: 7, Case: "a", CaseRank: 0, Version: 201, Patch: patch(40, 0xff), Description: "x"},
		{Site: 7, Case: "a", CaseRank: 0, Version: 201, Patch: patch(12, 0xff), Description: "x"},
		{Site: 7, Case: "a", CaseRank: 0, Version: 201, Patch: patch(12, 0x00), Description: "y"},
		{Site: 7, Case: "a", CaseRank: 0, Version: 201, Patch: patch(12, 0x00), Description: "x"},
	}
}

func TestMergePicksPreferred(t *testing.T) {
	var best *Record
	for _, r := range sampleRecords() {
		best = Merge(best, r)
	}
	want := sampleRecords()[8]
	if diff := cmp.Diff(want, best, recordOpts); diff != "" {
		t.Fatalf("best (-want +got):\n%s", diff)
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	recs := sampleRecords()
	var want *Record
	for _, r := range recs {
		want = Merge(want, r)
	}
	rng := rand.New(rand.NewSource(1))
	for range 200 {
		perm := rng.Perm(len(recs))
		var got *Record
		for _, i := range perm {
			got = Merge(got, recs[i])
		}
		if diff := cmp.Diff(want, got, recordOpts); diff != "" {
			t.Fatalf("perm %v (-want +got):\n%s", perm, diff)
		}
	}
	for _, a := range recs {
		for _, b := range recs {
			if diff := cmp.Diff(Merge(a, b), Merge(b, a), recordOpts); diff != "" {
				t.Fatalf("Merge not commutative (-ab +ba):\n%s", diff)
			}
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Record
	}{
		{"older version", Record{Version: 101, Truncate: 9}, Record{Version: 102, Truncate: 1}},
		{"patch before limit", Record{Patch: &mutate.BytePatch{Offset: 100}}, Record{TempLimit: scene.LimitAllocs(0)}},
		{"temp before result", Record{TempLimit: scene.LimitAllocs(9)}, Record{ResultLimit: scene.LimitAllocs(0)}},
		{"result before truncate", Record{ResultLimit: scene.LimitAllocs(9)}, Record{Truncate: 1}},
		{"smaller truncate", Record{Truncate: 1}, Record{Truncate: 2}},
		{"lower rank", Record{CaseRank: 0, Version: 999}, Record{CaseRank: 1, Version: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Compare(&tt.a, &tt.b) >= 0 || Compare(&tt.b, &tt.a) <= 0 {
				t.Fatalf("Compare(%+v, %+v) does not prefer the first", tt.a, tt.b)
			}
		})
	}
}

func TestRegistryConcurrentObserve(t *testing.T) {
	errs := []*scene.Error{
		{Frames: []scene.Frame{{Site: 1, Description: "inner"}, {Site: 2, Description: "outer"}}},
		{Frames: []scene.Frame{{Site: 3, Description: "other"}, {Site: 2, Description: "outer"}}},
	}
	run := func(order []int) []Check {
		reg := NewRegistry()
		var wg sync.WaitGroup
		for _, i := range order {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := reg.For("cube", 0, 101)
				c := mutate.Candidate{Truncate: 10 + i, Step: mutate.StepTruncate + uint64(i)} //nolint:gosec // small test index
				rec.Observe(c, errs[i%len(errs)])
			}()
		}
		wg.Wait()
		return reg.Checks()
	}

	want := run([]int{0, 1, 2, 3, 4, 5})
	if len(want) != 3 {
		t.Fatalf("checks = %d, want 3", len(want))
	}
	if want[1].Site != 2 || want[1].Truncate != 10 {
		t.Fatalf("site 2 = %+v", want[1])
	}
	got := run([]int{5, 3, 1, 4, 2, 0})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order dependent (-want +got):\n%s", diff)
	}
}

func TestRegistryRecordsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&Record{Site: 9, Case: "a", CaseRank: 0, Version: 201})
	reg.Add(&Record{Site: 1, Case: "b", CaseRank: 1, Version: 101})
	reg.Add(&Record{Site: 4, Case: "a", CaseRank: 0, Version: 101})
	reg.Add(&Record{Site: 2, Case: "a", CaseRank: 0, Version: 101})
	var sites []uint32
	for _, r := range reg.Records() {
		sites = append(sites, r.Site)
	}
	if diff := cmp.Diff([]uint32{2, 4, 9, 1}, sites); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func sampleChecks() []Check {
	return []Check{
		{Case: "cube", Version: 101, Site: 0x10072, Patch: &mutate.BytePatch{Offset: 24, Value: 0xff}, Description: "string is valid UTF-8"},
		{Case: "cube", Version: 101, Site: 0x40012, TempLimit: limit(0), Description: "allocs_left > 0"},
		{Case: "cube", Version: 102, Site: 0x30001, ResultLimit: limit(3), Description: `quote " and \ slash`},
		{Case: "cube", Version: 102, Site: 0x50018, Truncate: 1, Description: "magic recognized"},
	}
}

func TestWriteGo(t *testing.T) {
	checks := append(sampleChecks(), Check{Case: "x", Version: 1, Site: 1, Truncate: 2, Description: strings.Repeat("d", 80)})
	var buf bytes.Buffer
	if err := WriteGo(&buf, checks); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"package regress\n",
		"import \"meshfuzz/internal/mutate\"\n",
		`{Case: "cube", Version: 101, Site: 0x10072, Patch: &mutate.BytePatch{Offset: 24, Value: 0xff}, Description: "string is valid UTF-8"},`,
		`TempLimit: limit(0), Description: "allocs_left > 0"}`,
		`ResultLimit: limit(3), Description: "quote \" and \\ slash"}`,
		`Description: "` + strings.Repeat("d", 53) + `..."}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteGo(&buf, checks[1:2]); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "import") {
		t.Errorf("import emitted without patches:\n%s", buf.String())
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTOML(&buf, sampleChecks()); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTOML(&buf)
	if err != nil {
		t.Fatalf("DecodeTOML: %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(sampleChecks(), got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestDecodeTOMLRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key": "schema = 1\n[[check]]\ncase = \"a\"\nbogus = 1\n",
		"no schema":   "[[check]]\ncase = \"a\"\n",
		"bad schema":  "schema = 7\n",
		"no case":     "schema = 1\n[[check]]\nversion = 101\n",
		"syntax":      "schema = \n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeTOML(strings.NewReader(src)); err == nil {
				t.Fatal("accepted")
			}
		})
	}
}

func encodeCube(t *testing.T, enc meshfmt.Encoding) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := meshfmt.Encode(&buf, testkit.CubeScene(false), meshfmt.Version100, enc); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDiscoverThenReplay(t *testing.T) {
	for _, enc := range meshfmt.Encodings {
		t.Run(enc.String(), func(t *testing.T) {
			data := encodeCube(t, enc)
			clean, err := meshfmt.Load(data, scene.LoadOptions{})
			if err != nil {
				t.Fatal(err)
			}
			version := PackVersion(meshfmt.Version100, enc == meshfmt.ASCII)

			reg := NewRegistry()
			res, err := mutate.Run(context.Background(), meshfmt.Loader{}, data, clean.Metadata,
				reg.For("cube", 0, version), mutate.Options{Workers: 4, Validate: testkit.CheckScene})
			if err != nil || res.Failed() {
				t.Fatalf("discovery: err=%v failures=%v", err, res.Failures)
			}
			if reg.Len() == 0 {
				t.Fatal("no sites recorded")
			}

			path := filepath.Join(t.TempDir(), "checks.toml")
			var buf bytes.Buffer
			if err := WriteTOML(&buf, reg.Checks()); err != nil {
				t.Fatal(err)
			}
			writeFile(t, path, buf.Bytes())
			checks, err := LoadTOML(path)
			if err != nil {
				t.Fatal(err)
			}

			rr, err := Replay(context.Background(), meshfmt.Loader{}, "cube", version, data, checks, ReplayOptions{Validate: testkit.CheckScene})
			if err != nil {
				t.Fatal(err)
			}
			if len(rr.Failures) != 0 || len(rr.Resolved) != 0 {
				t.Fatalf("replay: failures=%v resolved=%v", rr.Failures, rr.Resolved)
			}
			if rr.Applied != reg.Len() || rr.Reproduced != rr.Applied {
				t.Fatalf("applied %d, reproduced %d, sites %d", rr.Applied, rr.Reproduced, reg.Len())
			}
		})
	}
}

func TestPatchedCreatorRecorded(t *testing.T) {
	data := encodeCube(t, meshfmt.Binary)
	clean, err := meshfmt.Load(data, scene.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry()
	if _, err := mutate.Run(context.Background(), meshfmt.Loader{}, data, clean.Metadata,
		reg.For("cube", 0, 101), mutate.Options{OnlyStep: 24*mutate.PatchStepScale + 4}); err != nil {
		t.Fatal(err)
	}
	var found *Check
	checks := reg.Checks()
	for i := range checks {
		if checks[i].Description == "string is valid UTF-8" {
			found = &checks[i]
		}
	}
	if found == nil {
		t.Fatalf("no UTF-8 check in %+v", checks)
	}
	if diff := cmp.Diff(&mutate.BytePatch{Offset: 24, Value: 0xff}, found.Patch); diff != "" {
		t.Fatalf("patch (-want +got):\n%s", diff)
	}

	rr, err := Replay(context.Background(), meshfmt.Loader{}, "cube", 101, data, checks, ReplayOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rr.Reproduced != len(checks) {
		t.Fatalf("reproduced %d of %d", rr.Reproduced, len(checks))
	}
	if data[24] != 'f' {
		t.Fatalf("replay modified input: %q", data[24])
	}
}

func TestKnownChecksReplay(t *testing.T) {
	data := encodeCube(t, meshfmt.Binary)
	var log []string
	rr, err := Replay(context.Background(), meshfmt.Loader{}, "cube", 101, data, KnownChecks(), ReplayOptions{
		Validate: testkit.CheckScene,
		Logf:     func(format string, args ...any) { log = append(log, format) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rr.Failures) != 0 {
		t.Fatalf("failures: %v", rr.Failures)
	}
	if rr.Applied != len(knownChecks) || rr.Reproduced != rr.Applied {
		t.Fatalf("applied %d reproduced %d resolved %v", rr.Applied, rr.Reproduced, rr.Resolved)
	}
	if len(log) != rr.Applied {
		t.Fatalf("log lines = %d", len(log))
	}
}

func TestReplayReportsResolvedAndBroken(t *testing.T) {
	data := []byte("abcdefgh")
	loader := scene.LoaderFunc(func(in []byte, opts scene.LoadOptions) (*scene.Scene, error) {
		if len(in) == 2 {
			panic("boom")
		}
		if opts.TempLimit.IsSet() {
			return nil, &scene.Error{Frames: []scene.Frame{{Site: 99}}}
		}
		return &scene.Scene{}, nil
	})
	checks := []Check{
		{Case: "c", Version: 1, Site: 1, Truncate: 4, Description: "now loads"},
		{Case: "c", Version: 1, Site: 2, TempLimit: limit(0), Description: "other site"},
		{Case: "c", Version: 1, Site: 3, Truncate: 2, Description: "panics"},
		{Case: "c", Version: 1, Site: 4, Patch: &mutate.BytePatch{Offset: 8}, Description: "out of range"},
		{Case: "d", Version: 1, Site: 5, Truncate: 2, Description: "other case"},
	}
	rr, err := Replay(context.Background(), loader, "c", 1, data, checks, ReplayOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rr.Applied != 4 || len(rr.Resolved) != 2 || len(rr.Failures) != 2 {
		t.Fatalf("result = %+v", rr)
	}
	if rr.Failures[0].Kind != mutate.OutcomeCrashed || rr.Failures[1].Kind != mutate.OutcomeUnexpected {
		t.Fatalf("failure kinds = %v, %v", rr.Failures[0].Kind, rr.Failures[1].Kind)
	}
}

func TestDiskCache(t *testing.T) {
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := CacheKey{Data: []byte("abc"), Case: "cube", Version: 101, Library: "dev"}
	var miss CachePayload
	if ok, err := cache.Get(key.Digest(), &miss); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	in := &CachePayload{Case: "cube", Version: 101, Checks: sampleChecks()}
	if err := cache.Put(key.Digest(), in); err != nil {
		t.Fatal(err)
	}
	var out CachePayload
	ok, err := cache.Get(key.Digest(), &out)
	if !ok || err != nil {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(sampleChecks(), out.Checks); diff != "" {
		t.Fatalf("checks (-want +got):\n%s", diff)
	}

	other := key
	other.NoPatch = true
	if other.Digest() == key.Digest() {
		t.Fatal("options do not affect the digest")
	}
	if err := cache.DropAll(); err != nil {
		t.Fatal(err)
	}
}

func TestRestore(t *testing.T) {
	reg := NewRegistry()
	reg.Restore(2, sampleChecks())
	if diff := cmp.Diff(sampleChecks(), reg.Checks()); diff != "" {
		t.Fatalf("restored (-want +got):\n%s", diff)
	}
	if r, ok := reg.Lookup(0x40012); !ok || r.CaseRank != 2 {
		t.Fatalf("lookup = %+v, %v", r, ok)
	}
}
