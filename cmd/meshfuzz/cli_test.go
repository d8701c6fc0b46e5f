package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meshfuzz/internal/testkit"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenCheckRun(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	data := filepath.Join(dir, "data")
	if err := os.MkdirAll(data, 0o755); err != nil {
		t.Fatal(err)
	}
	obj := filepath.Join(data, "cube.obj")
	if err := os.WriteFile(obj, []byte(testkit.CubeOBJ(true)), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "gen", obj)
	if err != nil {
		t.Fatalf("gen: %v\n%s", err, out)
	}
	if n := strings.Count(out, ".mfx"); n != 4 {
		t.Fatalf("gen wrote %d fixtures:\n%s", n, out)
	}

	fixture := filepath.Join(data, "cube_200_ascii.mfx")
	out, err = execute(t, "check", fixture, "--obj", obj)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	for _, want := range []string{"version 200 ascii", "Loaded in", "Diff "} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "run", "-d", data, "--ui", "off", "--color", "off")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"cube: PASS", "Tests passed: 1/1"} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	s := runSettings{threads: 1, emitChecks: "table.toml"}
	if err := s.validate(); err == nil || !strings.Contains(err.Error(), "requires --fuzz") {
		t.Fatalf("validate = %v", err)
	}
	s = runSettings{threads: 1, fuzz: true, emitChecks: "table.json"}
	if err := s.validate(); err == nil || !strings.Contains(err.Error(), ".go or .toml") {
		t.Fatalf("validate = %v", err)
	}
	s = runSettings{threads: 0}
	if err := s.validate(); err == nil {
		t.Fatal("validate accepted zero threads")
	}
}

func TestEmitTable(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "checks.toml")
	if err := emitTable(&out, path, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "wrote 0 checks") {
		t.Fatalf("output = %q", out.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := emitTable(&out, "", nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "package regress") {
		t.Fatalf("stdout table = %q", out.String())
	}
}

func TestVersionJSON(t *testing.T) {
	info := versionInfo{Version: "1.0.0", Library: "meshfmt-test", GitCommit: "abc"}
	var out bytes.Buffer
	if err := renderVersionJSON(&out, info, true); err != nil {
		t.Fatal(err)
	}
	var payload versionPayload
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Tool != "meshfuzz" || payload.GitCommit != "abc" || payload.BuildDate != "unknown" {
		t.Fatalf("payload = %+v", payload)
	}
}
