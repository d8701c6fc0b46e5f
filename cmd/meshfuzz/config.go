package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"meshfuzz/internal/meshfmt"
)

const configFileName = "meshfuzz.toml"

// projectConfig is the optional meshfuzz.toml manifest. Every [run] key
// mirrors a run flag; flags given on the command line win.
type projectConfig struct {
	Run runConfig `toml:"run"`
}

type runConfig struct {
	Data      string   `toml:"data"`
	Tests     []string `toml:"tests"`
	Versions  []uint32 `toml:"versions"`
	Encodings []string `toml:"encodings"`
	Threads   int      `toml:"threads"`
	Checks    string   `toml:"checks"`
	DiskCache bool     `toml:"disk_cache"`
	AllBytes  bool     `toml:"patch_all_byte_values"`
	NoPatch   bool     `toml:"no_patch"`
}

type projectManifest struct {
	Path   string
	Root   string
	Config projectConfig
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadProjectManifest(startDir string) (*projectManifest, bool, error) {
	path, ok, err := findConfig(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := loadProjectConfig(path)
	if err != nil {
		return nil, true, err
	}
	return &projectManifest{Path: path, Root: filepath.Dir(path), Config: cfg}, true, nil
}

func loadProjectConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("run") {
		return projectConfig{}, fmt.Errorf("%s: missing [run]", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return projectConfig{}, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if meta.IsDefined("run", "data") && strings.TrimSpace(cfg.Run.Data) == "" {
		return projectConfig{}, fmt.Errorf("%s: [run].data is empty", path)
	}
	for _, v := range cfg.Run.Versions {
		if !meshfmt.SupportsVersion(v) {
			return projectConfig{}, fmt.Errorf("%s: [run].versions: unsupported version %d", path, v)
		}
	}
	for _, e := range cfg.Run.Encodings {
		if _, err := meshfmt.ParseEncoding(e); err != nil {
			return projectConfig{}, fmt.Errorf("%s: [run].encodings: %w", path, err)
		}
	}
	if cfg.Run.Threads < 0 {
		return projectConfig{}, fmt.Errorf("%s: [run].threads must not be negative", path)
	}
	return cfg, nil
}

// resolve returns p relative to the manifest directory.
func (m *projectManifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, filepath.FromSlash(p))
}

// applyManifest copies manifest values into settings for every flag the
// user did not set explicitly.
func applyManifest(cmd *cobra.Command, m *projectManifest, s *runSettings) error {
	if m == nil {
		return nil
	}
	rc := m.Config.Run
	changed := cmd.Flags().Changed
	if rc.Data != "" && !changed("data") {
		s.data = m.resolve(rc.Data)
	}
	if len(rc.Tests) > 0 && !changed("test") {
		s.tests = rc.Tests
	}
	if len(rc.Versions) > 0 && !changed("format") {
		s.versions = rc.Versions
	}
	if len(rc.Encodings) > 0 && !changed("encoding") {
		encs, err := parseEncodings(rc.Encodings)
		if err != nil {
			return err
		}
		s.encodings = encs
	}
	if rc.Threads > 0 && !changed("threads") {
		s.threads = rc.Threads
	}
	if rc.Checks != "" && !changed("checks") {
		s.checks = m.resolve(rc.Checks)
	}
	if rc.DiskCache && !changed("disk-cache") {
		s.diskCache = true
	}
	if rc.AllBytes && !changed("patch-all-byte-values") {
		s.allBytes = true
	}
	if rc.NoPatch && !changed("no-patch") {
		s.noPatch = true
	}
	return nil
}

func parseEncodings(values []string) ([]meshfmt.Encoding, error) {
	out := make([]meshfmt.Encoding, 0, len(values))
	for _, v := range values {
		enc, err := meshfmt.ParseEncoding(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}
