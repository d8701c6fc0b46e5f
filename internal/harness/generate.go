package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"meshfuzz/internal/meshfmt"
	"meshfuzz/internal/oracle"
)

// GeneratorCreator is the creator string written into generated fixtures.
const GeneratorCreator = "meshfuzz gen"

// Generate writes the fixtures of case name for every version and
// encoding into dir and returns their paths.
func Generate(dir, name string, meshes []oracle.Mesh, versions []uint32) ([]string, error) {
	if len(versions) == 0 {
		versions = meshfmt.Versions
	}
	s := oracle.BuildScene(meshes, GeneratorCreator)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, v := range versions {
		for _, enc := range meshfmt.Encodings {
			var buf bytes.Buffer
			if err := meshfmt.Encode(&buf, s, v, enc); err != nil {
				return paths, fmt.Errorf("encode %s %d %s: %w", name, v, enc, err)
			}
			p := filepath.Join(dir, FileName(name, v, enc))
			if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil { //nolint:gosec // fixtures are meant to be shared
				return paths, err
			}
			paths = append(paths, p)
		}
	}
	return paths, nil
}
