package fuzztests

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"meshfuzz/internal/meshfmt"
	"meshfuzz/internal/testkit"
)

const (
	maxSeedBytes = 64 << 10 // 64 KiB, ограничение для тестового корпуса
	maxFuzzInput = 1 << 16
)

func addCorpusSeeds(f *testing.F, exts ...string) {
	addTestdataSeeds(f, exts...)
	addCubeSeeds(f)
}

func addTestdataSeeds(f *testing.F, exts ...string) {
	root := filepath.Join("..", "..", "testdata")
	if _, err := os.Stat(root); err != nil {
		return
	}
	// проходим по дереву testdata, добавляем файлы с нужными расширениями
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !hasExt(path, exts) {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
	if err != nil {
		return
	}
	f.Add([]byte{})
}

// addCubeSeeds adds the reference cube in every version and encoding, plus
// its oracle text, so the corpus is useful even without testdata.
func addCubeSeeds(f *testing.F) {
	f.Add([]byte(testkit.CubeOBJ(true)))
	for _, version := range meshfmt.Versions {
		for _, enc := range meshfmt.Encodings {
			var buf bytes.Buffer
			if err := meshfmt.Encode(&buf, testkit.CubeScene(true), version, enc); err != nil {
				continue
			}
			f.Add(clampSeed(buf.Bytes()))
		}
	}
}

func hasExt(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}

func clampInput(input []byte) []byte {
	if len(input) > maxFuzzInput {
		return append([]byte(nil), input[:maxFuzzInput]...)
	}
	return append([]byte(nil), input...)
}
