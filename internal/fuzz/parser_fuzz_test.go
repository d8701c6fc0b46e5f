package fuzztests

import (
	"errors"
	"testing"

	"meshfuzz/internal/oracle"
)

func FuzzOracleParse(f *testing.F) {
	addCorpusSeeds(f, ".obj")
	f.Add([]byte("g a\nv 1 2 3\nf 1 1 1\n"))
	f.Add([]byte("g a\nv 1 2 3\nvn 0 0 1\nf 1//1 1//1 1//1\n"))
	f.Add([]byte("f 1//1\n"))

	f.Fuzz(func(t *testing.T, input []byte) {
		input = clampInput(input)
		meshes, err := oracle.Parse(input, oracle.Options{})
		if err != nil {
			if !errors.Is(err, oracle.ErrMalformed) {
				t.Fatalf("error does not wrap ErrMalformed: %v", err)
			}
			return
		}
		for _, m := range meshes {
			if len(m.Position.Indices) != m.NumIndices {
				t.Fatalf("mesh %q: %d position indices for %d corners", m.Name, len(m.Position.Indices), m.NumIndices)
			}
		}
	})
}
