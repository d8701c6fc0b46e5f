package harness

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"meshfuzz/internal/meshfmt"
)

// FileExt is the extension of scene fixtures.
const FileExt = ".mfx"

// OracleExt is the extension of reference geometry.
const OracleExt = ".obj"

var fileNameRe = regexp.MustCompile(`^(.+)_(\d+)_(binary|ascii)\` + FileExt + `$`)

// File is one fixture of a case.
type File struct {
	Path     string
	Version  uint32
	Encoding meshfmt.Encoding
}

// Case groups the fixtures sharing a name with their oracle.
type Case struct {
	Name string
	// Rank is the position of the case in discovery order; it decides which
	// case owns a regression check found in several.
	Rank   int
	Oracle string
	Files  []File
}

// FileName returns the fixture name for a case, version and encoding.
func FileName(name string, version uint32, enc meshfmt.Encoding) string {
	return fmt.Sprintf("%s_%d_%s%s", name, version, enc, FileExt)
}

// ParseFileName splits a fixture name into its parts.
func ParseFileName(base string) (name string, version uint32, enc meshfmt.Encoding, ok bool) {
	m := fileNameRe.FindStringSubmatch(base)
	if m == nil {
		return "", 0, 0, false
	}
	v, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	enc, err = meshfmt.ParseEncoding(m[3])
	if err != nil {
		return "", 0, 0, false
	}
	return m[1], uint32(v), enc, true
}

// Discover walks root for fixtures and oracles and returns the cases sorted
// by name.
func Discover(root string) ([]Case, error) {
	byName := make(map[string]*Case)
	get := func(name string) *Case {
		c, ok := byName[name]
		if !ok {
			c = &Case{Name: name}
			byName[name] = c
		}
		return c
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		if name, version, enc, ok := ParseFileName(base); ok {
			c := get(name)
			c.Files = append(c.Files, File{Path: p, Version: version, Encoding: enc})
			return nil
		}
		if strings.HasSuffix(base, OracleExt) {
			c := get(strings.TrimSuffix(base, OracleExt))
			if c.Oracle != "" {
				return fmt.Errorf("duplicate oracle for %q: %s and %s", c.Name, c.Oracle, p)
			}
			c.Oracle = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cases := make([]Case, 0, len(byName))
	for _, c := range byName {
		sort.Slice(c.Files, func(i, j int) bool {
			if c.Files[i].Version != c.Files[j].Version {
				return c.Files[i].Version < c.Files[j].Version
			}
			return c.Files[i].Encoding < c.Files[j].Encoding
		})
		cases = append(cases, *c)
	}
	// Сортируем для детерминированного порядка
	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	for i := range cases {
		cases[i].Rank = i
	}
	return cases, nil
}

// Select keeps the cases whose name matches any pattern (exact name or
// path.Match glob). No patterns keeps everything.
func Select(cases []Case, patterns ...string) ([]Case, error) {
	if len(patterns) == 0 {
		return cases, nil
	}
	var out []Case
	for _, c := range cases {
		for _, pat := range patterns {
			ok, err := path.Match(pat, c.Name)
			if err != nil {
				return nil, fmt.Errorf("bad test pattern %q: %w", pat, err)
			}
			if ok {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}
