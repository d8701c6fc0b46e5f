// Package oracle loads the reference geometry that loaded scenes are diffed
// against. The input is a Wavefront .obj subset: named groups, positions,
// normals, texture coordinates and faces with p/u/n or p//n corners.
package oracle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"

	"meshfuzz/internal/scene"
)

// ErrMalformed is wrapped by every parse failure.
var ErrMalformed = errors.New("malformed oracle")

// ParseError reports the first bad line of an oracle file.
type ParseError struct {
	Line int // 1-based
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("oracle: line %d: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error { return ErrMalformed }

// Mesh is one group of the oracle file. Attribute values are shared by all
// meshes of a file; the index arrays cover only this mesh's corners.
type Mesh struct {
	Name       string
	Faces      []scene.Face
	NumIndices int

	Position scene.VertexVec3
	Normal   scene.VertexVec3
	UV       scene.VertexVec2
}

// Options tunes parsing.
type Options struct {
	// NameSeparator truncates group names at its first occurrence so
	// "Cube_Mesh" and "Cube" compare equal. Zero means '_'; use -1 to keep
	// names whole.
	NameSeparator rune
}

func (o Options) separator() rune {
	if o.NameSeparator == 0 {
		return '_'
	}
	return o.NameSeparator
}

// Parse reads every group of data.
func Parse(data []byte, opts Options) ([]Mesh, error) {
	p := parser{sep: opts.separator()}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		p.line = i + 1
		if err := p.parseLine(strings.TrimRight(line, "\r")); err != nil {
			return nil, err
		}
	}
	p.closeMesh()
	// attribute arrays are complete only now
	for i := range p.meshes {
		m := &p.meshes[i]
		m.Position.Values = p.positions
		m.Normal.Values = p.normals
		m.UV.Values = p.uvs
	}
	return p.meshes, nil
}

type parser struct {
	sep  rune
	line int

	positions []scene.Vec3
	normals   []scene.Vec3
	uvs       []scene.Vec2

	meshes []Mesh
	cur    *Mesh
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "v":
		v, err := p.floats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.positions = append(p.positions, scene.Vec3{X: v[0], Y: v[1], Z: v[2]})
	case "vn":
		v, err := p.floats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.normals = append(p.normals, scene.Vec3{X: v[0], Y: v[1], Z: v[2]})
	case "vt":
		v, err := p.floats(fields[1:], 2)
		if err != nil {
			return err
		}
		p.uvs = append(p.uvs, scene.Vec2{X: v[0], Y: v[1]})
	case "g":
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "g"))
		if name == "default" {
			return nil
		}
		p.openMesh(name)
	case "f":
		return p.parseFace(fields[1:])
	}
	// comments, o, s, usemtl, mtllib and anything else are ignored
	return nil
}

func (p *parser) floats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, p.errorf("expected %d numbers, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, p.errorf("bad number %q", fields[i])
		}
		out[i] = f
	}
	return out, nil
}

func (p *parser) openMesh(name string) {
	p.closeMesh()
	if p.sep >= 0 {
		if i := strings.IndexRune(name, p.sep); i >= 0 {
			name = name[:i]
		}
	}
	p.cur = &Mesh{Name: norm.NFC.String(name)}
}

func (p *parser) closeMesh() {
	if p.cur == nil {
		return
	}
	p.meshes = append(p.meshes, *p.cur)
	p.cur = nil
}

func (p *parser) parseFace(corners []string) error {
	m := p.cur
	if m == nil {
		return p.errorf("face before any group")
	}
	if len(corners) == 0 {
		return p.errorf("face without corners")
	}
	begin, err := faceIndex(m.NumIndices)
	if err != nil {
		return p.errorf("too many indices")
	}
	count, err := faceIndex(len(corners))
	if err != nil {
		return p.errorf("too many corners")
	}
	for _, c := range corners {
		parts := strings.Split(c, "/")
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return p.errorf("face corner %q is not p/u/n or p//n", c)
		}
		pi, err := p.index(parts[0], len(p.positions), "position")
		if err != nil {
			return err
		}
		ni, err := p.index(parts[2], len(p.normals), "normal")
		if err != nil {
			return err
		}
		ui := int32(-1)
		if parts[1] != "" {
			if ui, err = p.index(parts[1], len(p.uvs), "uv"); err != nil {
				return err
			}
		}
		m.Position.Indices = append(m.Position.Indices, pi)
		m.Normal.Indices = append(m.Normal.Indices, ni)
		m.UV.Indices = append(m.UV.Indices, ui)
	}
	m.Faces = append(m.Faces, scene.Face{IndexBegin: begin, NumIndices: count})
	m.NumIndices += len(corners)
	return nil
}

func faceIndex(n int) (uint32, error) {
	return safecast.Conv[uint32](n)
}

// index converts a 1-based reference to an already seen attribute.
func (p *parser) index(tok string, seen int, what string) (int32, error) {
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, p.errorf("bad %s index %q", what, tok)
	}
	if n < 1 || int(n) > seen {
		return 0, p.errorf("%s index %d out of range [1, %d]", what, n, seen)
	}
	return int32(n - 1), nil
}
