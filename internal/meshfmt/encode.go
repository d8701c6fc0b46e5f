package meshfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"fortio.org/safecast"

	"meshfuzz/internal/scene"
)

// writer mirrors reader for output.
type writer interface {
	open(key string)
	u32(v uint32)
	i32(v int32)
	f64(v float64)
	str(s string)
	close()
}

type binaryWriter struct {
	buf bytes.Buffer
}

func (w *binaryWriter) open(string) {}
func (w *binaryWriter) close()      {}

func (w *binaryWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *binaryWriter) i32(v int32) { w.u32(uint32(v)) } //nolint:gosec // two's complement reinterpretation

func (w *binaryWriter) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

func (w *binaryWriter) str(s string) {
	w.u32(uint32(len(s))) //nolint:gosec // Encode checks string lengths up front
	w.buf.WriteString(s)
}

type asciiWriter struct {
	buf   bytes.Buffer
	first bool
}

func (w *asciiWriter) open(key string) {
	w.buf.WriteString(key)
	w.buf.WriteByte(':')
	w.first = true
}

func (w *asciiWriter) sep() {
	if w.first {
		w.buf.WriteByte(' ')
		w.first = false
		return
	}
	w.buf.WriteString(", ")
}

func (w *asciiWriter) u32(v uint32) {
	w.sep()
	w.buf.WriteString(strconv.FormatUint(uint64(v), 10))
}

func (w *asciiWriter) i32(v int32) {
	w.sep()
	w.buf.WriteString(strconv.FormatInt(int64(v), 10))
}

func (w *asciiWriter) f64(v float64) {
	w.sep()
	w.buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
}

func (w *asciiWriter) str(s string) {
	w.sep()
	w.buf.WriteString(strconv.Quote(s))
}

func (w *asciiWriter) close() { w.buf.WriteByte('\n') }

// Encode writes s in the given version and encoding. Nodes must be ordered
// parents first. Version 100 drops texture coordinates and materials.
func Encode(out io.Writer, s *scene.Scene, version uint32, enc Encoding) error {
	if !SupportsVersion(version) {
		return fmt.Errorf("unsupported version %d", version)
	}
	var w writer
	var bw *binaryWriter
	var aw *asciiWriter
	switch enc {
	case Binary:
		bw = &binaryWriter{}
		bw.buf.Write(binaryMagic)
		bw.u32(version)
		bw.u32(0) // total size, patched below
		w = bw
	case ASCII:
		aw = &asciiWriter{}
		fmt.Fprintf(&aw.buf, "%s%d\n", asciiMagic, version)
		w = aw
	default:
		return fmt.Errorf("unknown encoding %v", enc)
	}

	e := encoder{w: w, version: version, nodes: map[*scene.Node]int32{}, materials: map[*scene.Material]int32{}}
	if err := e.encode(s); err != nil {
		return err
	}

	var data []byte
	if bw != nil {
		bw.buf.Write(binaryFooter)
		data = bw.buf.Bytes()
		size, err := safecast.Conv[uint32](len(data))
		if err != nil {
			return fmt.Errorf("file too large: %w", err)
		}
		binary.LittleEndian.PutUint32(data[12:], size)
	} else {
		aw.buf.WriteString(asciiEnd + "\n")
		data = aw.buf.Bytes()
	}
	_, err := out.Write(data)
	return err
}

type encoder struct {
	w         writer
	version   uint32
	nodes     map[*scene.Node]int32
	materials map[*scene.Material]int32
}

func (e *encoder) index(n int) (int32, error) {
	return safecast.Conv[int32](n)
}

func (e *encoder) count(key string, n int) error {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return fmt.Errorf("%s count: %w", key, err)
	}
	e.w.open(key)
	e.w.u32(v)
	e.w.close()
	return nil
}

func (e *encoder) str(s string) error {
	if _, err := safecast.Conv[uint32](len(s)); err != nil {
		return fmt.Errorf("string too long: %w", err)
	}
	e.w.str(s)
	return nil
}

func (e *encoder) vec3(key string, v scene.Vec3) {
	e.w.open(key)
	e.w.f64(v.X)
	e.w.f64(v.Y)
	e.w.f64(v.Z)
	e.w.close()
}

func (e *encoder) encode(s *scene.Scene) error {
	e.w.open("Creator")
	if err := e.str(s.Metadata.Creator); err != nil {
		return err
	}
	e.w.close()
	unit := s.Metadata.UnitMeters
	if unit == 0 {
		unit = 1
	}
	e.w.open("Unit")
	e.w.f64(unit)
	e.w.close()

	if e.version >= Version200 {
		if err := e.count("Materials", len(s.Materials)); err != nil {
			return err
		}
		for i, m := range s.Materials {
			ix, err := e.index(i)
			if err != nil {
				return err
			}
			e.materials[m] = ix
			e.w.open("Material")
			if err := e.str(m.Name); err != nil {
				return err
			}
			e.w.close()
			if err := e.props(&m.Props); err != nil {
				return err
			}
		}
	}

	if err := e.count("Nodes", len(s.Nodes)); err != nil {
		return err
	}
	for i, n := range s.Nodes {
		ix, err := e.index(i)
		if err != nil {
			return err
		}
		parent := int32(-1)
		if n.Parent != nil {
			p, ok := e.nodes[n.Parent]
			if !ok {
				return fmt.Errorf("node %q: parent %q is not written before it", n.Name, n.Parent.Name)
			}
			parent = p
		}
		e.nodes[n] = ix
		e.w.open("Node")
		if err := e.str(n.Name); err != nil {
			return err
		}
		e.w.i32(parent)
		e.w.close()
		e.vec3("T", n.Local.Translation)
		e.vec3("R", n.Local.Rotation)
		e.vec3("S", n.Local.Scale)
		if err := e.props(&n.Props); err != nil {
			return err
		}
	}

	if err := e.count("Meshes", len(s.Meshes)); err != nil {
		return err
	}
	for _, m := range s.Meshes {
		if err := e.mesh(m); err != nil {
			return fmt.Errorf("mesh %q: %w", m.Name, err)
		}
	}
	return nil
}

func (e *encoder) props(p *scene.Props) error {
	if err := e.count("Props", len(p.Props)); err != nil {
		return err
	}
	for _, prop := range p.Props {
		e.w.open("P")
		if err := e.str(prop.Name); err != nil {
			return err
		}
		if err := e.str(prop.Value); err != nil {
			return err
		}
		e.w.close()
	}
	return nil
}

func (e *encoder) mesh(m *scene.Mesh) error {
	node, ok := e.nodes[m.Node]
	if !ok {
		return fmt.Errorf("mesh node is not part of the scene")
	}
	e.w.open("Mesh")
	if err := e.str(m.Name); err != nil {
		return err
	}
	e.w.i32(node)
	e.w.close()

	if err := e.count("Positions", len(m.VertexPosition.Values)); err != nil {
		return err
	}
	for _, v := range m.VertexPosition.Values {
		e.vec3("V", v)
	}
	if err := e.count("Normals", len(m.VertexNormal.Values)); err != nil {
		return err
	}
	for _, v := range m.VertexNormal.Values {
		e.vec3("V", v)
	}
	hasUV := e.version >= Version200 && len(m.VertexUV.Values) > 0
	if e.version >= Version200 {
		n := 0
		if hasUV {
			n = len(m.VertexUV.Values)
		}
		if err := e.count("UVs", n); err != nil {
			return err
		}
		for _, v := range m.VertexUV.Values[:n] {
			e.w.open("V")
			e.w.f64(v.X)
			e.w.f64(v.Y)
			e.w.close()
		}
	}

	numFaces, err := safecast.Conv[uint32](len(m.Faces))
	if err != nil {
		return err
	}
	numIndices, err := safecast.Conv[uint32](m.NumIndices)
	if err != nil {
		return err
	}
	e.w.open("Faces")
	e.w.u32(numFaces)
	e.w.u32(numIndices)
	e.w.close()
	hasNormal := len(m.VertexNormal.Values) > 0
	for _, f := range m.Faces {
		e.w.open("F")
		e.w.u32(f.NumIndices)
		e.w.close()
		for ix := f.IndexBegin; ix < f.IndexBegin+f.NumIndices; ix++ {
			e.w.open("C")
			e.w.i32(m.VertexPosition.Indices[ix])
			if hasNormal {
				e.w.i32(m.VertexNormal.Indices[ix])
			}
			if hasUV {
				e.w.i32(m.VertexUV.Indices[ix])
			}
			e.w.close()
		}
	}

	if e.version < Version200 {
		return nil
	}
	if err := e.count("MeshMaterials", len(m.Materials)); err != nil {
		return err
	}
	if len(m.Materials) == 0 {
		return nil
	}
	for _, mat := range m.Materials {
		ix, ok := e.materials[mat]
		if !ok {
			return fmt.Errorf("material %q is not part of the scene", mat.Name)
		}
		e.w.open("M")
		e.w.i32(ix)
		e.w.close()
	}
	faceMats := m.FaceMaterial
	if faceMats == nil {
		faceMats = make([]int32, len(m.Faces))
	}
	if err := e.count("FaceMaterials", len(faceMats)); err != nil {
		return err
	}
	for _, fm := range faceMats {
		e.w.open("FM")
		e.w.i32(fm)
		e.w.close()
	}
	return nil
}
