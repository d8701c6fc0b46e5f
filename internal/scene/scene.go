package scene

import "sort"

// Face is a run of consecutive corner indices.
type Face struct {
	IndexBegin uint32
	NumIndices uint32
}

// VertexVec3 is an indexed per-corner attribute. An index of -1 refers to
// the zero value.
type VertexVec3 struct {
	Values  []Vec3
	Indices []int32
}

// Exists reports whether the attribute is present.
func (v *VertexVec3) Exists() bool { return v.Values != nil }

// Get returns the value for corner i.
func (v *VertexVec3) Get(i int) Vec3 {
	if i < 0 || i >= len(v.Indices) {
		return Vec3{}
	}
	ix := v.Indices[i]
	if ix < 0 || int(ix) >= len(v.Values) {
		return Vec3{}
	}
	return v.Values[ix]
}

// VertexVec2 is VertexVec3 for two component attributes.
type VertexVec2 struct {
	Values  []Vec2
	Indices []int32
}

// Exists reports whether the attribute is present.
func (v *VertexVec2) Exists() bool { return v.Values != nil }

// Get returns the value for corner i.
func (v *VertexVec2) Get(i int) Vec2 {
	if i < 0 || i >= len(v.Indices) {
		return Vec2{}
	}
	ix := v.Indices[i]
	if ix < 0 || int(ix) >= len(v.Values) {
		return Vec2{}
	}
	return v.Values[ix]
}

// Prop is a named string property.
type Prop struct {
	Name  string
	Value string
}

// Props is a property table sorted by name with unique names.
type Props struct {
	Props []Prop
}

// Find returns the property called name or nil.
func (p *Props) Find(name string) *Prop {
	i := sort.Search(len(p.Props), func(i int) bool { return p.Props[i].Name >= name })
	if i < len(p.Props) && p.Props[i].Name == name {
		return &p.Props[i]
	}
	return nil
}

// Material is a named property set referenced by meshes.
type Material struct {
	Name  string
	Props Props
}

// Node is an element of the transform hierarchy.
type Node struct {
	ID       int
	Name     string
	Parent   *Node
	Children []*Node
	Props    Props
	Local    Transform
	// ToRoot maps node-local coordinates to scene root coordinates.
	ToRoot Matrix
	Mesh   *Mesh
}

// Mesh is polygonal geometry attached to a node.
type Mesh struct {
	Name string
	Node *Node

	Faces       []Face
	NumIndices  int
	NumVertices int

	VertexPosition VertexVec3
	VertexNormal   VertexVec3
	VertexUV       VertexVec2

	// FaceMaterial holds an index into Materials per face, or nil.
	FaceMaterial []int32
	Materials    []*Material
}

// ToRoot returns the node-to-root transform of the mesh.
func (m *Mesh) ToRoot() Matrix {
	if m.Node == nil {
		return Identity()
	}
	return m.Node.ToRoot
}

// FindFace returns the index of the face containing corner ix, or -1.
func (m *Mesh) FindFace(ix uint32) int {
	i := sort.Search(len(m.Faces), func(i int) bool {
		f := m.Faces[i]
		return f.IndexBegin+f.NumIndices > ix
	})
	if i < len(m.Faces) && m.Faces[i].IndexBegin <= ix {
		return i
	}
	return -1
}

// Metadata describes the loaded file and the cost of loading it.
type Metadata struct {
	Version uint32
	ASCII   bool
	Creator string
	// UnitMeters is the length of one file unit in meters.
	UnitMeters float64

	TempAllocs   int
	ResultAllocs int
	TempMemory   int
	ResultMemory int
}

// Scene is a successfully loaded file.
type Scene struct {
	Metadata  Metadata
	Nodes     []*Node
	Meshes    []*Mesh
	Materials []*Material
}

// FindMesh returns the first mesh called name.
func (s *Scene) FindMesh(name string) *Mesh {
	for _, m := range s.Meshes {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// FindNode returns the first node called name.
func (s *Scene) FindNode(name string) *Node {
	for _, n := range s.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}
