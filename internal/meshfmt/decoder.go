package meshfmt

import (
	"bytes"
	"math"
	"unicode/utf8"

	"meshfuzz/internal/scene"
)

// reader is one encoding's view of the logical value stream. The decoder
// drives both encodings through the same sequence of calls.
type reader interface {
	header() (uint32, error)
	open(key string) error
	close() error
	canHold(n, elemSize int) bool
	u32() (uint32, error)
	i32() (int32, error)
	f64() (float64, error)
	str() ([]byte, error)
	finish() error
}

type decoder struct {
	r       reader
	version uint32
	ascii   bool

	temp   pool
	result pool

	scene *scene.Scene
}

func newDecoder(r reader, ascii bool, opts scene.LoadOptions) *decoder {
	return &decoder{
		r:      r,
		ascii:  ascii,
		temp:   newPool(opts.TempLimit),
		result: newPool(opts.ResultLimit),
	}
}

func (d *decoder) decode() error {
	version, err := d.r.header()
	if err != nil {
		return wrap(err, "header()")
	}
	if !SupportsVersion(version) {
		return fail("version == 100 || version == 200")
	}
	d.version = version

	s, err := allocOne[scene.Scene](&d.result, sizeScene)
	if err != nil {
		return wrap(err, "allocOne(scene)")
	}
	d.scene = s
	s.Metadata.Version = version
	s.Metadata.ASCII = d.ascii

	if err := d.readMetadata(); err != nil {
		return wrap(err, "readMetadata()")
	}
	if d.version >= Version200 {
		if err := d.readMaterials(); err != nil {
			return wrap(err, "readMaterials()")
		}
	}
	if err := d.readNodes(); err != nil {
		return wrap(err, "readNodes()")
	}
	if err := d.readMeshes(); err != nil {
		return wrap(err, "readMeshes()")
	}
	if err := d.r.finish(); err != nil {
		return wrap(err, "finish()")
	}
	return nil
}

// count reads a "Key: n" record and checks that n elements of at least
// minSize encoded bytes could still be present in the input.
func (d *decoder) count(key string, minSize int) (int, error) {
	if err := d.r.open(key); err != nil {
		return 0, wrap(err, "open()")
	}
	n, err := d.r.u32()
	if err != nil {
		return 0, wrap(err, "u32()")
	}
	if err := d.r.close(); err != nil {
		return 0, wrap(err, "close()")
	}
	if !d.r.canHold(int(n), minSize) {
		return 0, fail("count fits data")
	}
	return int(n), nil
}

// str copies a string through a scratch buffer and validates it.
func (d *decoder) str() (string, error) {
	raw, err := d.r.str()
	if err != nil {
		return "", wrap(err, "str()")
	}
	scratch, err := allocSlice[byte](&d.temp, len(raw), 1)
	if err != nil {
		return "", wrap(err, "allocSlice(scratch)")
	}
	copy(scratch, raw)
	if !utf8.Valid(scratch) {
		return "", fail("string is valid UTF-8")
	}
	if bytes.IndexByte(scratch, 0) >= 0 {
		return "", fail("string has no NUL")
	}
	if err := d.result.reserve(1, len(scratch)); err != nil {
		return "", wrap(err, "reserve(string)")
	}
	return string(scratch), nil
}

func (d *decoder) vec3(key string) (scene.Vec3, error) {
	var v scene.Vec3
	if err := d.r.open(key); err != nil {
		return v, wrap(err, "open()")
	}
	for _, p := range []*float64{&v.X, &v.Y, &v.Z} {
		f, err := d.r.f64()
		if err != nil {
			return v, wrap(err, "f64()")
		}
		*p = f
	}
	if err := d.r.close(); err != nil {
		return v, wrap(err, "close()")
	}
	return v, nil
}

func (d *decoder) readMetadata() error {
	if err := d.r.open("Creator"); err != nil {
		return wrap(err, "open()")
	}
	creator, err := d.str()
	if err != nil {
		return wrap(err, "str()")
	}
	if err := d.r.close(); err != nil {
		return wrap(err, "close()")
	}
	if err := d.r.open("Unit"); err != nil {
		return wrap(err, "open()")
	}
	unit, err := d.r.f64()
	if err != nil {
		return wrap(err, "f64()")
	}
	if err := d.r.close(); err != nil {
		return wrap(err, "close()")
	}
	if !(unit > 0) || math.IsInf(unit, 0) {
		return fail("unit > 0")
	}
	d.scene.Metadata.Creator = creator
	d.scene.Metadata.UnitMeters = unit
	return nil
}

func (d *decoder) readProps(props *scene.Props) error {
	n, err := d.count("Props", minProp)
	if err != nil {
		return wrap(err, "count()")
	}
	list, err := allocSlice[scene.Prop](&d.result, n, sizeProp)
	if err != nil {
		return wrap(err, "allocSlice(props)")
	}
	for i := range list {
		if err := d.r.open("P"); err != nil {
			return wrap(err, "open()")
		}
		name, err := d.str()
		if err != nil {
			return wrap(err, "str()")
		}
		value, err := d.str()
		if err != nil {
			return wrap(err, "str()")
		}
		if err := d.r.close(); err != nil {
			return wrap(err, "close()")
		}
		if i > 0 && name <= list[i-1].Name {
			return fail("props sorted and unique")
		}
		list[i] = scene.Prop{Name: name, Value: value}
	}
	props.Props = list
	return nil
}

func (d *decoder) readMaterials() error {
	n, err := d.count("Materials", minMaterial)
	if err != nil {
		return wrap(err, "count()")
	}
	mats, err := allocSlice[*scene.Material](&d.result, n, sizePtr)
	if err != nil {
		return wrap(err, "allocSlice(materials)")
	}
	for i := range mats {
		mat, err := allocOne[scene.Material](&d.result, sizeMaterial)
		if err != nil {
			return wrap(err, "allocOne(material)")
		}
		if err := d.r.open("Material"); err != nil {
			return wrap(err, "open()")
		}
		if mat.Name, err = d.str(); err != nil {
			return wrap(err, "str()")
		}
		if err := d.r.close(); err != nil {
			return wrap(err, "close()")
		}
		if err := d.readProps(&mat.Props); err != nil {
			return wrap(err, "readProps()")
		}
		mats[i] = mat
	}
	d.scene.Materials = mats
	return nil
}

func (d *decoder) readNodes() error {
	n, err := d.count("Nodes", minNode)
	if err != nil {
		return wrap(err, "count()")
	}
	nodes, err := allocSlice[*scene.Node](&d.result, n, sizePtr)
	if err != nil {
		return wrap(err, "allocSlice(nodes)")
	}
	parents, err := allocSlice[int32](&d.temp, n, sizeIndex)
	if err != nil {
		return wrap(err, "allocSlice(parents)")
	}
	numChildren, err := allocSlice[int32](&d.temp, n, sizeIndex)
	if err != nil {
		return wrap(err, "allocSlice(children)")
	}

	for i := range nodes {
		node, err := allocOne[scene.Node](&d.result, sizeNode)
		if err != nil {
			return wrap(err, "allocOne(node)")
		}
		node.ID = i
		if err := d.r.open("Node"); err != nil {
			return wrap(err, "open()")
		}
		if node.Name, err = d.str(); err != nil {
			return wrap(err, "str()")
		}
		parent, err := d.r.i32()
		if err != nil {
			return wrap(err, "i32()")
		}
		if err := d.r.close(); err != nil {
			return wrap(err, "close()")
		}
		if parent < -1 || int(parent) >= i {
			return fail("parent < node_index")
		}
		parents[i] = parent
		if parent >= 0 {
			numChildren[parent]++
		}

		if node.Local.Translation, err = d.vec3("T"); err != nil {
			return wrap(err, "vec3(T)")
		}
		if node.Local.Rotation, err = d.vec3("R"); err != nil {
			return wrap(err, "vec3(R)")
		}
		if node.Local.Scale, err = d.vec3("S"); err != nil {
			return wrap(err, "vec3(S)")
		}
		if err := d.readProps(&node.Props); err != nil {
			return wrap(err, "readProps()")
		}
		nodes[i] = node
	}

	// Parents precede children, so one forward pass links the hierarchy.
	for i, node := range nodes {
		if c := numChildren[i]; c > 0 {
			if err := d.result.reserve(int(c), sizePtr); err != nil {
				return wrap(err, "reserve(children)")
			}
			node.Children = make([]*scene.Node, 0, c)
		}
		if p := parents[i]; p >= 0 {
			parent := nodes[p]
			node.Parent = parent
			parent.Children = append(parent.Children, node)
		}
	}
	d.scene.Nodes = nodes
	return nil
}

func (d *decoder) readMeshes() error {
	n, err := d.count("Meshes", minMesh)
	if err != nil {
		return wrap(err, "count()")
	}
	meshes, err := allocSlice[*scene.Mesh](&d.result, n, sizePtr)
	if err != nil {
		return wrap(err, "allocSlice(meshes)")
	}
	for i := range meshes {
		mesh, err := d.readMesh()
		if err != nil {
			return wrap(err, "readMesh()")
		}
		meshes[i] = mesh
	}
	d.scene.Meshes = meshes
	return nil
}

func (d *decoder) readMesh() (*scene.Mesh, error) {
	mesh, err := allocOne[scene.Mesh](&d.result, sizeMesh)
	if err != nil {
		return nil, wrap(err, "allocOne(mesh)")
	}
	if err := d.r.open("Mesh"); err != nil {
		return nil, wrap(err, "open()")
	}
	if mesh.Name, err = d.str(); err != nil {
		return nil, wrap(err, "str()")
	}
	nodeIx, err := d.r.i32()
	if err != nil {
		return nil, wrap(err, "i32()")
	}
	if err := d.r.close(); err != nil {
		return nil, wrap(err, "close()")
	}
	if nodeIx < 0 || int(nodeIx) >= len(d.scene.Nodes) {
		return nil, fail("node_index < num_nodes")
	}
	node := d.scene.Nodes[nodeIx]
	if node.Mesh != nil {
		return nil, fail("node has one mesh")
	}
	node.Mesh = mesh
	mesh.Node = node

	if mesh.VertexPosition.Values, err = d.readVec3s("Positions"); err != nil {
		return nil, wrap(err, "readVec3s(positions)")
	}
	if mesh.VertexNormal.Values, err = d.readVec3s("Normals"); err != nil {
		return nil, wrap(err, "readVec3s(normals)")
	}
	if d.version >= Version200 {
		if mesh.VertexUV.Values, err = d.readVec2s("UVs"); err != nil {
			return nil, wrap(err, "readVec2s(uvs)")
		}
	}
	mesh.NumVertices = len(mesh.VertexPosition.Values)

	if err := d.readFaces(mesh); err != nil {
		return nil, wrap(err, "readFaces()")
	}
	if d.version >= Version200 {
		if err := d.readMeshMaterials(mesh); err != nil {
			return nil, wrap(err, "readMeshMaterials()")
		}
	}
	return mesh, nil
}

// readVec3s returns nil for an empty array so a missing attribute stays
// absent.
func (d *decoder) readVec3s(key string) ([]scene.Vec3, error) {
	n, err := d.count(key, minVec3)
	if err != nil {
		return nil, wrap(err, "count()")
	}
	if n == 0 {
		return nil, nil
	}
	values, err := allocSlice[scene.Vec3](&d.result, n, sizeVec3)
	if err != nil {
		return nil, wrap(err, "allocSlice(vec3)")
	}
	for i := range values {
		if values[i], err = d.vec3("V"); err != nil {
			return nil, wrap(err, "vec3()")
		}
	}
	return values, nil
}

func (d *decoder) readVec2s(key string) ([]scene.Vec2, error) {
	n, err := d.count(key, minVec2)
	if err != nil {
		return nil, wrap(err, "count()")
	}
	if n == 0 {
		return nil, nil
	}
	values, err := allocSlice[scene.Vec2](&d.result, n, sizeVec2)
	if err != nil {
		return nil, wrap(err, "allocSlice(vec2)")
	}
	for i := range values {
		if err := d.r.open("V"); err != nil {
			return nil, wrap(err, "open()")
		}
		if values[i].X, err = d.r.f64(); err != nil {
			return nil, wrap(err, "f64()")
		}
		if values[i].Y, err = d.r.f64(); err != nil {
			return nil, wrap(err, "f64()")
		}
		if err := d.r.close(); err != nil {
			return nil, wrap(err, "close()")
		}
	}
	return values, nil
}

func (d *decoder) readFaces(mesh *scene.Mesh) error {
	if err := d.r.open("Faces"); err != nil {
		return wrap(err, "open()")
	}
	numFaces, err := d.r.u32()
	if err != nil {
		return wrap(err, "u32()")
	}
	numIndices, err := d.r.u32()
	if err != nil {
		return wrap(err, "u32()")
	}
	if err := d.r.close(); err != nil {
		return wrap(err, "close()")
	}
	if !d.r.canHold(int(numFaces), minIndex) || !d.r.canHold(int(numIndices), minIndex) {
		return fail("count fits data")
	}
	if numIndices < 3*numFaces {
		return fail("num_indices >= 3 * num_faces")
	}

	faces, err := allocSlice[scene.Face](&d.result, int(numFaces), sizeFace)
	if err != nil {
		return wrap(err, "allocSlice(faces)")
	}
	hasNormal := mesh.VertexNormal.Values != nil
	hasUV := mesh.VertexUV.Values != nil
	pos, err := allocSlice[int32](&d.result, int(numIndices), sizeIndex)
	if err != nil {
		return wrap(err, "allocSlice(position indices)")
	}
	var nrm, uv []int32
	if hasNormal {
		if nrm, err = allocSlice[int32](&d.result, int(numIndices), sizeIndex); err != nil {
			return wrap(err, "allocSlice(normal indices)")
		}
	}
	if hasUV {
		if uv, err = allocSlice[int32](&d.result, int(numIndices), sizeIndex); err != nil {
			return wrap(err, "allocSlice(uv indices)")
		}
	}

	var cursor uint32
	for i := range faces {
		if err := d.r.open("F"); err != nil {
			return wrap(err, "open()")
		}
		corners, err := d.r.u32()
		if err != nil {
			return wrap(err, "u32()")
		}
		if err := d.r.close(); err != nil {
			return wrap(err, "close()")
		}
		if corners < 3 {
			return fail("face_size >= 3")
		}
		if corners > numIndices-cursor {
			return fail("face_size <= indices_left")
		}
		faces[i] = scene.Face{IndexBegin: cursor, NumIndices: corners}
		for ix := cursor; ix < cursor+corners; ix++ {
			if err := d.readCorner(mesh, ix, pos, nrm, uv); err != nil {
				return wrap(err, "readCorner()")
			}
		}
		cursor += corners
	}
	if cursor != numIndices {
		return fail("indices_left == 0")
	}

	mesh.Faces = faces
	mesh.NumIndices = int(numIndices)
	mesh.VertexPosition.Indices = pos
	mesh.VertexNormal.Indices = nrm
	mesh.VertexUV.Indices = uv
	return nil
}

func (d *decoder) readCorner(mesh *scene.Mesh, ix uint32, pos, nrm, uv []int32) error {
	if err := d.r.open("C"); err != nil {
		return wrap(err, "open()")
	}
	p, err := d.r.i32()
	if err != nil {
		return wrap(err, "i32()")
	}
	if p < 0 || int(p) >= len(mesh.VertexPosition.Values) {
		return fail("position_index < num_positions")
	}
	pos[ix] = p
	if nrm != nil {
		n, err := d.r.i32()
		if err != nil {
			return wrap(err, "i32()")
		}
		if n < -1 || int(n) >= len(mesh.VertexNormal.Values) {
			return fail("normal_index < num_normals")
		}
		nrm[ix] = n
	}
	if uv != nil {
		t, err := d.r.i32()
		if err != nil {
			return wrap(err, "i32()")
		}
		if t < -1 || int(t) >= len(mesh.VertexUV.Values) {
			return fail("uv_index < num_uvs")
		}
		uv[ix] = t
	}
	if err := d.r.close(); err != nil {
		return wrap(err, "close()")
	}
	return nil
}

func (d *decoder) readMeshMaterials(mesh *scene.Mesh) error {
	n, err := d.count("MeshMaterials", minIndex)
	if err != nil {
		return wrap(err, "count()")
	}
	if n == 0 {
		return nil
	}
	mats, err := allocSlice[*scene.Material](&d.result, n, sizePtr)
	if err != nil {
		return wrap(err, "allocSlice(mesh materials)")
	}
	for i := range mats {
		if err := d.r.open("M"); err != nil {
			return wrap(err, "open()")
		}
		ix, err := d.r.i32()
		if err != nil {
			return wrap(err, "i32()")
		}
		if err := d.r.close(); err != nil {
			return wrap(err, "close()")
		}
		if ix < 0 || int(ix) >= len(d.scene.Materials) {
			return fail("material_index < num_materials")
		}
		mats[i] = d.scene.Materials[ix]
	}

	numFaceMats, err := d.count("FaceMaterials", minIndex)
	if err != nil {
		return wrap(err, "count()")
	}
	if numFaceMats != len(mesh.Faces) {
		return fail("num_face_materials == num_faces")
	}
	faceMats, err := allocSlice[int32](&d.result, numFaceMats, sizeIndex)
	if err != nil {
		return wrap(err, "allocSlice(face materials)")
	}
	for i := range faceMats {
		if err := d.r.open("FM"); err != nil {
			return wrap(err, "open()")
		}
		m, err := d.r.i32()
		if err != nil {
			return wrap(err, "i32()")
		}
		if err := d.r.close(); err != nil {
			return wrap(err, "close()")
		}
		if m < 0 || int(m) >= len(mats) {
			return fail("face_material < num_mesh_materials")
		}
		faceMats[i] = m
	}
	mesh.Materials = mats
	mesh.FaceMaterial = faceMats
	return nil
}
