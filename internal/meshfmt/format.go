package meshfmt

import "fmt"

// Encoding selects the on-disk representation.
type Encoding uint8

const (
	Binary Encoding = iota
	ASCII
)

// Encodings lists every encoding in test order.
var Encodings = []Encoding{Binary, ASCII}

func (e Encoding) String() string {
	switch e {
	case Binary:
		return "binary"
	case ASCII:
		return "ascii"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

// ParseEncoding accepts the names produced by String.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "binary":
		return Binary, nil
	case "ascii":
		return ASCII, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q (want binary or ascii)", s)
	}
}

const (
	// Version100 stores nodes, positions and normals.
	Version100 uint32 = 100
	// Version200 adds texture coordinates and materials.
	Version200 uint32 = 200
)

// Versions lists every supported format version in ascending order.
var Versions = []uint32{Version100, Version200}

// SupportsVersion reports whether v can be read and written.
func SupportsVersion(v uint32) bool {
	return v == Version100 || v == Version200
}

var (
	binaryMagic  = []byte("MFXBIN\x00\x00")
	binaryFooter = []byte("ENDMFX\x00\x00")
	asciiMagic   = []byte("MFX-ASCII ")
)

const (
	binaryHeaderSize = 16 // magic, version, total size

	asciiEnd = "End"
)

// Approximate in-memory sizes charged to the allocator pools.
const (
	sizeScene    = 96
	sizeNode     = 160
	sizeMesh     = 224
	sizeMaterial = 64
	sizeProp     = 32
	sizePtr      = 8
	sizeFace     = 8
	sizeIndex    = 4
	sizeVec2     = 16
	sizeVec3     = 24
)

// Minimum binary encoded sizes, used to reject counts the remaining input
// cannot satisfy before allocating for them.
const (
	minProp     = 8  // two empty strings
	minMaterial = 8  // name, props count
	minNode     = 84 // name, parent, 9 floats, props count
	minMesh     = 20 // name, node, three counts
	minVec2     = 16
	minVec3     = 24
	minIndex    = 4
)

// maxPoolBytes bounds a single pool regardless of the allocation limit.
const maxPoolBytes = 256 << 20
