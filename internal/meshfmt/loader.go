package meshfmt

import (
	"bytes"

	"meshfuzz/internal/scene"
)

// Loader decodes .mfx files of either encoding. The zero value is ready to
// use and safe for concurrent loads.
type Loader struct{}

var _ scene.Loader = Loader{}

// Load implements scene.Loader.
func (Loader) Load(data []byte, opts scene.LoadOptions) (*scene.Scene, error) {
	var d *decoder
	switch {
	case bytes.HasPrefix(data, binaryMagic):
		d = newDecoder(&binaryReader{data: data}, false, opts)
	case bytes.HasPrefix(data, asciiMagic):
		d = newDecoder(&asciiReader{data: data}, true, opts)
	default:
		return nil, fail("magic recognized")
	}
	if err := d.decode(); err != nil {
		return nil, wrap(err, "decode()")
	}
	s := d.scene
	if err := finalize(d, s, opts); err != nil {
		return nil, wrap(err, "finalize()")
	}
	s.Metadata.TempAllocs = d.temp.allocs
	s.Metadata.TempMemory = d.temp.bytes
	s.Metadata.ResultAllocs = d.result.allocs
	s.Metadata.ResultMemory = d.result.bytes
	return s, nil
}

// Load decodes data with the zero Loader.
func Load(data []byte, opts scene.LoadOptions) (*scene.Scene, error) {
	return Loader{}.Load(data, opts)
}

// finalize computes node-to-root matrices and applies the axis options.
func finalize(d *decoder, s *scene.Scene, opts scene.LoadOptions) error {
	root := scene.Identity()
	if opts.TargetUnitMeters > 0 {
		k := s.Metadata.UnitMeters / opts.TargetUnitMeters
		root = scene.Transform{Scale: scene.Vec3{X: k, Y: k, Z: k}}.Matrix()
	}
	if opts.ConvertHandedness {
		root = scene.Transform{Scale: scene.Vec3{X: 1, Y: 1, Z: -1}}.Matrix().Mul(root)
	}
	for _, n := range s.Nodes {
		local := n.Local.Matrix()
		if n.Parent != nil {
			n.ToRoot = n.Parent.ToRoot.Mul(local)
		} else {
			n.ToRoot = root.Mul(local)
		}
	}

	// Mirroring flips the facing, so handedness conversion cancels an
	// explicit winding reversal.
	if opts.ReverseWinding != opts.ConvertHandedness {
		for _, m := range s.Meshes {
			if err := reverseWinding(d, m); err != nil {
				return wrap(err, "reverseWinding()")
			}
		}
	}
	return nil
}

func reverseWinding(d *decoder, m *scene.Mesh) error {
	maxFace := 0
	for _, f := range m.Faces {
		maxFace = max(maxFace, int(f.NumIndices))
	}
	scratch, err := allocSlice[int32](&d.temp, maxFace, sizeIndex)
	if err != nil {
		return wrap(err, "allocSlice(scratch)")
	}
	for _, f := range m.Faces {
		for _, idx := range [][]int32{m.VertexPosition.Indices, m.VertexNormal.Indices, m.VertexUV.Indices} {
			if idx == nil {
				continue
			}
			run := idx[f.IndexBegin : f.IndexBegin+f.NumIndices]
			buf := scratch[:len(run)]
			copy(buf, run)
			// keep the first corner in place
			for i := 1; i < len(run); i++ {
				run[i] = buf[len(run)-i]
			}
		}
	}
	return nil
}
