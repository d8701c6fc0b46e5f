// Package meshfmt reads and writes the .mfx scene container.
//
// An .mfx file stores a node hierarchy with local transforms and
// properties, polygon meshes with indexed positions and normals, and since
// version 200 texture coordinates and materials. The same logical stream
// has two encodings: a little-endian binary one framed by a magic, a total
// size field and a footer, and a line-oriented ASCII one of "Key: values"
// lines closed by an End line.
//
// Loader implements scene.Loader. Every rejected input produces a
// *scene.Error whose frames carry stable site ids (file tag << 16 | line),
// and every allocation is charged to a temp or result pool that can be
// capped through scene.LoadOptions.
package meshfmt
