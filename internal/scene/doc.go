// Package scene is the narrow boundary between the harness and the scene
// parsing library under test.
//
// A library plugs in by implementing Loader. Everything the harness needs to
// know about a loaded file lives in Scene (meshes, node-to-root transforms,
// vertex attributes, properties) and everything it needs to know about a
// rejected file lives in Error (an ordered stack of frames, each tagged with
// a stable source-site identifier).
//
// The package does not parse anything itself.
package scene
