package meshfmt

import (
	"path/filepath"
	"runtime"
	"strings"

	"fortio.org/safecast"

	"meshfuzz/internal/scene"
)

// fileTags gives each source file of the package a stable tag; a site id is
// tag<<16 | line.
var fileTags = map[string]uint32{
	"decoder.go": 1,
	"binary.go":  2,
	"ascii.go":   3,
	"alloc.go":   4,
	"loader.go":  5,
}

// SiteFile splits a site id into the file name and line it was raised at.
func SiteFile(site uint32) (string, int) {
	tag := site >> 16
	for name, t := range fileTags {
		if t == tag {
			return name, int(site & 0xffff)
		}
	}
	return "", int(site & 0xffff)
}

func callerFrame(skip int, desc string) scene.Frame {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return scene.Frame{Description: desc}
	}
	ln, err := safecast.Conv[uint32](line)
	if err != nil {
		ln = 0
	}
	fn := ""
	if f := runtime.FuncForPC(pc); f != nil {
		fn = shortFuncName(f.Name())
	}
	return scene.Frame{
		Site:        fileTags[filepath.Base(file)]<<16 | ln&0xffff,
		Function:    fn,
		Description: desc,
	}
}

// shortFuncName turns "meshfuzz/internal/meshfmt.(*decoder).readNode" into
// "readNode".
func shortFuncName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, ")."); i >= 0 {
		name = name[i+2:]
	}
	return name
}

// fail starts a structured error at the calling check.
func fail(desc string) error {
	return &scene.Error{Frames: []scene.Frame{callerFrame(1, desc)}}
}

// wrap records the caller as an outer frame of err.
func wrap(err error, desc string) error {
	se, ok := scene.AsError(err)
	if !ok {
		se = &scene.Error{Frames: []scene.Frame{{Description: err.Error()}}}
	}
	se.Push(callerFrame(1, desc))
	return se
}
