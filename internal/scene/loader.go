package scene

import "strconv"

// Loader loads a scene from an in-memory buffer.
//
// Implementations must not retain or modify data. A failed load returns a
// *Error so the harness can attribute the failure to a source site.
type Loader interface {
	Load(data []byte, opts LoadOptions) (*Scene, error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc func(data []byte, opts LoadOptions) (*Scene, error)

// Load calls f.
func (f LoaderFunc) Load(data []byte, opts LoadOptions) (*Scene, error) {
	return f(data, opts)
}

// AllocLimit caps the number of allocations an allocator pool may perform.
// The zero value means unlimited.
type AllocLimit struct {
	max int
	set bool
}

// Unlimited is the zero AllocLimit.
var Unlimited AllocLimit

// LimitAllocs returns a limit allowing at most n allocations. Negative n is
// treated as zero.
func LimitAllocs(n int) AllocLimit {
	if n < 0 {
		n = 0
	}
	return AllocLimit{max: n, set: true}
}

// LimitFromPtr converts an optional count into a limit; nil means unlimited.
func LimitFromPtr(n *int) AllocLimit {
	if n == nil {
		return Unlimited
	}
	return LimitAllocs(*n)
}

// Max returns the cap and whether one is set.
func (l AllocLimit) Max() (int, bool) { return l.max, l.set }

// IsSet reports whether the limit caps anything.
func (l AllocLimit) IsSet() bool { return l.set }

// Allows reports whether one more allocation fits after used allocations.
func (l AllocLimit) Allows(used int) bool {
	return !l.set || used < l.max
}

// Ptr returns the cap as an optional count.
func (l AllocLimit) Ptr() *int {
	if !l.set {
		return nil
	}
	n := l.max
	return &n
}

func (l AllocLimit) String() string {
	if !l.set {
		return "unlimited"
	}
	return strconv.Itoa(l.max)
}

// LoadOptions configures a single load.
type LoadOptions struct {
	// TempLimit caps allocations from the scratch pool used while parsing.
	TempLimit AllocLimit
	// ResultLimit caps allocations that end up owned by the returned Scene.
	ResultLimit AllocLimit

	// TargetUnitMeters rescales positions so one unit equals this many
	// meters. Zero keeps the file's units.
	TargetUnitMeters float64
	// ConvertHandedness mirrors the Z axis and flips winding accordingly.
	ConvertHandedness bool
	// ReverseWinding reverses the corner order of every face.
	ReverseWinding bool
}
