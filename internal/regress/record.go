package regress

import (
	"cmp"
	"strings"

	"meshfuzz/internal/mutate"
	"meshfuzz/internal/scene"
)

// PackVersion folds the encoding into a format version so that the binary
// and ASCII files of one version order next to each other.
func PackVersion(version uint32, ascii bool) uint32 {
	if ascii {
		return version + 2
	}
	return version + 1
}

// Record is the best known reproducer for one failure site.
type Record struct {
	Site uint32
	Case string
	// CaseRank is the position of Case in the run order.
	CaseRank int
	// Version is the packed format version, see PackVersion.
	Version uint32

	Patch       *mutate.BytePatch
	TempLimit   scene.AllocLimit
	ResultLimit scene.AllocLimit
	Truncate    int

	Description string
}

// kind orders non-patch mutations: temp < result < truncate.
func (r *Record) kind() int {
	switch {
	case r.TempLimit.IsSet():
		return 0
	case r.ResultLimit.IsSet():
		return 1
	case r.Truncate > 0:
		return 2
	default:
		return 3
	}
}

func limitKey(l scene.AllocLimit) int {
	n, ok := l.Max()
	if !ok {
		return -1
	}
	return n
}

// Compare orders records by preference; a negative result means a is the
// better reproducer. It is a total order over all record fields.
func Compare(a, b *Record) int {
	if c := cmp.Compare(a.CaseRank, b.CaseRank); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Version, b.Version); c != 0 {
		return c
	}
	switch {
	case a.Patch == nil && b.Patch != nil:
		return 1
	case a.Patch != nil && b.Patch == nil:
		return -1
	case a.Patch != nil:
		if c := cmp.Compare(a.Patch.Offset, b.Patch.Offset); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.kind(), b.kind()); c != 0 {
		return c
	}
	if c := cmp.Compare(limitKey(a.TempLimit), limitKey(b.TempLimit)); c != 0 {
		return c
	}
	if c := cmp.Compare(limitKey(a.ResultLimit), limitKey(b.ResultLimit)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Truncate, b.Truncate); c != 0 {
		return c
	}
	if a.Patch != nil {
		if c := cmp.Compare(a.Patch.Value, b.Patch.Value); c != 0 {
			return c
		}
	}
	if c := strings.Compare(a.Description, b.Description); c != 0 {
		return c
	}
	if c := strings.Compare(a.Case, b.Case); c != 0 {
		return c
	}
	return cmp.Compare(a.Site, b.Site)
}

// Merge returns the preferred of two reproducers for the same site.
// Either argument may be nil.
func Merge(existing, candidate *Record) *Record {
	switch {
	case existing == nil:
		return candidate
	case candidate == nil:
		return existing
	case Compare(candidate, existing) < 0:
		return candidate
	default:
		return existing
	}
}

// Check converts the record into a replay-table row.
func (r *Record) Check() Check {
	c := Check{
		Case:        r.Case,
		Version:     r.Version,
		Site:        r.Site,
		TempLimit:   r.TempLimit.Ptr(),
		ResultLimit: r.ResultLimit.Ptr(),
		Truncate:    r.Truncate,
		Description: r.Description,
	}
	if r.Patch != nil {
		p := *r.Patch
		c.Patch = &p
	}
	return c
}
