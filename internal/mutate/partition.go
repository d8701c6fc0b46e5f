package mutate

// Range is a half-open interval of sweep indices.
type Range struct {
	Lo, Hi int
}

// Len returns the number of indices in r.
func (r Range) Len() int { return r.Hi - r.Lo }

// Partition splits [lo, hi) into at most workers contiguous ranges whose
// lengths differ by at most one. Earlier ranges get the extra index.
func Partition(lo, hi, workers int) []Range {
	n := hi - lo
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	workers = min(workers, n)
	size, extra := n/workers, n%workers

	out := make([]Range, 0, workers)
	start := lo
	for i := range workers {
		end := start + size
		if i < extra {
			end++
		}
		out = append(out, Range{Lo: start, Hi: end})
		start = end
	}
	return out
}
