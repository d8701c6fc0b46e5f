package meshfmt

import "meshfuzz/internal/scene"

// pool charges allocations against an optional count limit and a byte cap.
type pool struct {
	limit  scene.AllocLimit
	allocs int
	bytes  int
}

func newPool(limit scene.AllocLimit) pool {
	return pool{limit: limit}
}

func (p *pool) reserve(n, elemSize int) error {
	if !p.limit.Allows(p.allocs) {
		return fail("allocs_left > 0")
	}
	if n < 0 {
		return fail("count >= 0")
	}
	if elemSize > 0 && n > (maxPoolBytes-p.bytes)/elemSize {
		return fail("size <= max_size")
	}
	p.allocs++
	p.bytes += n * elemSize
	return nil
}

// allocSlice reserves n elements of elemSize bytes and returns the slice.
func allocSlice[T any](p *pool, n, elemSize int) ([]T, error) {
	if err := p.reserve(n, elemSize); err != nil {
		return nil, wrap(err, "reserve()")
	}
	return make([]T, n), nil
}

// allocOne reserves a single object.
func allocOne[T any](p *pool, size int) (*T, error) {
	if err := p.reserve(1, size); err != nil {
		return nil, wrap(err, "reserve()")
	}
	return new(T), nil
}
