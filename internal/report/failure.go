package report

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"

	"meshfuzz/internal/scene"
)

// Failure is one failed harness check.
type Failure struct {
	Case string
	// File and Line locate the harness check that failed.
	File    string
	Line    int
	Message string
	Hint    string
	// Frames is the structured error behind the failure, if any.
	Frames []scene.Frame
	// Stack is set for recovered panics.
	Stack []byte
}

func (f Failure) String() string {
	return fmt.Sprintf("(%s) %s:%d: %s", f.Case, f.File, f.Line, f.Message)
}

// At fills File and Line from the caller skip frames above At.
func (f Failure) At(skip int) Failure {
	if _, file, line, ok := runtime.Caller(skip + 1); ok {
		f.File = filepath.Base(file)
		f.Line = line
	}
	return f
}

// DefaultBagSize caps the failures kept per case.
const DefaultBagSize = 64

// Bag collects failures up to a limit.
type Bag struct {
	items   []Failure
	max     int
	dropped int
}

// NewBag creates a bag keeping at most max failures.
func NewBag(max int) *Bag {
	if max <= 0 {
		max = DefaultBagSize
	}
	return &Bag{max: max}
}

// Add добавляет ошибку, учитывая лимит.
// Возвращает false, если ошибка не добавлена (достигнут лимит).
func (b *Bag) Add(f Failure) bool {
	if len(b.items) >= b.max {
		b.dropped++
		return false
	}
	b.items = append(b.items, f)
	return true
}

// Len returns the number of kept failures.
func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Dropped returns how many failures exceeded the limit.
func (b *Bag) Dropped() int {
	if b == nil {
		return 0
	}
	return b.dropped
}

// Empty reports whether nothing failed.
func (b *Bag) Empty() bool { return b.Len() == 0 && b.Dropped() == 0 }

// Items возвращает read-only slice ошибок.
func (b *Bag) Items() []Failure {
	if b == nil {
		return nil
	}
	return b.items
}

// Merge объединяет ошибки из другого Bag.
// Увеличивает max, если нужно вместить все элементы.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	b.max = max(b.max, len(b.items)+len(other.items))
	b.items = append(b.items, other.items...)
	b.dropped += other.dropped
}

// Sort orders failures by case, file and line.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		fi, fj := b.items[i], b.items[j]
		if fi.Case != fj.Case {
			return fi.Case < fj.Case
		}
		if fi.File != fj.File {
			return fi.File < fj.File
		}
		return fi.Line < fj.Line
	})
}
