package sweep

// iterator walks the cartesian product of a multi-dimensional shape in
// lexicographic order: the first axis varies slowest, the last fastest.
type iterator struct {
	shape []int
	index []int
	done  bool
}

func newIterator(shape []int) *iterator {
	it := &iterator{
		shape: shape,
		index: make([]int, len(shape)),
	}
	for _, n := range shape {
		if n <= 0 {
			it.done = true
		}
	}
	return it
}

// next returns the current coordinate and advances. The returned slice is
// owned by the caller.
func (it *iterator) next() ([]int, bool) {
	if it.done {
		return nil, false
	}

	coord := make([]int, len(it.index))
	copy(coord, it.index)

	// Odometer increment, rightmost axis fastest.
	for axis := len(it.index) - 1; axis >= 0; axis-- {
		it.index[axis]++
		if it.index[axis] < it.shape[axis] {
			return coord, true
		}
		it.index[axis] = 0
	}
	it.done = true
	return coord, true
}
